package boltstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", DefaultPath)
	s, err := New(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(t.Context()))
	t.Cleanup(func() { s.Close() })
	return s, path
}

func loadAll(t *testing.T, s *Store) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.LoadAddresses(t.Context(), func(raw string) error {
		out = append(out, raw)
		return nil
	}))
	return out
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New("", time.Second)
	require.Error(t, err)
}

func TestInitialize_Idempotent(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	require.NoError(t, s.Initialize(t.Context()))

	_, exists, err := s.ReadCursor(t.Context())
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, loadAll(t, s))
}

func TestWrite_ThenReopen(t *testing.T) {
	t.Parallel()
	s, path := newStore(t)

	require.NoError(t, s.Write(t.Context(), 1000, []extractor.Address{
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
	}))
	require.NoError(t, s.Write(t.Context(), 900, []extractor.Address{
		"0xaaaa000000000000000000000000000000000001",
	}))
	require.NoError(t, s.Close())

	reopened, err := New(path, time.Second)
	require.NoError(t, err)
	defer reopened.Close()

	cursor, exists, err := reopened.ReadCursor(t.Context())
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(900), cursor)

	var normalized []extractor.Address
	for _, raw := range loadAll(t, reopened) {
		a, ok := extractor.Normalize(raw)
		require.True(t, ok)
		normalized = append(normalized, a)
	}
	require.ElementsMatch(t, []extractor.Address{
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
	}, normalized)
}

func TestReadCursor_Corrupt(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyCursor, []byte{1, 2, 3})
	}))

	_, _, err := s.ReadCursor(t.Context())
	require.ErrorContains(t, err, "corrupt cursor")
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)
	require.NoError(t, s.Write(t.Context(), 10, []extractor.Address{"0xaaaa000000000000000000000000000000000001"}))

	require.NoError(t, s.Delete(t.Context()))
	_, exists, err := s.ReadCursor(t.Context())
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, loadAll(t, s))

	require.NoError(t, s.Delete(t.Context()))
}
