package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "state", DefaultCursorFile), filepath.Join(dir, "state", DefaultAddressFile))
	require.NoError(t, err)
	require.NoError(t, s.Initialize(t.Context()))
	t.Cleanup(func() { s.Close() })
	return s, filepath.Join(dir, "state")
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
	_, err := New("", "a.txt")
	require.Error(t, err)
	_, err = New("same.txt", "./same.txt")
	require.Error(t, err)
}

func TestReadCursor_Absent(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	_, exists, err := s.ReadCursor(t.Context())
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, loadAll(t, s))
}

func TestWrite_ThenReload(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)

	require.NoError(t, s.Write(t.Context(), 1000, []extractor.Address{
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
	}))
	require.NoError(t, s.Write(t.Context(), 900, []extractor.Address{
		"0xcccc000000000000000000000000000000000003",
	}))
	require.NoError(t, s.Write(t.Context(), 800, nil))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(filepath.Join(dir, DefaultCursorFile))
	require.NoError(t, err)
	require.Equal(t, "800", string(raw))

	reopened, err := New(filepath.Join(dir, DefaultCursorFile), filepath.Join(dir, DefaultAddressFile))
	require.NoError(t, err)
	cursor, exists, err := reopened.ReadCursor(t.Context())
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(800), cursor)
	require.Equal(t, []string{
		"0xaaaa000000000000000000000000000000000001",
		"0xbbbb000000000000000000000000000000000002",
		"0xcccc000000000000000000000000000000000003",
	}, loadAll(t, reopened))
}

func TestReadCursor_Corrupt(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultCursorFile), []byte("not-a-number"), 0o644))

	_, _, err := s.ReadCursor(t.Context())
	require.ErrorContains(t, err, "parse cursor file")
}

func TestReadCursor_TrailingNewline(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultCursorFile), []byte("12345\n"), 0o644))

	cursor, exists, err := s.ReadCursor(t.Context())
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(12345), cursor)
}

func TestLoadAddresses_SkipsBlankLines(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	content := "0xAAAA000000000000000000000000000000000001\n\n  \nbogus\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultAddressFile), []byte(content), 0o644))

	require.Equal(t, []string{"0xAAAA000000000000000000000000000000000001", "bogus"}, loadAll(t, s))
}

func TestWrite_TerminatesTornLastLine(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	content := "0xaaaa000000000000000000000000000000000001\n0x0000"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultAddressFile), []byte(content), 0o644))

	require.NoError(t, s.Write(t.Context(), 41, []extractor.Address{"0xbbbb000000000000000000000000000000000002"}))
	require.NoError(t, s.Write(t.Context(), 40, []extractor.Address{"0xcccc000000000000000000000000000000000003"}))

	require.Equal(t, []string{
		"0xaaaa000000000000000000000000000000000001",
		"0x0000",
		"0xbbbb000000000000000000000000000000000002",
		"0xcccc000000000000000000000000000000000003",
	}, loadAll(t, s))
}

func TestWrite_IntactLogGetsNoBlankLine(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	path := filepath.Join(dir, DefaultAddressFile)
	content := "0xaaaa000000000000000000000000000000000001\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	require.NoError(t, s.Write(t.Context(), 41, []extractor.Address{"0xbbbb000000000000000000000000000000000002"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content+"0xbbbb000000000000000000000000000000000002\n", string(b))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, dir := newStore(t)
	require.NoError(t, s.Write(t.Context(), 10, []extractor.Address{"0xaaaa000000000000000000000000000000000001"}))

	require.NoError(t, s.Delete(t.Context()))
	require.NoFileExists(t, filepath.Join(dir, DefaultCursorFile))
	require.NoFileExists(t, filepath.Join(dir, DefaultAddressFile))

	// Deleting twice is fine.
	require.NoError(t, s.Delete(t.Context()))
}
