// Package boltstore persists the scan checkpoint in a bbolt database. The
// cursor and each flushed batch are committed in one transaction.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ava-labs/libevm/common"
	bolt "go.etcd.io/bbolt"

	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

const DefaultPath = "scanner.db"

var (
	bucketMeta      = []byte("meta")
	bucketAddresses = []byte("addresses")

	keyCursor = []byte("cursor")
)

var _ checkpointer.Backend = (*Store)(nil)

// Store is a bbolt-backed checkpoint backend. Addresses are keyed by their
// 20 raw bytes; the value is the cursor of the flush that first wrote them.
type Store struct {
	path    string
	timeout time.Duration

	mu sync.Mutex
	db *bolt.DB
}

// New returns a Store for the database at path. The file is opened by
// Initialize.
func New(path string, lockTimeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, errors.New("invalid path: must not be empty")
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Store{path: path, timeout: lockTimeout}, nil
}

func (s *Store) open() (*bolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db
	return db, nil
}

func (s *Store) Initialize(context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketAddresses} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) ReadCursor(context.Context) (uint64, bool, error) {
	db, err := s.open()
	if err != nil {
		return 0, false, err
	}

	var (
		cursor uint64
		exists bool
	)
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		v := meta.Get(keyCursor)
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt cursor: %d bytes", len(v))
		}
		cursor = binary.BigEndian.Uint64(v)
		exists = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	return cursor, exists, nil
}

func (s *Store) LoadAddresses(ctx context.Context, fn func(string) error) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAddresses)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(k) != common.AddressLength {
				return fn(string(k))
			}
			return fn(common.BytesToAddress(k).Hex())
		})
	})
}

func (s *Store) Write(_ context.Context, cursor uint64, addrs []extractor.Address) error {
	db, err := s.open()
	if err != nil {
		return err
	}

	value := encodeCursor(cursor)
	return db.Update(func(tx *bolt.Tx) error {
		ab, err := tx.CreateBucketIfNotExists(bucketAddresses)
		if err != nil {
			return err
		}
		for _, a := range addrs {
			key := common.HexToAddress(string(a)).Bytes()
			if ab.Get(key) != nil {
				continue
			}
			if err := ab.Put(key, value); err != nil {
				return fmt.Errorf("put address %s: %w", a, err)
			}
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		return meta.Put(keyCursor, value)
	})
}

func (s *Store) Delete(context.Context) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketAddresses} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func encodeCursor(cursor uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, cursor)
	return b
}
