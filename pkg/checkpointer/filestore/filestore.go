// Package filestore persists the scan checkpoint as two plain files: a cursor
// file holding a single decimal block number, and an append-only address log
// with one address per line.
package filestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ava-labs/evm-address-scanner/pkg/checkpointer"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
)

const (
	DefaultCursorFile  = "block_num.txt"
	DefaultAddressFile = "eth_address.txt"
)

var _ checkpointer.Backend = (*Store)(nil)

// Store is a file-backed checkpoint backend.
type Store struct {
	cursorPath  string
	addressPath string

	mu  sync.Mutex
	log *os.File // address log opened for append, nil until first write
}

// New returns a Store over the given paths. Nothing is touched until
// Initialize.
func New(cursorPath, addressPath string) (*Store, error) {
	if cursorPath == "" || addressPath == "" {
		return nil, errors.New("invalid paths: cursor and address files are required")
	}
	if filepath.Clean(cursorPath) == filepath.Clean(addressPath) {
		return nil, errors.New("invalid paths: cursor and address files must differ")
	}
	return &Store{cursorPath: cursorPath, addressPath: addressPath}, nil
}

func (s *Store) Initialize(context.Context) error {
	for _, p := range []string{s.cursorPath, s.addressPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) ReadCursor(context.Context) (uint64, bool, error) {
	b, err := os.ReadFile(s.cursorPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor file: %w", err)
	}
	cursor, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor file %s: %w", s.cursorPath, err)
	}
	return cursor, true, nil
}

func (s *Store) LoadAddresses(ctx context.Context, fn func(string) error) error {
	f, err := os.Open(s.addressPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open address log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read address log: %w", err)
	}
	return nil
}

// Write appends the batch to the address log and syncs it before replacing
// the cursor file.
func (s *Store) Write(_ context.Context, cursor uint64, addrs []extractor.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(addrs) > 0 {
		if err := s.appendAddresses(addrs); err != nil {
			return err
		}
	}
	return s.replaceCursor(cursor)
}

func (s *Store) appendAddresses(addrs []extractor.Address) error {
	var sb strings.Builder
	if s.log == nil {
		f, err := os.OpenFile(s.addressPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open address log: %w", err)
		}
		torn, err := endsMidLine(f)
		if err != nil {
			f.Close()
			return err
		}
		// A crash mid-append can leave a partial last line; terminate it so the
		// next address starts on a line of its own.
		if torn {
			sb.WriteByte('\n')
		}
		s.log = f
	}

	for _, a := range addrs {
		sb.WriteString(string(a))
		sb.WriteByte('\n')
	}
	if _, err := s.log.WriteString(sb.String()); err != nil {
		return fmt.Errorf("append address log: %w", err)
	}
	if err := s.log.Sync(); err != nil {
		return fmt.Errorf("sync address log: %w", err)
	}
	return nil
}

// endsMidLine reports whether f is non-empty and its last byte is not a newline.
func endsMidLine(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat address log: %w", err)
	}
	if fi.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return false, fmt.Errorf("read address log tail: %w", err)
	}
	return last[0] != '\n', nil
}

func (s *Store) replaceCursor(cursor uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.cursorPath), filepath.Base(s.cursorPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cursor file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.WriteString(strconv.FormatUint(cursor, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cursor file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cursor file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cursor file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.cursorPath); err != nil {
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}

func (s *Store) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log != nil {
		s.log.Close()
		s.log = nil
	}
	var errs []error
	for _, p := range []string{s.cursorPath, s.addressPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log == nil {
		return nil
	}
	err := s.log.Close()
	s.log = nil
	return err
}
