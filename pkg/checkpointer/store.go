package checkpointer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
)

// Store owns the in-memory address set, the batch of addresses discovered
// since the last flush, and the last durably written cursor. It is driven by
// a single goroutine and is not safe for concurrent use.
type Store struct {
	backend   Backend
	cfg       Config
	log       *zap.SugaredLogger
	publisher Publisher        // nil if publishing disabled
	metrics   *metrics.Metrics // nil if metrics disabled

	startCursor uint64 // 0 if the persisted cursor is used

	set         map[extractor.Address]struct{}
	pending     []extractor.Address
	lastFlushed uint64
	loaded      bool
}

// Option configures the Store.
type Option func(*Store)

// WithPublisher hands every flushed batch to p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithMetrics enables metrics collection for the store.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithStartCursor makes Load ignore the persisted cursor and resume from
// cursor instead. Zero leaves the persisted cursor in effect.
func WithStartCursor(cursor uint64) Option {
	return func(s *Store) {
		s.startCursor = cursor
	}
}

func NewStore(backend Backend, cfg Config, log *zap.SugaredLogger, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, ErrInvalidBackend
	}
	if log == nil {
		return nil, ErrInvalidLogger
	}

	s := &Store{
		backend: backend,
		cfg:     cfg,
		log:     log,
		set:     make(map[extractor.Address]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load restores the cursor and the address set. A missing or unreadable
// cursor falls back to one above the chain head; an unreadable address log
// leaves the set empty. Only a failure to prepare the backend or to query the
// head is returned.
func (s *Store) Load(ctx context.Context, head HeadSource) (uint64, error) {
	if err := s.backend.Initialize(ctx); err != nil {
		return 0, &PersistenceError{Op: "initialize", Err: err}
	}

	cursor, err := s.resolveCursor(ctx, head)
	if err != nil {
		return 0, err
	}

	set := make(map[extractor.Address]struct{})
	invalid := 0
	err = s.backend.LoadAddresses(ctx, func(raw string) error {
		addr, ok := extractor.Normalize(raw)
		if !ok {
			invalid++
			return nil
		}
		set[addr] = struct{}{}
		return nil
	})
	if err != nil {
		s.metrics.IncError(metrics.ErrTypeLoad)
		s.log.Errorw("failed to load persisted addresses, starting with an empty set", "error", err)
		set = make(map[extractor.Address]struct{})
	}
	if invalid > 0 {
		s.log.Warnw("skipped invalid persisted addresses", "count", invalid)
	}

	s.set = set
	s.pending = nil
	s.lastFlushed = cursor
	s.loaded = true

	s.metrics.SetCursor(cursor)
	s.metrics.UpdateStoreMetrics(len(s.set), 0)
	s.log.Infow("checkpoint loaded", "cursor", cursor, "addresses", len(s.set))

	return cursor, nil
}

func (s *Store) resolveCursor(ctx context.Context, head HeadSource) (uint64, error) {
	if s.startCursor > 0 {
		s.log.Infow("using configured start cursor", "cursor", s.startCursor)
		return s.startCursor, nil
	}

	cursor, exists, err := s.backend.ReadCursor(ctx)
	switch {
	case err != nil:
		s.metrics.IncError(metrics.ErrTypeLoad)
		s.log.Warnw("persisted cursor unreadable, starting from chain head", "error", err)
	case exists:
		return cursor, nil
	default:
		s.log.Infow("no persisted cursor, starting from chain head")
	}

	if head == nil {
		return 0, fmt.Errorf("query chain head: no head source")
	}
	cursor, err = head.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("query chain head: %w", err)
	}
	// The cursor is the last block handled, so sit one above the head to
	// have the head block itself scanned first.
	return cursor + 1, nil
}

// Record adds addr to the set and reports whether it was new. New addresses
// are queued for the next flush.
func (s *Store) Record(addr extractor.Address) bool {
	if _, ok := s.set[addr]; ok {
		return false
	}
	s.set[addr] = struct{}{}
	s.pending = append(s.pending, addr)
	return true
}

// Flush durably writes the pending batch and cursor. The batch is kept on
// failure so the next flush retries it.
func (s *Store) Flush(ctx context.Context, cursor uint64) error {
	if !s.loaded {
		return ErrNotLoaded
	}
	if cursor > s.lastFlushed {
		return fmt.Errorf("%w: %d after %d", ErrCursorRegression, cursor, s.lastFlushed)
	}
	if cursor == s.lastFlushed && len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	if err := s.writeWithRetry(ctx, cursor, batch); err != nil {
		s.metrics.RecordFlush(err)
		return &PersistenceError{Op: "flush", Cursor: cursor, Err: err}
	}

	s.pending = nil
	s.lastFlushed = cursor
	s.metrics.RecordFlush(nil)
	s.metrics.SetCursor(cursor)
	s.metrics.UpdateStoreMetrics(len(s.set), 0)

	if s.publisher != nil && len(batch) > 0 {
		if err := s.publisher.PublishBatch(ctx, cursor, batch); err != nil {
			s.metrics.IncError(metrics.ErrTypePublish)
			s.log.Errorw("failed to publish flushed addresses", "cursor", cursor, "count", len(batch), "error", err)
		}
	}
	return nil
}

func (s *Store) writeWithRetry(ctx context.Context, cursor uint64, batch []extractor.Address) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = s.write(ctx, cursor, batch)
		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.log.Warnw("checkpoint write failed", "cursor", cursor, "attempt", attempt+1, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt < s.cfg.MaxRetries {
			select {
			case <-time.After(s.cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

func (s *Store) write(ctx context.Context, cursor uint64, batch []extractor.Address) error {
	if s.cfg.WriteTimeout <= 0 {
		return s.backend.Write(ctx, cursor, batch)
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return s.backend.Write(writeCtx, cursor, batch)
}

// Cursor returns the last durably written cursor.
func (s *Store) Cursor() uint64 { return s.lastFlushed }

// Len returns the number of distinct known addresses.
func (s *Store) Len() int { return len(s.set) }

// Pending returns the number of addresses awaiting a flush.
func (s *Store) Pending() int { return len(s.pending) }

// Contains reports whether addr is known.
func (s *Store) Contains(addr extractor.Address) bool {
	_, ok := s.set[addr]
	return ok
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
