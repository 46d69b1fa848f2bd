// Package scanner walks the chain from a starting cursor down to the floor,
// feeding every block's addresses into the checkpoint store.
//
// The cursor is the last block handled, whether processed or skipped; the
// next block is always cursor-1. A single goroutine drives fetch, extract,
// record and flush in strictly descending order.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/evm-address-scanner/internal/types"
	"github.com/ava-labs/evm-address-scanner/pkg/extractor"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
)

// State is the lifecycle state of a scan.
type State int

const (
	StateRunning State = iota
	StateInterrupted
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateInterrupted:
		return "interrupted"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Fetcher retrieves a single block.
type Fetcher interface {
	Fetch(ctx context.Context, n uint64) (*types.Block, error)
}

// Store deduplicates addresses and persists progress.
type Store interface {
	Record(addr extractor.Address) bool
	Flush(ctx context.Context, cursor uint64) error
	Len() int
	Pending() int
}

var (
	ErrInvalidLogger     = errors.New("invalid logger: must not be nil")
	ErrInvalidFetcher    = errors.New("invalid fetcher: must not be nil")
	ErrInvalidStore      = errors.New("invalid store: must not be nil")
	ErrInvalidFlushEvery = errors.New("invalid flush interval: must be greater than 0")
)

// FailedError is returned by Run when too many consecutive blocks were skipped.
type FailedError struct {
	Block       uint64 // last block that failed
	Consecutive int
	Err         error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("scan failed at block %d after %d consecutive failures: %v", e.Block, e.Consecutive, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Config holds the configuration of the scan loop.
type Config struct {
	Floor                  uint64        // Exclusive lower bound; the last block scanned is Floor+1
	FlushEvery             uint64        // Successfully processed blocks between checkpoints
	RetryDelay             time.Duration // Pause after skipping a block
	MaxConsecutiveFailures int           // Consecutive skipped blocks that fail the scan, 0 disables
	FinalFlushTimeout      time.Duration // Bound on the checkpoint written at exit
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Floor:             1,
		FlushEvery:        1000,
		RetryDelay:        3 * time.Second,
		FinalFlushTimeout: 30 * time.Second,
	}
}

// Result summarizes a finished scan.
type Result struct {
	State     State
	Cursor    uint64
	Processed uint64
	Skipped   uint64
	Addresses int
	Elapsed   time.Duration
}

// Scanner runs the descending scan loop.
type Scanner struct {
	fetcher Fetcher
	store   Store
	cfg     Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics // nil if metrics disabled
}

// Option configures the Scanner.
type Option func(*Scanner)

// WithMetrics enables metrics collection for the scanner.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

func New(fetcher Fetcher, store Store, cfg Config, log *zap.SugaredLogger, opts ...Option) (*Scanner, error) {
	if fetcher == nil {
		return nil, ErrInvalidFetcher
	}
	if store == nil {
		return nil, ErrInvalidStore
	}
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if cfg.FlushEvery == 0 {
		return nil, ErrInvalidFlushEvery
	}

	s := &Scanner{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run scans blocks start-1 down to Floor+1. Cancelling ctx interrupts the
// scan; the block in flight is abandoned. A final checkpoint is written on
// every exit path. The returned error is non-nil only in StateFailed.
func (s *Scanner) Run(ctx context.Context, start uint64) (Result, error) {
	began := time.Now()
	res := Result{State: StateRunning, Cursor: start}

	s.log.Infow("scan started", "cursor", start, "floor", s.cfg.Floor, "addresses", s.store.Len())

	var (
		failErr     error
		consecutive int
		streakStart uint64 // cursor before the current run of skipped blocks
	)

	for res.State == StateRunning {
		if res.Cursor <= s.cfg.Floor+1 {
			res.State = StateCompleted
			break
		}
		if ctx.Err() != nil {
			res.State = StateInterrupted
			break
		}

		n := res.Cursor - 1
		blockStart := time.Now()
		block, err := s.fetcher.Fetch(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				res.State = StateInterrupted
				break
			}

			if consecutive == 0 {
				streakStart = res.Cursor
			}
			consecutive++
			res.Skipped++
			s.metrics.BlockSkipped()
			s.log.Errorw("failed to process block, skipping", "block", n, "error", err)

			if s.cfg.MaxConsecutiveFailures > 0 && consecutive >= s.cfg.MaxConsecutiveFailures {
				// Leave the failed run unhandled so a restart retries it.
				res.Cursor = streakStart
				res.State = StateFailed
				failErr = &FailedError{Block: n, Consecutive: consecutive, Err: err}
				break
			}

			res.Cursor = n
			s.metrics.SetCursor(n)
			if err := sleep(ctx, s.cfg.RetryDelay); err != nil {
				res.State = StateInterrupted
			}
			continue
		}

		newAddrs := 0
		for _, addr := range extractor.Extract(block) {
			if s.store.Record(addr) {
				newAddrs++
			}
		}
		res.Cursor = n
		res.Processed++
		consecutive = 0
		s.metrics.BlockProcessed(newAddrs, time.Since(blockStart).Seconds())
		s.metrics.SetCursor(n)

		if res.Processed%s.cfg.FlushEvery == 0 {
			if err := s.store.Flush(ctx, res.Cursor); err != nil {
				s.log.Errorw("failed to save checkpoint", "cursor", res.Cursor, "pending", s.store.Pending(), "error", err)
			}
			s.logProgress(res, time.Since(began))
		}
	}

	switch res.State {
	case StateInterrupted:
		s.log.Infow("scanning interrupted", "cursor", res.Cursor)
	case StateFailed:
		s.log.Errorw("scan failed", "cursor", res.Cursor, "error", failErr)
	default:
		s.log.Infow("scan completed", "cursor", res.Cursor)
	}

	s.finalFlush(ctx, res.Cursor)

	res.Addresses = s.store.Len()
	res.Elapsed = time.Since(began)
	s.log.Infow("scan finished",
		"state", res.State.String(),
		"cursor", res.Cursor,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"addresses", res.Addresses,
		"elapsed", res.Elapsed,
	)
	return res, failErr
}

// finalFlush runs detached from ctx cancellation so an interrupt still
// persists progress.
func (s *Scanner) finalFlush(ctx context.Context, cursor uint64) {
	flushCtx := context.WithoutCancel(ctx)
	if s.cfg.FinalFlushTimeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(flushCtx, s.cfg.FinalFlushTimeout)
		defer cancel()
	}

	if err := s.store.Flush(flushCtx, cursor); err != nil {
		s.log.Errorw("failed to save final checkpoint", "cursor", cursor, "pending", s.store.Pending(), "error", err)
		return
	}
	s.log.Infow("final checkpoint saved", "cursor", cursor)
}

func (s *Scanner) logProgress(res Result, elapsed time.Duration) {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(res.Processed) / secs
	}
	s.metrics.UpdateStoreMetrics(s.store.Len(), s.store.Pending())
	s.log.Infow("progress",
		"cursor", res.Cursor,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"blocksPerSecond", fmt.Sprintf("%.2f", rate),
		"addresses", s.store.Len(),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
