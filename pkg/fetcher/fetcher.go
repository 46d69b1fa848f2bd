package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ava-labs/evm-address-scanner/internal/chainclient"
	"github.com/ava-labs/evm-address-scanner/internal/types"
	"github.com/ava-labs/evm-address-scanner/pkg/metrics"
)

// ErrFetch matches every *FetchError.
var ErrFetch = errors.New("block fetch failed")

var (
	ErrInvalidLogger      = errors.New("invalid logger: must not be nil")
	ErrInvalidPool        = errors.New("invalid endpoint pool: must not be nil")
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be greater than 0")
	ErrInvalidRetryDelay  = errors.New("invalid retry delay: must not be negative")
)

// FetchError is returned once every attempt for a block has failed.
type FetchError struct {
	Block    uint64
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch block %d failed after %d attempts: %v", e.Block, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Pool hands out the endpoint to use for the next attempt.
type Pool interface {
	Next() chainclient.Client
}

// Config holds the retry policy of the fetcher.
type Config struct {
	MaxAttempts int           // Attempts per block, each on the next endpoint
	RetryDelay  time.Duration // Pause between attempts, not applied after the last one
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  3 * time.Second,
	}
}

// Fetcher retrieves full blocks, rotating endpoints between attempts.
type Fetcher struct {
	pool    Pool
	cfg     Config
	log     *zap.SugaredLogger
	limiter *rate.Limiter    // nil if unlimited
	metrics *metrics.Metrics // nil if metrics disabled
	sleep   func(context.Context, time.Duration) error
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithRateLimiter gates every attempt on the limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithMetrics enables metrics collection for the fetcher.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

func New(pool Pool, cfg Config, log *zap.SugaredLogger, opts ...Option) (*Fetcher, error) {
	if pool == nil {
		return nil, ErrInvalidPool
	}
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if cfg.MaxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		return nil, ErrInvalidRetryDelay
	}

	f := &Fetcher{
		pool:  pool,
		cfg:   cfg,
		log:   log,
		sleep: sleep,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch returns block n. A nil block or one carrying a different number counts
// as a failed attempt. Cancellation returns ctx.Err() as is.
func (f *Fetcher) Fetch(ctx context.Context, n uint64) (*types.Block, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, &FetchError{Block: n, Attempts: attempt - 1, Err: fmt.Errorf("wait for rate limiter: %w", err)}
			}
		}

		ep := f.pool.Next()
		block, err := ep.BlockByNumber(ctx, n)
		if err == nil {
			err = checkBlock(block, n)
		}
		if err == nil {
			f.metrics.RecordFetchAttempt(nil)
			return block, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		f.metrics.RecordFetchAttempt(err)
		lastErr = fmt.Errorf("%s: %w", ep.URL(), err)
		f.log.Warnw("block fetch attempt failed",
			"block", n,
			"attempt", attempt,
			"maxAttempts", f.cfg.MaxAttempts,
			"url", ep.URL(),
			"error", err,
		)

		if attempt < f.cfg.MaxAttempts {
			if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, &FetchError{Block: n, Attempts: f.cfg.MaxAttempts, Err: lastErr}
}

func checkBlock(block *types.Block, n uint64) error {
	if block == nil {
		return chainclient.ErrBlockNotFound
	}
	if block.Number != n {
		return fmt.Errorf("endpoint returned block %d, want %d", block.Number, n)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
