package checkpointer

import "time"

// Config holds the configuration for the checkpoint store.
type Config struct {
	WriteTimeout time.Duration // Timeout for each backend write
	MaxRetries   int           // Retries after a failed write within a single flush
	RetryBackoff time.Duration // Backoff between write retries
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 300 * time.Millisecond,
	}
}
