package buffer

import "log/slog"

// Config configures the buffer pool manager
type Config struct {
	// NumBuffers is the number of page-sized buffers in the pool.
	// it must be at least 1.
	NumBuffers int
	// Table overrides the buffer table implementation.
	// nil means the default hash table sized for NumBuffers.
	Table Table
	// Logger is used for the pool's own logging.
	// nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration: a 1MB pool with the
// default buffer table
func DefaultConfig() Config {
	return Config{NumBuffers: DefaultNumBuffers}
}
