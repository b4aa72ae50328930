package scratchpad

import (
	"crypto/rand"
	"io"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/keyring"
)

// Config holds builder and inspector settings.
type Config struct {
	// ProgressCallback is called as the builder advances (optional)
	ProgressCallback ProgressCallback

	// Logger receives debug output; defaults to a no-op logger
	Logger *zap.Logger

	// Random supplies the secure header and signature nonces
	Random io.Reader

	// CounterOrder is how the target increments the AES-CTR counter
	CounterOrder keyring.CounterOrder

	// CompressionLevel is the zlib level for compressible files
	CompressionLevel int
}

func defaultConfig() Config {
	return Config{
		Logger:           zap.NewNop(),
		Random:           rand.Reader,
		CounterOrder:     keyring.CounterLittleEndian,
		CompressionLevel: zlib.BestCompression,
	}
}

func newConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Builder or Parse.
type Option func(*Config)

// WithProgressCallback sets a callback to track building.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets the logger.
//
// Example:
//
//	logger, _ := zap.NewDevelopment()
//	b, err := scratchpad.NewBuilder(key, scratchpad.WithLogger(logger))
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithRandom replaces crypto/rand, for reproducible output in tests.
func WithRandom(r io.Reader) Option {
	return func(c *Config) {
		if r != nil {
			c.Random = r
		}
	}
}

// WithCounterOrder sets the AES-CTR counter order of the target. The layout's
// platform section decides it:
//
//	scratchpad.WithCounterOrder(l.CounterOrder())
func WithCounterOrder(order keyring.CounterOrder) Option {
	return func(c *Config) {
		c.CounterOrder = order
	}
}

// WithCompressionLevel sets the zlib level, 1..9. Out-of-range values are
// ignored.
func WithCompressionLevel(level int) Option {
	return func(c *Config) {
		if level >= zlib.BestSpeed && level <= zlib.BestCompression {
			c.CompressionLevel = level
		}
	}
}
