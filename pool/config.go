package pool

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// Timeouts bound the individual steps of Get. Zero means no limit.
type Timeouts struct {
	Wait    time.Duration `yaml:"wait"`
	Create  time.Duration `yaml:"create"`
	Recycle time.Duration `yaml:"recycle"`
}

// Config sizes the pool and bounds how long callers wait.
type Config struct {
	MaxSize     int           `yaml:"max_size"`
	Timeouts    Timeouts      `yaml:"timeouts"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns a Config sized at four objects per CPU.
func DefaultConfig() Config {
	return Config{
		MaxSize: runtime.NumCPU() * 4,
	}
}

// Validate reports whether c can build a pool.
func (c Config) Validate() error {
	if c.MaxSize < 1 {
		return fmt.Errorf("%w: max size must be at least 1", ErrInvalidConfiguration)
	}
	if c.Timeouts.Wait < 0 || c.Timeouts.Create < 0 || c.Timeouts.Recycle < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfiguration)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

type settings struct {
	config       Config
	logger       *slog.Logger
	reapInterval time.Duration
}

// Option configures a Pool
type Option func(*settings)

// WithConfig replaces the whole pool configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithMaxSize sets the maximum pool size
func WithMaxSize(size int) Option {
	return func(s *settings) {
		s.config.MaxSize = size
	}
}

// WithTimeouts sets the wait, create and recycle timeouts
func WithTimeouts(timeouts Timeouts) Option {
	return func(s *settings) {
		s.config.Timeouts = timeouts
	}
}

// WithIdleTimeout evicts objects that sat idle longer than timeout
func WithIdleTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.config.IdleTimeout = timeout
	}
}

// WithReapInterval sets how often idle objects are checked for eviction
func WithReapInterval(interval time.Duration) Option {
	return func(s *settings) {
		s.reapInterval = interval
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}
