package pagereport

import (
	"io"
	"log"
	"time"
)

// Strategy selects the tracker implementation a Controller commits to for
// its whole lifetime, per spec's "must commit to one" rule.
type Strategy int

const (
	// BoundaryStrategy tracks unreported pages via the free-list boundary
	// partition. Lower steady-state memory overhead; the default.
	BoundaryStrategy Strategy = iota

	// BitmapStrategy tracks unreported pages via a per-zone PFN bitmap at
	// MinOrder granularity. Simpler to test in isolation; tolerates
	// allocator-level races at the cost of per-zone memory proportional to
	// managed RAM / MinOrder.
	BitmapStrategy
)

func (s Strategy) String() string {
	switch s {
	case BoundaryStrategy:
		return "boundary"
	case BitmapStrategy:
		return "bitmap"
	default:
		return "unknown"
	}
}

// Config tunes a Controller. Construct via defaultConfig and zero or more
// Option values, mirroring internal/allocator.Config/Option.
type Config struct {
	MinOrder      int
	HWM           int
	MaxBatch      int
	CoalesceDelay time.Duration
	Strategy      Strategy
	Logger        *log.Logger
}

// Option mutates a Config at Controller construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		MinOrder:      9,
		HWM:           32,
		MaxBatch:      16,
		CoalesceDelay: 100 * time.Millisecond,
		Strategy:      BoundaryStrategy,
		Logger:        log.New(io.Discard, "", 0),
	}
}

// WithMinOrder sets the smallest free-list order eligible for reporting.
func WithMinOrder(order int) Option {
	return func(c *Config) { c.MinOrder = order }
}

// WithHWM sets the per-order unreported-page threshold that triggers a
// reporting request.
func WithHWM(hwm int) Option {
	return func(c *Config) { c.HWM = hwm }
}

// WithMaxBatch sets the maximum pages handed to a single react call.
func WithMaxBatch(max int) Option {
	return func(c *Config) { c.MaxBatch = max }
}

// WithCoalesceDelay sets the scheduling delay from first request to worker
// start.
func WithCoalesceDelay(d time.Duration) Option {
	return func(c *Config) { c.CoalesceDelay = d }
}

// WithStrategy selects the tracker strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Config) { c.Strategy = s }
}

// WithLogger installs a logger for lifecycle transitions (start, stop,
// device registration, config reload). The hot path never logs.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
