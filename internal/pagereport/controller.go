package pagereport

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmguest/pagereporting/internal/buddy"
)

// Controller is the reference-counted lifecycle worker that cycles
// fill->report->drain per zone until idle (spec §4.6). It commits to
// exactly one Tracker strategy for its whole lifetime.
type Controller struct {
	cfg     Config
	zones   []*buddy.Zone
	tracker Tracker
	batch   *Batch

	enabled atomic.Bool
	refcnt  atomic.Int32
	device  atomic.Pointer[Device]

	// hwm and maxBatch mirror cfg.HWM/cfg.MaxBatch but are mutated live by
	// ControlSurface, so the hot NotifyFree path reads them without a lock.
	hwm      atomic.Int32
	maxBatch atomic.Int32

	mu            sync.Mutex
	timer         *time.Timer
	workScheduled bool

	startupMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	logger *log.Logger
}

// NewController wires reporting hooks into every zone and returns an idle
// Controller. Call Startup to register a reporter device before any
// reporting activity can occur.
func NewController(zones []*buddy.Zone, opts ...Option) *Controller {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		cfg:    *cfg,
		zones:  zones,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	c.hwm.Store(int32(cfg.HWM))
	c.maxBatch.Store(int32(cfg.MaxBatch))

	if cfg.Strategy == BitmapStrategy {
		c.tracker = &BitmapTracker{MinOrder: cfg.MinOrder}
	} else {
		c.tracker = &BoundaryTracker{MinOrder: cfg.MinOrder}
	}

	for _, z := range zones {
		z.AttachHooks(c, cfg.MinOrder)

		if cfg.Strategy == BitmapStrategy {
			nbits := ((z.EndPFN - z.BasePFN) >> uint(cfg.MinOrder)) + 1
			z.Bitmap = buddy.NewBitset(nbits)
		}
	}

	return c
}

// Refcnt reports the controller's current reference count, for tests and
// diagnostics (spec §8's reference-count invariant).
func (c *Controller) Refcnt() int32 { return c.refcnt.Load() }

// Close stops the controller's background worker without draining any
// registered device. Call Shutdown first if a device is registered.
func (c *Controller) Close() {
	c.cancel()
}

// requestWork increments refcnt for a single zone's transition into
// Requested and, if no work is already scheduled, arms the coalescing
// timer.
func (c *Controller) requestWork() {
	c.refcnt.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.workScheduled {
		return
	}

	c.workScheduled = true

	if c.timer != nil {
		c.timer.Stop()
	}

	c.timer = time.AfterFunc(c.cfg.CoalesceDelay, c.fire)
}

// fire is the worker's entry point: it takes a self-reference, round-robins
// zones with ReportingRequested set running the scanner cycle on each,
// repeating full passes while any zone still made progress, then releases
// its self-reference. If a concurrent request arrived during processing
// (refcnt still positive after the release), it loops immediately instead
// of going idle.
func (c *Controller) fire() {
	select {
	case <-c.ctx.Done():
		return
	default:
	}

	c.mu.Lock()
	c.workScheduled = false
	c.mu.Unlock()

	c.refcnt.Add(1) // worker's self-reference while Running

	for {
		progressed := false

		for _, z := range c.zones {
			z.Lock()
			requested := z.ReportingRequested
			z.Unlock()

			if !requested {
				continue
			}

			c.scanCycle(z)
			progressed = true
		}

		if !progressed {
			break
		}
	}

	if c.refcnt.Add(-1) > 0 {
		c.mu.Lock()

		if !c.workScheduled {
			c.workScheduled = true
			c.timer = time.AfterFunc(0, c.fire)
		}

		c.mu.Unlock()
	}
}

// kick evaluates every eligible order for zone and requests work if any
// crosses HWM, used by Startup to check already-full zones on registration
// (spec §4.5: "kicks an initial request per populated zone").
func (c *Controller) kick(zone *buddy.Zone) {
	zone.Lock()

	requested := false

	for order := c.cfg.MinOrder; order <= buddy.MaxOrder; order++ {
		if c.evaluateLocked(zone, order) {
			requested = true
			break
		}
	}

	zone.Unlock()

	if requested {
		c.requestWork()
	}
}
