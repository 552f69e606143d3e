package pagereport

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/vmguest/pagereporting/internal/buddy"
)

// Device is the externally supplied reporter descriptor (spec §3): a
// callback, a batch-capacity hint, and a protocol version the guest checks
// before registering it. At most one Device is registered at a time.
type Device struct {
	// React is called outside any zone lock with a filled batch. It may
	// block; it must not re-enter the allocator in a way that re-acquires
	// the zone lock React was called without.
	React func(batch *Batch)

	// Capacity bounds the number of pages in a single React call. Startup
	// fails with ErrInvalidArgument if Capacity is not positive.
	Capacity int

	// ProtocolVersion is checked against the Constraints passed to
	// Startup, if any — a guest refuses to register a reporter whose wire
	// protocol it cannot speak.
	ProtocolVersion string
}

// Startup registers device as the active reporter. It fails with ErrBusy
// if a device is already registered, or ErrInvalidArgument if Capacity is
// non-positive or ProtocolVersion fails constraints (a nil constraints
// skips the version check). On success it allocates batch storage,
// resets the reference counter, installs the device under RCU-style
// publication — the enable flag is set strictly after the device pointer
// is stored — and checks every zone for already-crossed thresholds.
func (c *Controller) Startup(device *Device, constraints *semver.Constraints) error {
	c.startupMu.Lock()
	defer c.startupMu.Unlock()

	if c.device.Load() != nil {
		return ErrBusy
	}

	if device.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, device.Capacity)
	}

	if constraints != nil {
		v, err := semver.NewVersion(device.ProtocolVersion)
		if err != nil {
			return fmt.Errorf("%w: invalid protocol version %q: %v", ErrInvalidArgument, device.ProtocolVersion, err)
		}

		if !constraints.Check(v) {
			return fmt.Errorf("%w: protocol version %s does not satisfy %s", ErrInvalidArgument, v, constraints)
		}
	}

	c.batch = NewBatch(device.Capacity)
	c.refcnt.Store(0)
	c.device.Store(device)
	c.enabled.Store(true)

	c.logger.Printf("pagereport: device registered, protocol=%s capacity=%d", device.ProtocolVersion, device.Capacity)

	for _, z := range c.zones {
		c.kick(z)
	}

	return nil
}

// Shutdown disables the global flag, waits for in-flight work to drain
// (refcnt returns to zero), tears down per-zone reporting state, and
// unregisters the device. Idempotent: a call with no device registered is
// a no-op.
func (c *Controller) Shutdown() error {
	c.startupMu.Lock()
	defer c.startupMu.Unlock()

	if c.device.Load() == nil {
		return nil
	}

	c.enabled.Store(false)

	for c.refcnt.Load() != 0 {
		time.Sleep(time.Millisecond)
	}

	for _, z := range c.zones {
		c.teardown(z)
	}

	c.device.Store(nil)
	c.batch = nil

	c.logger.Printf("pagereport: device unregistered")

	return nil
}

// teardown clears all reporting state for zone: pending request, active
// flag, boundary pointers, and the Reported flag on every still-free page,
// so a subsequent Startup begins from a clean slate.
func (c *Controller) teardown(zone *buddy.Zone) {
	zone.Lock()
	defer zone.Unlock()

	zone.ReportingRequested = false
	zone.ReportingActive = false
	zone.ClearAllReported()

	for order := range zone.Boundary {
		for mt := range zone.Boundary[order] {
			zone.Boundary[order][mt] = nil
		}
	}
}
