package pagereport

import "errors"

// Sentinel errors returned by Startup and Shutdown. IsolationRejected and
// StalePage conditions are recovered internally by the scanner and never
// surfaced here. The original kernel taxonomy this subsystem is modeled on
// also has an out-of-memory case (batch/bitmap storage allocation failing),
// but Go's `make`/`append` have no recoverable error path for that — an
// allocation failure is a fatal runtime error, not a value Startup could
// return — so no ErrOutOfMemory sentinel exists here.
var (
	// ErrBusy is returned by Startup when a device is already registered.
	ErrBusy = errors.New("pagereport: a reporter device is already registered")

	// ErrInvalidArgument is returned by Startup when the device descriptor
	// is malformed: zero capacity, or a protocol version that fails the
	// caller-supplied version constraint.
	ErrInvalidArgument = errors.New("pagereport: invalid device configuration")
)
