// Package backend defines the discovery and binding contract a hardware
// abstraction implements for one execution medium, and the Medium registry
// that maps each device type to exactly one backend within that medium.
package backend

import (
	"context"

	"botlink/board"
	"botlink/capability"
)

// CapabilitySet is the bundle of live capability implementations a backend
// produces when binding a descriptor. Keys are capability kinds; values are
// the concrete implementations (capability.Motor, capability.LED, ...).
type CapabilitySet map[capability.Kind]any

// Backend implements one or more capabilities for a (device type, medium)
// pair. A backend is stateful: it owns the transport sessions to the units it
// has bound. It is constructed once per medium activation and closed when the
// resolver shuts down.
type Backend interface {
	// Medium names the communication context this backend belongs to.
	Medium() string

	// DeviceTypes lists the device types this backend can discover.
	DeviceTypes() []board.DeviceType

	// Capabilities returns the closed set of capability kinds this backend
	// implements for a device type. The set is fixed at construction so the
	// resolver can validate it at activation rather than at first call.
	Capabilities(t board.DeviceType) []capability.Kind

	// Discover scans the medium and returns every unit currently observable.
	// Nothing found is not an error: it returns an empty slice. A transport
	// that cannot be queried at all fails with board.ErrMediumUnavailable.
	// Discovery may be invoked repeatedly and is idempotent with respect to
	// already-bound units.
	Discover(ctx context.Context) ([]board.Descriptor, error)

	// Bind establishes (or reuses) a session for a previously discovered
	// descriptor and returns the live capability implementations. Binding the
	// same descriptor twice within one backend lifetime returns the same
	// logical session. Fails with board.ErrDeviceNotPresent if the unit
	// vanished since discovery, board.ErrFirmwareMismatch if its firmware is
	// outside the supported range. A failed bind leaves no partially opened
	// session behind.
	Bind(ctx context.Context, d board.Descriptor) (CapabilitySet, error)

	// Release closes the session for one descriptor. Releasing an unbound
	// descriptor is a no-op.
	Release(d board.Descriptor) error

	// Close releases every session and the underlying transport.
	Close() error
}

// Factory constructs a backend instance. Factories are registered on a
// Medium and invoked by the resolver at activation time.
type Factory func() (Backend, error)
