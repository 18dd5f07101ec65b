// Package console provides the in-process mock medium. Each backend serves
// one device type from a configurable fixture list and keeps all capability
// state in memory, so an entire fleet can be swapped from real hardware to
// headless mocks without any change to calling code.
package console

import (
	"context"
	"fmt"
	"sync"

	"botlink/backend"
	"botlink/board"
	"botlink/capability"
)

// LogFunc receives a line for every effectful capability call. Nil disables
// logging.
type LogFunc func(format string, args ...interface{})

// Fixture describes one simulated unit.
type Fixture struct {
	Serial   string `yaml:"serial"`
	Firmware string `yaml:"firmware"`
}

// Backend is the console backend for a single device type.
type Backend struct {
	deviceType board.DeviceType
	kinds      []capability.Kind

	mu          sync.Mutex
	fixtures    map[string]Fixture
	sessions    map[string]*session
	minFirmware string
	discoverErr error
	closed      bool
	logf        LogFunc
}

// NewBackend creates a console backend serving the given device type with
// the given simulated units.
func NewBackend(t board.DeviceType, fixtures []Fixture) *Backend {
	b := &Backend{
		deviceType: t,
		kinds:      DefaultKinds(t),
		fixtures:   make(map[string]Fixture, len(fixtures)),
		sessions:   make(map[string]*session),
	}
	for _, f := range fixtures {
		b.fixtures[f.Serial] = f
	}
	return b
}

// DefaultKinds returns the capability kinds the console medium advertises
// for a device type. Mirrors what the serial hardware boards expose.
func DefaultKinds(t board.DeviceType) []capability.Kind {
	switch t {
	case board.TypePowerBoard:
		return []capability.Kind{capability.KindPowerOutput, capability.KindLED, capability.KindBattery}
	case board.TypeMotorBoard:
		return []capability.Kind{capability.KindMotor, capability.KindLED}
	case board.TypeServoBoard:
		return []capability.Kind{capability.KindServo, capability.KindLED}
	case board.TypeIOBoard:
		return []capability.Kind{capability.KindDigitalInput, capability.KindLED}
	}
	return nil
}

// SetLogFunc installs a logger for effectful capability calls.
func (b *Backend) SetLogFunc(logf LogFunc) {
	b.mu.Lock()
	b.logf = logf
	b.mu.Unlock()
}

// SetMinFirmware installs a minimum supported firmware version; units below
// it fail Bind with board.ErrFirmwareMismatch. Empty disables the gate.
func (b *Backend) SetMinFirmware(version string) {
	b.mu.Lock()
	b.minFirmware = version
	b.mu.Unlock()
}

// SetDiscoverError forces Discover to fail, simulating an unavailable
// transport. Nil clears the fault.
func (b *Backend) SetDiscoverError(err error) {
	b.mu.Lock()
	b.discoverErr = err
	b.mu.Unlock()
}

// AddFixture plugs in a simulated unit. Subsequent discovery passes report it.
func (b *Backend) AddFixture(f Fixture) {
	b.mu.Lock()
	b.fixtures[f.Serial] = f
	b.mu.Unlock()
}

// RemoveFixture unplugs a simulated unit. Any bound session is dropped.
func (b *Backend) RemoveFixture(serial string) {
	b.mu.Lock()
	delete(b.fixtures, serial)
	delete(b.sessions, serial)
	b.mu.Unlock()
}

// Medium implements backend.Backend.
func (b *Backend) Medium() string { return backend.MediumConsole }

// DeviceTypes implements backend.Backend.
func (b *Backend) DeviceTypes() []board.DeviceType {
	return []board.DeviceType{b.deviceType}
}

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities(t board.DeviceType) []capability.Kind {
	if t != b.deviceType {
		return nil
	}
	kinds := make([]capability.Kind, len(b.kinds))
	copy(kinds, b.kinds)
	return kinds
}

// Discover implements backend.Backend. It returns a descriptor per fixture;
// map iteration leaves the order unspecified, the resolver sorts.
func (b *Backend) Discover(ctx context.Context) ([]board.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("%w: console backend closed", board.ErrMediumUnavailable)
	}
	if b.discoverErr != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrMediumUnavailable, b.discoverErr)
	}

	descs := make([]board.Descriptor, 0, len(b.fixtures))
	for _, f := range b.fixtures {
		descs = append(descs, board.Descriptor{
			Type:     b.deviceType,
			Serial:   f.Serial,
			Firmware: f.Firmware,
		})
	}
	return descs, nil
}

// Bind implements backend.Backend. Sessions are reused per serial.
func (b *Backend) Bind(ctx context.Context, d board.Descriptor) (backend.CapabilitySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, board.WrapDevice(d, board.ErrMediumUnavailable)
	}
	if d.Type != b.deviceType {
		return nil, board.WrapDevice(d, board.ErrUnknownDeviceType)
	}

	fixture, present := b.fixtures[d.Serial]
	if !present {
		return nil, board.WrapDevice(d, board.ErrDeviceNotPresent)
	}
	if b.minFirmware != "" && board.CompareFirmware(fixture.Firmware, b.minFirmware) < 0 {
		return nil, board.WrapDevice(d, fmt.Errorf("%w: have %s, need at least %s",
			board.ErrFirmwareMismatch, fixture.Firmware, b.minFirmware))
	}

	sess, ok := b.sessions[d.Serial]
	if !ok {
		sess = newSession(b, d)
		b.sessions[d.Serial] = sess
	}
	return sess.capabilitySet(b.kinds), nil
}

// Release implements backend.Backend.
func (b *Backend) Release(d board.Descriptor) error {
	b.mu.Lock()
	delete(b.sessions, d.Serial)
	b.mu.Unlock()
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.sessions = make(map[string]*session)
	b.closed = true
	b.mu.Unlock()
	return nil
}

// SessionCount reports the number of live sessions. Used by tests to verify
// bind idempotence.
func (b *Backend) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

func (b *Backend) log(format string, args ...interface{}) {
	b.mu.Lock()
	logf := b.logf
	b.mu.Unlock()
	if logf != nil {
		logf(format, args...)
	}
}
