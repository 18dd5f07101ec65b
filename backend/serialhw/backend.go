package serialhw

import (
	"context"
	"fmt"
	"sync"

	"botlink/backend"
	"botlink/board"
	"botlink/capability"
	"botlink/logging"
)

// BoardSpec describes how one board family appears on the bus and what it
// can do once bound.
type BoardSpec struct {
	Type        board.DeviceType
	Kinds       []capability.Kind
	MinFirmware string
	// Match identifies this family's USB endpoints, normally by VID/PID.
	Match func(PortInfo) bool
}

// Backend drives one board family over USB serial. It owns the open serial
// sessions; devices hold non-owning handles that forward through it.
type Backend struct {
	spec   BoardSpec
	enum   Enumerator
	opener Opener
	baud   int

	mu       sync.Mutex
	sessions map[string]*session // serial -> open session
	devices  map[string]string   // serial -> device path, from last discovery
	firmware map[string]string   // serial -> probed firmware
	closed   bool
}

// NewBackend creates a serial backend for one board family.
func NewBackend(spec BoardSpec, enum Enumerator, opener Opener, baud int) *Backend {
	if baud <= 0 {
		baud = 115200
	}
	return &Backend{
		spec:     spec,
		enum:     enum,
		opener:   opener,
		baud:     baud,
		sessions: make(map[string]*session),
		devices:  make(map[string]string),
		firmware: make(map[string]string),
	}
}

// Medium implements backend.Backend.
func (b *Backend) Medium() string { return backend.MediumHardware }

// DeviceTypes implements backend.Backend.
func (b *Backend) DeviceTypes() []board.DeviceType {
	return []board.DeviceType{b.spec.Type}
}

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities(t board.DeviceType) []capability.Kind {
	if t != b.spec.Type {
		return nil
	}
	kinds := make([]capability.Kind, len(b.spec.Kinds))
	copy(kinds, b.spec.Kinds)
	return kinds
}

// Discover implements backend.Backend. It enumerates the bus, keeps the
// endpoints matching this family and probes each unit's firmware. A unit
// whose probe fails is treated as not observable this pass; an enumerator
// failure fails the whole pass with board.ErrMediumUnavailable.
func (b *Backend) Discover(ctx context.Context) ([]board.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: backend closed", board.ErrMediumUnavailable)
	}
	b.mu.Unlock()

	ports, err := b.enum.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", board.ErrMediumUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	descs := make([]board.Descriptor, 0, len(ports))
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		if !b.spec.Match(p) || p.SerialNumber == "" {
			continue
		}
		if seen[p.SerialNumber] {
			continue
		}
		seen[p.SerialNumber] = true
		b.devices[p.SerialNumber] = p.Device

		fw, err := b.probeFirmwareLocked(p)
		if err != nil {
			logging.DebugLog("serial", "%s %s: firmware probe failed: %v",
				b.spec.Type, p.SerialNumber, err)
			continue
		}
		descs = append(descs, board.Descriptor{
			Type:     b.spec.Type,
			Serial:   p.SerialNumber,
			Firmware: fw,
		})
	}

	// Forget device paths for units that are gone, so a later Bind does not
	// open a port now owned by something else.
	for serial := range b.devices {
		if !seen[serial] {
			delete(b.devices, serial)
			delete(b.firmware, serial)
		}
	}
	return descs, nil
}

// probeFirmwareLocked returns the firmware version for a unit, reusing an
// open session or the cached value before opening the port briefly.
func (b *Backend) probeFirmwareLocked(p PortInfo) (string, error) {
	if sess, ok := b.sessions[p.SerialNumber]; ok {
		return sess.desc.Firmware, nil
	}
	if fw, ok := b.firmware[p.SerialNumber]; ok {
		return fw, nil
	}

	port, err := b.opener.Open(p.Device, b.baud)
	if err != nil {
		return "", err
	}
	probe := newSession(board.Descriptor{Type: b.spec.Type, Serial: p.SerialNumber}, port)
	fw, err := probe.firmwareVersion()
	probe.close()
	if err != nil {
		return "", err
	}

	b.firmware[p.SerialNumber] = fw
	return fw, nil
}

// Bind implements backend.Backend.
func (b *Backend) Bind(ctx context.Context, d board.Descriptor) (backend.CapabilitySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, board.WrapDevice(d, board.ErrMediumUnavailable)
	}
	if d.Type != b.spec.Type {
		return nil, board.WrapDevice(d, board.ErrUnknownDeviceType)
	}

	if sess, ok := b.sessions[d.Serial]; ok {
		return b.bundleFor(sess), nil
	}

	if b.spec.MinFirmware != "" && board.CompareFirmware(d.Firmware, b.spec.MinFirmware) < 0 {
		return nil, board.WrapDevice(d, fmt.Errorf("%w: have %s, need at least %s",
			board.ErrFirmwareMismatch, d.Firmware, b.spec.MinFirmware))
	}

	device, ok := b.devices[d.Serial]
	if !ok {
		return nil, board.WrapDevice(d, board.ErrDeviceNotPresent)
	}

	port, err := b.opener.Open(device, b.baud)
	if err != nil {
		// Unit unplugged between discovery and bind.
		delete(b.devices, d.Serial)
		delete(b.firmware, d.Serial)
		return nil, board.WrapDevice(d, fmt.Errorf("%w: %v", board.ErrDeviceNotPresent, err))
	}

	sess := newSession(d, port)

	// Handshake: confirm the unit on the port is the one we discovered. Roll
	// back the session on any failure so no half-open port leaks.
	fw, err := sess.firmwareVersion()
	if err != nil {
		sess.close()
		return nil, err
	}
	if fw != d.Firmware {
		sess.close()
		b.firmware[d.Serial] = fw
		return nil, board.WrapDevice(d, fmt.Errorf("%w: discovered %s, board reports %s",
			board.ErrFirmwareMismatch, d.Firmware, fw))
	}

	b.sessions[d.Serial] = sess
	return b.bundleFor(sess), nil
}

func (b *Backend) bundleFor(sess *session) backend.CapabilitySet {
	set := make(backend.CapabilitySet, len(b.spec.Kinds))
	for _, k := range b.spec.Kinds {
		set[k] = sess
	}
	return set
}

// Release implements backend.Backend.
func (b *Backend) Release(d board.Descriptor) error {
	b.mu.Lock()
	sess, ok := b.sessions[d.Serial]
	delete(b.sessions, d.Serial)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	return sess.close()
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*session)
	b.closed = true
	b.mu.Unlock()

	var firstErr error
	for _, sess := range sessions {
		if err := sess.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SessionCount reports the number of open sessions, for tests.
func (b *Backend) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
