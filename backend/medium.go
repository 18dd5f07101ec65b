package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"botlink/board"
)

// Well-known medium names.
const (
	MediumHardware = "hardware"
	MediumConsole  = "console"
)

var (
	// ErrDuplicateBackend is returned when a second backend is registered
	// for a device type already present in the medium.
	ErrDuplicateBackend = errors.New("backend: duplicate backend for device type")

	// ErrMediumSealed is returned when registering on a medium after a
	// resolver has activated it.
	ErrMediumSealed = errors.New("backend: medium sealed")
)

// Medium names a coherent communication context and maps each device type to
// exactly one backend factory valid in that context. Registration happens at
// construction time; the registry is read-only once a resolver seals it.
type Medium struct {
	name string

	mu        sync.RWMutex
	sealed    bool
	factories map[board.DeviceType]Factory
}

// NewMedium creates an empty medium registry.
func NewMedium(name string) *Medium {
	return &Medium{
		name:      name,
		factories: make(map[board.DeviceType]Factory),
	}
}

// Name returns the medium name.
func (m *Medium) Name() string { return m.name }

// Register maps a device type to a backend factory. At most one backend per
// device type: a second registration fails with ErrDuplicateBackend.
func (m *Medium) Register(t board.DeviceType, f Factory) error {
	if f == nil {
		return fmt.Errorf("backend: nil factory for %s", t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sealed {
		return fmt.Errorf("%w: %s", ErrMediumSealed, m.name)
	}
	if _, exists := m.factories[t]; exists {
		return fmt.Errorf("%w: %s in medium %s", ErrDuplicateBackend, t, m.name)
	}
	m.factories[t] = f
	return nil
}

// BackendFor returns the factory registered for a device type.
func (m *Medium) BackendFor(t board.DeviceType) (Factory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s in medium %s", board.ErrUnknownDeviceType, t, m.name)
	}
	return f, nil
}

// Types returns the registered device types in sorted order.
func (m *Medium) Types() []board.DeviceType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]board.DeviceType, 0, len(m.factories))
	for t := range m.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Seal freezes the registry. Called by the resolver at activation; later
// Register calls fail with ErrMediumSealed.
func (m *Medium) Seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
}
