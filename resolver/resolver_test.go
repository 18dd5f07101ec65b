package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"botlink/backend"
	"botlink/backend/console"
	"botlink/board"
	"botlink/capability"
)

// scriptBackend is a scriptable backend for exercising resolver edge cases
// the console backend cannot produce (cross-backend duplicates, shuffled
// discovery order, bind races).
type scriptBackend struct {
	mediumName string
	deviceType board.DeviceType
	kinds      []capability.Kind

	mu        sync.Mutex
	discover  func() ([]board.Descriptor, error)
	bindErrs  map[string]error
	sessions  map[string]backend.CapabilitySet
	closed    bool
	released  []string
}

type stubMotor struct{}

func (stubMotor) SetMotorPower(int, float64) error { return nil }
func (stubMotor) MotorPower(int) (float64, error)  { return 0, nil }

func newScriptBackend(t board.DeviceType, descs ...board.Descriptor) *scriptBackend {
	return &scriptBackend{
		mediumName: "test",
		deviceType: t,
		kinds:      []capability.Kind{capability.KindMotor},
		discover: func() ([]board.Descriptor, error) {
			return descs, nil
		},
		bindErrs: make(map[string]error),
		sessions: make(map[string]backend.CapabilitySet),
	}
}

func (s *scriptBackend) Medium() string                 { return s.mediumName }
func (s *scriptBackend) DeviceTypes() []board.DeviceType { return []board.DeviceType{s.deviceType} }

func (s *scriptBackend) Capabilities(t board.DeviceType) []capability.Kind {
	if t != s.deviceType {
		return nil
	}
	return s.kinds
}

func (s *scriptBackend) Discover(ctx context.Context) ([]board.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discover()
}

func (s *scriptBackend) Bind(ctx context.Context, d board.Descriptor) (backend.CapabilitySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bindErrs[d.Key()]; err != nil {
		return nil, board.WrapDevice(d, err)
	}
	if set, ok := s.sessions[d.Key()]; ok {
		return set, nil
	}
	set := backend.CapabilitySet{capability.KindMotor: stubMotor{}}
	s.sessions[d.Key()] = set
	return set, nil
}

func (s *scriptBackend) Release(d board.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, d.Key())
	s.released = append(s.released, d.Key())
	return nil
}

func (s *scriptBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sessions = make(map[string]backend.CapabilitySet)
	return nil
}

func mediumWith(t *testing.T, backends map[board.DeviceType]backend.Backend) *backend.Medium {
	t.Helper()
	m := backend.NewMedium("test")
	for typ, bk := range backends {
		bk := bk
		if err := m.Register(typ, func() (backend.Backend, error) { return bk, nil }); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func activate(t *testing.T, m *backend.Medium, opts Options) *Resolver {
	t.Helper()
	r := New(opts)
	if err := r.Activate(context.Background(), m); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	return r
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateActive, "Active"},
		{StateShutDown, "ShutDown"},
		{State(9), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.expected {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.expected)
		}
	}
}

func TestMockPowerBoardScenario(t *testing.T) {
	// A console medium with one power board fixture must resolve to exactly
	// one device with that identity.
	m, err := console.NewMedium(map[board.DeviceType][]console.Fixture{
		board.TypePowerBoard: {{Serial: "SN001", Firmware: "v2"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := activate(t, m, Options{Eager: true})
	defer r.Shutdown()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("DiscoverAll error: %v", err)
	}
	if len(report.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(report.Devices))
	}

	d := report.Devices[0].Descriptor()
	if d.Type != board.TypePowerBoard || d.Serial != "SN001" || d.Firmware != "v2" {
		t.Errorf("unexpected descriptor %v", d)
	}

	devs, err := r.DevicesByType(board.TypePowerBoard)
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1 || devs[0] != report.Devices[0] {
		t.Error("lookup must return the same device object")
	}

	// The device drives its capabilities through the console session.
	outputs, err := devs[0].PowerOutputs()
	if err != nil {
		t.Fatal(err)
	}
	if err := outputs.SetOutputEnabled(0, true); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverAllIdempotent(t *testing.T) {
	m, err := console.NewMedium(map[board.DeviceType][]console.Fixture{
		board.TypeMotorBoard: {{Serial: "M1", Firmware: "v2"}, {Serial: "M2", Firmware: "v2"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := activate(t, m, Options{Eager: true})
	defer r.Shutdown()

	first, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(first.Devices) != 2 || len(second.Devices) != 2 {
		t.Fatalf("expected 2 devices both passes, got %d then %d",
			len(first.Devices), len(second.Devices))
	}
	for i := range first.Devices {
		if first.Devices[i] != second.Devices[i] {
			t.Error("unchanged units must keep their Device identity across passes")
		}
	}
	if len(second.Attached) != 0 || len(second.Detached) != 0 {
		t.Error("second pass with no change must attach and detach nothing")
	}
}

func TestSortDeterminism(t *testing.T) {
	// A backend whose discovery order flips between calls must still yield
	// a deterministic sorted device set.
	descs := []board.Descriptor{
		{Type: board.TypeMotorBoard, Serial: "B", Firmware: "v1"},
		{Type: board.TypeMotorBoard, Serial: "A", Firmware: "v1"},
		{Type: board.TypeMotorBoard, Serial: "C", Firmware: "v1"},
	}
	flip := false
	bk := newScriptBackend(board.TypeMotorBoard)
	bk.discover = func() ([]board.Descriptor, error) {
		flip = !flip
		out := make([]board.Descriptor, len(descs))
		copy(out, descs)
		if flip {
			out[0], out[2] = out[2], out[0]
		}
		return out, nil
	}

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{board.TypeMotorBoard: bk}), Options{Eager: true})
	defer r.Shutdown()

	for pass := 0; pass < 3; pass++ {
		report, err := r.DiscoverAll(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		serials := make([]string, len(report.Devices))
		for i, d := range report.Devices {
			serials[i] = d.Descriptor().Serial
		}
		if serials[0] != "A" || serials[1] != "B" || serials[2] != "C" {
			t.Fatalf("pass %d: devices out of order: %v", pass, serials)
		}
	}
}

func TestAmbiguousDeviceRejectsPass(t *testing.T) {
	dup := board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"}

	motors := newScriptBackend(board.TypeMotorBoard, dup)
	// A misconfigured second backend reports a unit of another type.
	servos := newScriptBackend(board.TypeServoBoard, dup)
	servos.kinds = []capability.Kind{capability.KindServo}

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{
		board.TypeMotorBoard: motors,
		board.TypeServoBoard: servos,
	}), Options{Eager: true})
	defer r.Shutdown()

	_, err := r.DiscoverAll(context.Background())
	if !errors.Is(err, ErrAmbiguousDevice) {
		t.Fatalf("expected ErrAmbiguousDevice, got %v", err)
	}

	// The rejected pass must not have mutated the device set.
	devs, err := r.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 0 {
		t.Errorf("rejected pass left %d devices behind", len(devs))
	}
}

func TestBindRaceExcludesDevice(t *testing.T) {
	desc := board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"}
	bk := newScriptBackend(board.TypeMotorBoard, desc)
	bk.bindErrs[desc.Key()] = board.ErrDeviceNotPresent

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{board.TypeMotorBoard: bk}), Options{Eager: true})
	defer r.Shutdown()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Devices) != 0 {
		t.Error("device that vanished before bind must not appear in the set")
	}
	bindErr := report.BindErrors[desc.Key()]
	if !errors.Is(bindErr, board.ErrDeviceNotPresent) {
		t.Errorf("expected DeviceNotPresent bind error, got %v", bindErr)
	}
}

func TestFirmwareMismatchNoDevice(t *testing.T) {
	m, err := console.NewMedium(map[board.DeviceType][]console.Fixture{
		board.TypeMotorBoard: {{Serial: "M0", Firmware: "v0"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := New(Options{Eager: true, AllowTypes: []board.DeviceType{board.TypeMotorBoard}})
	if err := r.Activate(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	// Reach into the built backend to arm the firmware gate.
	r.mu.Lock()
	cb := r.backends[board.TypeMotorBoard].(*console.Backend)
	r.mu.Unlock()
	cb.SetMinFirmware("v1")

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Devices) != 0 {
		t.Error("unit below minimum firmware must not produce a device")
	}
	key := board.Descriptor{Type: board.TypeMotorBoard, Serial: "M0"}.Key()
	if !errors.Is(report.BindErrors[key], board.ErrFirmwareMismatch) {
		t.Errorf("expected FirmwareMismatch, got %v", report.BindErrors[key])
	}
}

func TestHotUnplugDetachesDevice(t *testing.T) {
	m, err := console.NewMedium(map[board.DeviceType][]console.Fixture{
		board.TypeMotorBoard: {{Serial: "M1", Firmware: "v2"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := New(Options{Eager: true, AllowTypes: []board.DeviceType{board.TypeMotorBoard}})
	if err := r.Activate(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dev := report.Devices[0]
	motor, err := dev.Motor()
	if err != nil {
		t.Fatal(err)
	}

	// Unplug and rescan.
	r.mu.Lock()
	cb := r.backends[board.TypeMotorBoard].(*console.Backend)
	r.mu.Unlock()
	cb.RemoveFixture("M1")

	report, err = r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Devices) != 0 {
		t.Error("unplugged unit must leave the device set")
	}
	if len(report.Detached) != 1 || report.Detached[0] != dev {
		t.Error("report must name the detached device")
	}

	// The stale handle fails loudly, it never hangs or silently succeeds.
	if err := motor.SetMotorPower(0, 0.5); !errors.Is(err, board.ErrDeviceNotPresent) {
		t.Errorf("capability call on detached device = %v, want ErrDeviceNotPresent", err)
	}

	// Replug: a fresh pass binds a new Device for the same identity.
	cb.AddFixture(console.Fixture{Serial: "M1", Firmware: "v2"})
	report, err = r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Devices) != 1 || report.Devices[0] == dev {
		t.Error("replugged unit must bind a fresh device")
	}
}

func TestBackendFailureIsolated(t *testing.T) {
	healthy := newScriptBackend(board.TypeMotorBoard,
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"})
	faulty := newScriptBackend(board.TypeServoBoard)
	faulty.kinds = []capability.Kind{capability.KindServo}
	faulty.discover = func() ([]board.Descriptor, error) {
		return nil, fmt.Errorf("%w: driver absent", board.ErrMediumUnavailable)
	}

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{
		board.TypeMotorBoard: healthy,
		board.TypeServoBoard: faulty,
	}), Options{Eager: true})
	defer r.Shutdown()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatalf("one faulty backend must not abort the pass: %v", err)
	}
	if len(report.Devices) != 1 {
		t.Errorf("healthy backend's device missing, got %d devices", len(report.Devices))
	}
	if !errors.Is(report.BackendErrors[board.TypeServoBoard], board.ErrMediumUnavailable) {
		t.Errorf("faulty backend error not reported: %v", report.BackendErrors)
	}
}

func TestBackendFailureKeepsExistingDevices(t *testing.T) {
	desc := board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"}
	bk := newScriptBackend(board.TypeMotorBoard, desc)

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{board.TypeMotorBoard: bk}), Options{Eager: true})
	defer r.Shutdown()

	report, _ := r.DiscoverAll(context.Background())
	dev := report.Devices[0]

	// Transport drops out: the pass fails for this backend, but the device
	// bound earlier must not be detached on that evidence alone.
	bk.mu.Lock()
	bk.discover = func() ([]board.Descriptor, error) {
		return nil, fmt.Errorf("%w: bus reset", board.ErrMediumUnavailable)
	}
	bk.mu.Unlock()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Detached) != 0 {
		t.Error("discovery failure must not detach previously bound devices")
	}
	devs, _ := r.Devices()
	if len(devs) != 1 || devs[0] != dev {
		t.Error("device bound before the failure must survive")
	}
}

func TestLazyInstantiation(t *testing.T) {
	built := 0
	m := backend.NewMedium("test")
	bk := newScriptBackend(board.TypeMotorBoard,
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"})
	if err := m.Register(board.TypeMotorBoard, func() (backend.Backend, error) {
		built++
		return bk, nil
	}); err != nil {
		t.Fatal(err)
	}

	r := New(Options{Eager: false})
	if err := r.Activate(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	defer r.Shutdown()

	if built != 0 {
		t.Errorf("lazy activate built %d backends, want 0", built)
	}

	if _, err := r.DiscoverAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if built != 1 {
		t.Errorf("first pass built %d backends, want 1", built)
	}

	if _, err := r.DiscoverAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if built != 1 {
		t.Errorf("backends must be built once, got %d", built)
	}
}

func TestAllowTypesRestrictsBackends(t *testing.T) {
	motors := newScriptBackend(board.TypeMotorBoard,
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"})
	servos := newScriptBackend(board.TypeServoBoard,
		board.Descriptor{Type: board.TypeServoBoard, Serial: "S1", Firmware: "v1"})
	servos.kinds = []capability.Kind{capability.KindServo}

	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{
		board.TypeMotorBoard: motors,
		board.TypeServoBoard: servos,
	}), Options{Eager: true, AllowTypes: []board.DeviceType{board.TypeMotorBoard}})
	defer r.Shutdown()

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Devices) != 1 || report.Devices[0].Descriptor().Type != board.TypeMotorBoard {
		t.Errorf("allow-list must restrict discovery to motor boards: %v", report.Devices)
	}
}

func TestActivateRollbackOnFactoryFailure(t *testing.T) {
	good := newScriptBackend(board.TypeMotorBoard)
	m := backend.NewMedium("test")
	if err := m.Register(board.TypeMotorBoard, func() (backend.Backend, error) { return good, nil }); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(board.TypeServoBoard, func() (backend.Backend, error) {
		return nil, errors.New("no transport")
	}); err != nil {
		t.Fatal(err)
	}

	r := New(Options{Eager: true})
	if err := r.Activate(context.Background(), m); err == nil {
		t.Fatal("expected Activate to fail")
	}

	good.mu.Lock()
	closed := good.closed
	good.mu.Unlock()
	if !closed {
		t.Error("backends built before the failure must be closed")
	}
	if r.State() != StateUninitialized {
		t.Errorf("state after failed activate = %v, want Uninitialized", r.State())
	}
}

func TestActivateValidatesAdvertisedCapabilities(t *testing.T) {
	bad := newScriptBackend(board.TypeMotorBoard)
	bad.kinds = []capability.Kind{capability.Kind("warp_drive")}

	r := New(Options{Eager: true})
	err := r.Activate(context.Background(), mediumWith(t, map[board.DeviceType]backend.Backend{
		board.TypeMotorBoard: bad,
	}))
	if err == nil {
		t.Fatal("expected activation to reject unknown capability kind")
	}
}

func TestActivateTwice(t *testing.T) {
	m := mediumWith(t, map[board.DeviceType]backend.Backend{
		board.TypeMotorBoard: newScriptBackend(board.TypeMotorBoard),
	})
	r := activate(t, m, Options{Eager: true})
	defer r.Shutdown()

	if err := r.Activate(context.Background(), m); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("second Activate = %v, want ErrAlreadyActive", err)
	}
}

func TestShutdown(t *testing.T) {
	bk := newScriptBackend(board.TypeMotorBoard,
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"})
	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{board.TypeMotorBoard: bk}), Options{Eager: true})

	report, err := r.DiscoverAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	dev := report.Devices[0]

	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	bk.mu.Lock()
	closed := bk.closed
	bk.mu.Unlock()
	if !closed {
		t.Error("Shutdown must close backends")
	}
	if !dev.Detached() {
		t.Error("Shutdown must detach devices")
	}

	// Every operation after shutdown fails with ErrResolverClosed.
	if _, err := r.Devices(); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Devices after shutdown = %v", err)
	}
	if _, err := r.DiscoverAll(context.Background()); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("DiscoverAll after shutdown = %v", err)
	}
	if err := r.Activate(context.Background(), backend.NewMedium("test")); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Activate after shutdown = %v", err)
	}
	if err := r.Shutdown(); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestLookupBeforeActivate(t *testing.T) {
	r := New(Options{})
	if _, err := r.Devices(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Devices before activate = %v, want ErrNotActive", err)
	}
	if _, err := r.DiscoverAll(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Errorf("DiscoverAll before activate = %v, want ErrNotActive", err)
	}
}

func TestDeviceLookup(t *testing.T) {
	bk := newScriptBackend(board.TypeMotorBoard,
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M1", Firmware: "v1"},
		board.Descriptor{Type: board.TypeMotorBoard, Serial: "M2", Firmware: "v1"})
	r := activate(t, mediumWith(t, map[board.DeviceType]backend.Backend{board.TypeMotorBoard: bk}), Options{Eager: true})
	defer r.Shutdown()

	if _, err := r.DiscoverAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	dev, err := r.Device(board.TypeMotorBoard, "M2")
	if err != nil {
		t.Fatalf("Device lookup error: %v", err)
	}
	if dev.Descriptor().Serial != "M2" {
		t.Errorf("lookup returned %s", dev.Descriptor())
	}

	if _, err := r.Device(board.TypeMotorBoard, "NOPE"); !errors.Is(err, board.ErrDeviceNotPresent) {
		t.Errorf("missing device lookup = %v", err)
	}

	bySerial, err := r.DeviceBySerial("M1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bySerial) != 1 || bySerial[0].Descriptor().Serial != "M1" {
		t.Errorf("DeviceBySerial = %v", bySerial)
	}

	if _, err := r.KindsFor(board.TypeMotorBoard); err != nil {
		t.Errorf("KindsFor error: %v", err)
	}
	if _, err := r.KindsFor(board.TypePowerBoard); !errors.Is(err, board.ErrUnknownDeviceType) {
		t.Errorf("KindsFor unregistered type = %v", err)
	}
}
