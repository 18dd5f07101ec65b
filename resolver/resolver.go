// Package resolver is the composition root: it activates one medium,
// instantiates the backends its registry names, runs discovery across them,
// and exposes the resulting device set by type and serial.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"botlink/backend"
	"botlink/board"
	"botlink/capability"
	"botlink/logging"
)

var (
	// ErrResolverClosed is returned for any operation after Shutdown.
	ErrResolverClosed = errors.New("resolver: closed")

	// ErrNotActive is returned when discovery or lookup runs before Activate.
	ErrNotActive = errors.New("resolver: no active medium")

	// ErrAlreadyActive is returned when Activate is called twice.
	ErrAlreadyActive = errors.New("resolver: already active")

	// ErrAmbiguousDevice is returned when two backends in the same medium
	// report the same (device type, serial) in one discovery pass.
	ErrAmbiguousDevice = errors.New("resolver: ambiguous device")
)

// State is the resolver lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateActive:
		return "Active"
	case StateShutDown:
		return "ShutDown"
	default:
		return "Unknown"
	}
}

// Options configures a resolver.
type Options struct {
	// Eager instantiates every registered backend at Activate. When false,
	// backends are built lazily on the first discovery pass.
	Eager bool

	// AllowTypes restricts which device types get backends. Empty allows
	// every type the medium registers.
	AllowTypes []board.DeviceType
}

func (o Options) allows(t board.DeviceType) bool {
	if len(o.AllowTypes) == 0 {
		return true
	}
	for _, a := range o.AllowTypes {
		if a == t {
			return true
		}
	}
	return false
}

// Report is the outcome of one discovery pass. Backend failures are isolated
// per backend: one faulty transport still leaves the other backends' devices
// usable.
type Report struct {
	// Devices is the full live device set after the pass, sorted by
	// (device type, serial).
	Devices []*board.Device

	// Attached are devices newly bound in this pass.
	Attached []*board.Device

	// Detached are devices whose units vanished in this pass.
	Detached []*board.Device

	// BackendErrors records discovery failures per device type.
	BackendErrors map[board.DeviceType]error

	// BindErrors records per-unit bind failures, keyed by descriptor key.
	BindErrors map[string]error
}

// Resolver owns the active medium's backends and the live device set.
// A single resolver instance serves the whole process; discovery passes are
// explicit, caller-triggered operations.
type Resolver struct {
	opts Options

	// scanMu serializes discovery passes so concurrent rescans cannot
	// interleave their merges.
	scanMu sync.Mutex

	mu       sync.RWMutex
	state    State
	medium   *backend.Medium
	backends map[board.DeviceType]backend.Backend
	devices  map[string]*board.Device
}

// New creates a resolver in the Uninitialized state.
func New(opts Options) *Resolver {
	return &Resolver{
		opts:     opts,
		backends: make(map[board.DeviceType]backend.Backend),
		devices:  make(map[string]*board.Device),
	}
}

// State returns the lifecycle state.
func (r *Resolver) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// MediumName returns the active medium's name, or "".
func (r *Resolver) MediumName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.medium == nil {
		return ""
	}
	return r.medium.Name()
}

// Activate seals the medium registry and transitions to Active. With eager
// instantiation every allowed backend is built and validated immediately; a
// failure rolls back the backends already built and leaves the resolver
// Uninitialized.
func (r *Resolver) Activate(ctx context.Context, m *backend.Medium) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateShutDown:
		return ErrResolverClosed
	case StateActive:
		return fmt.Errorf("%w: medium %s", ErrAlreadyActive, r.medium.Name())
	}

	m.Seal()
	r.medium = m

	if r.opts.Eager {
		if err := r.buildBackendsLocked(ctx); err != nil {
			r.releaseBackendsLocked()
			r.medium = nil
			return err
		}
	}

	r.state = StateActive
	logging.DebugLog("resolver", "activated medium %s (eager=%v, %d backends)",
		m.Name(), r.opts.Eager, len(r.backends))
	return nil
}

// buildBackendsLocked instantiates every allowed backend not yet built and
// validates its advertised capability set.
func (r *Resolver) buildBackendsLocked(ctx context.Context) error {
	for _, t := range r.medium.Types() {
		if !r.opts.allows(t) {
			continue
		}
		if _, built := r.backends[t]; built {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		factory, err := r.medium.BackendFor(t)
		if err != nil {
			return err
		}
		bk, err := factory()
		if err != nil {
			return fmt.Errorf("building backend for %s: %w", t, err)
		}
		if err := validateBackend(bk, t, r.medium.Name()); err != nil {
			bk.Close()
			return err
		}
		r.backends[t] = bk
	}
	return nil
}

// validateBackend checks a backend's declarations at activation time rather
// than at first capability call.
func validateBackend(bk backend.Backend, t board.DeviceType, medium string) error {
	if bk.Medium() != medium {
		return fmt.Errorf("backend for %s belongs to medium %q, registered in %q",
			t, bk.Medium(), medium)
	}
	serves := false
	for _, dt := range bk.DeviceTypes() {
		if dt == t {
			serves = true
			break
		}
	}
	if !serves {
		return fmt.Errorf("backend for %s does not declare that device type", t)
	}
	kinds := bk.Capabilities(t)
	if len(kinds) == 0 {
		return fmt.Errorf("backend for %s advertises no capabilities", t)
	}
	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("backend for %s advertises unknown capability %q", t, k)
		}
	}
	return nil
}

func (r *Resolver) releaseBackendsLocked() {
	for t, bk := range r.backends {
		if err := bk.Close(); err != nil {
			logging.DebugLog("resolver", "closing backend %s: %v", t, err)
		}
		delete(r.backends, t)
	}
}

// discoveryResult carries one backend's discovery outcome.
type discoveryResult struct {
	deviceType board.DeviceType
	descs      []board.Descriptor
	err        error
}

// DiscoverAll runs discovery on every active backend, merges the results
// deterministically and reconciles the live device set: new units are bound
// into Devices, vanished units are detached, unchanged units keep their
// Device identity. Per-backend failures are reported, not escalated; an
// ambiguous descriptor rejects the whole pass and leaves the device set
// untouched.
func (r *Resolver) DiscoverAll(ctx context.Context) (*Report, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	r.mu.Lock()
	switch r.state {
	case StateShutDown:
		r.mu.Unlock()
		return nil, ErrResolverClosed
	case StateUninitialized:
		r.mu.Unlock()
		return nil, ErrNotActive
	}
	// Lazy instantiation happens on the first pass.
	if err := r.buildBackendsLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	backends := make(map[board.DeviceType]backend.Backend, len(r.backends))
	for t, bk := range r.backends {
		backends[t] = bk
	}
	r.mu.Unlock()

	// Discovery may block on bus scans; run the backends in parallel and
	// merge afterwards so completion order cannot influence the result.
	results := make([]discoveryResult, 0, len(backends))
	var (
		wg sync.WaitGroup
		resMu sync.Mutex
	)
	for t, bk := range backends {
		wg.Add(1)
		go func(t board.DeviceType, bk backend.Backend) {
			defer wg.Done()
			descs, err := bk.Discover(ctx)
			resMu.Lock()
			results = append(results, discoveryResult{deviceType: t, descs: descs, err: err})
			resMu.Unlock()
		}(t, bk)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].deviceType < results[j].deviceType
	})

	report := &Report{
		BackendErrors: make(map[board.DeviceType]error),
		BindErrors:    make(map[string]error),
	}

	// Merge and check for ambiguity before touching the device set.
	var discovered []board.Descriptor
	owner := make(map[string]board.DeviceType)
	for _, res := range results {
		if res.err != nil {
			logging.DebugLog("resolver", "discovery failed for %s: %v", res.deviceType, res.err)
			report.BackendErrors[res.deviceType] = res.err
			continue
		}
		for _, d := range res.descs {
			key := d.Key()
			if _, dup := owner[key]; dup {
				return nil, board.WrapDevice(d, fmt.Errorf("%w: reported twice in one pass", ErrAmbiguousDevice))
			}
			owner[key] = res.deviceType
			discovered = append(discovered, d)
		}
	}
	board.SortDescriptors(discovered)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateShutDown {
		// Shut down while scanning; nothing to reconcile.
		return nil, ErrResolverClosed
	}

	seen := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		key := d.Key()
		seen[key] = true

		if _, bound := r.devices[key]; bound {
			continue
		}
		if err := ctx.Err(); err != nil {
			// Cancelled mid-pass: keep what is already bound, bind no more.
			return report, err
		}

		bk := backends[owner[key]]
		set, err := bk.Bind(ctx, d)
		if err != nil {
			logging.DebugLog("resolver", "bind failed for %s: %v", key, err)
			report.BindErrors[key] = err
			continue
		}
		if err := checkBundle(bk, d, set); err != nil {
			bk.Release(d)
			report.BindErrors[key] = err
			continue
		}

		dev := board.NewDevice(d, set)
		r.devices[key] = dev
		report.Attached = append(report.Attached, dev)
		logging.DebugLog("resolver", "attached %s", d)
	}

	// Units that vanished since the previous pass. Skip types whose backend
	// failed to discover: absence of evidence is not evidence of absence.
	for key, dev := range r.devices {
		if seen[key] {
			continue
		}
		t := dev.Descriptor().Type
		if _, failed := report.BackendErrors[t]; failed {
			continue
		}
		dev.Detach()
		if bk, ok := backends[t]; ok {
			bk.Release(dev.Descriptor())
		}
		delete(r.devices, key)
		report.Detached = append(report.Detached, dev)
		logging.DebugLog("resolver", "detached %s", dev.Descriptor())
	}

	report.Devices = r.sortedDevicesLocked()
	sortDevices(report.Attached)
	sortDevices(report.Detached)
	return report, nil
}

// checkBundle verifies every advertised capability kind is present in the
// bundle a bind produced.
func checkBundle(bk backend.Backend, d board.Descriptor, set backend.CapabilitySet) error {
	for _, k := range bk.Capabilities(d.Type) {
		if _, ok := set[k]; !ok {
			return board.WrapDevice(d, fmt.Errorf("%w: advertised %s missing from bind",
				board.ErrCapabilityNotSupported, k))
		}
	}
	return nil
}

func sortDevices(devs []*board.Device) {
	sort.Slice(devs, func(i, j int) bool {
		return board.Compare(devs[i].Descriptor(), devs[j].Descriptor()) < 0
	})
}

func (r *Resolver) sortedDevicesLocked() []*board.Device {
	devs := make([]*board.Device, 0, len(r.devices))
	for _, d := range r.devices {
		devs = append(devs, d)
	}
	sortDevices(devs)
	return devs
}

// Devices returns the live device set sorted by (device type, serial).
// Pure read; no discovery side effect.
func (r *Resolver) Devices() ([]*board.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.readableLocked(); err != nil {
		return nil, err
	}
	return r.sortedDevicesLocked(), nil
}

// DevicesByType returns the live devices of one type, sorted by serial.
func (r *Resolver) DevicesByType(t board.DeviceType) ([]*board.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.readableLocked(); err != nil {
		return nil, err
	}
	var devs []*board.Device
	for _, d := range r.devices {
		if d.Descriptor().Type == t {
			devs = append(devs, d)
		}
	}
	sortDevices(devs)
	return devs, nil
}

// Device returns the live device with the given identity.
func (r *Resolver) Device(t board.DeviceType, serial string) (*board.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.readableLocked(); err != nil {
		return nil, err
	}
	dev, ok := r.devices[board.Descriptor{Type: t, Serial: serial}.Key()]
	if !ok {
		return nil, board.WrapDevice(board.Descriptor{Type: t, Serial: serial}, board.ErrDeviceNotPresent)
	}
	return dev, nil
}

// DeviceBySerial returns the live devices matching a serial across all
// types. Serials are only guaranteed unique within a device type.
func (r *Resolver) DeviceBySerial(serial string) ([]*board.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.readableLocked(); err != nil {
		return nil, err
	}
	var devs []*board.Device
	for _, d := range r.devices {
		if d.Descriptor().Serial == serial {
			devs = append(devs, d)
		}
	}
	sortDevices(devs)
	return devs, nil
}

func (r *Resolver) readableLocked() error {
	switch r.state {
	case StateShutDown:
		return ErrResolverClosed
	case StateUninitialized:
		return ErrNotActive
	}
	return nil
}

// Shutdown detaches every device, releases every backend session and
// transitions to ShutDown. All later operations fail with ErrResolverClosed.
func (r *Resolver) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateShutDown {
		return ErrResolverClosed
	}

	for key, dev := range r.devices {
		dev.Detach()
		delete(r.devices, key)
	}
	r.releaseBackendsLocked()
	r.state = StateShutDown
	logging.DebugLog("resolver", "shut down")
	return nil
}

// KindsFor reports the capability kinds the active backend advertises for a
// device type, for inventory surfaces.
func (r *Resolver) KindsFor(t board.DeviceType) ([]capability.Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.readableLocked(); err != nil {
		return nil, err
	}
	bk, ok := r.backends[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", board.ErrUnknownDeviceType, t)
	}
	return bk.Capabilities(t), nil
}
