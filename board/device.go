package board

import (
	"fmt"
	"sort"
	"sync"

	"botlink/capability"
)

// Device is the runtime object bound to one discovered unit. It owns no
// transport state: every capability call is forwarded to the implementation
// the backend produced at bind time. The backend exclusively owns the live
// session; the Device holds a non-owning handle.
//
// Once detached (unit vanished, resolver shut down), every capability call
// fails with ErrDeviceNotPresent instead of silently no-opping.
type Device struct {
	desc Descriptor
	caps map[capability.Kind]any

	mu       sync.RWMutex
	detached bool
}

// NewDevice binds a descriptor to the capability implementations produced by
// a backend. The capability map is copied; it is fixed for the Device's life.
func NewDevice(desc Descriptor, caps map[capability.Kind]any) *Device {
	owned := make(map[capability.Kind]any, len(caps))
	for k, v := range caps {
		owned[k] = v
	}
	return &Device{desc: desc, caps: owned}
}

// Descriptor returns the immutable identity of the unit.
func (d *Device) Descriptor() Descriptor { return d.desc }

// Kinds returns the capability kinds this device exposes, sorted.
func (d *Device) Kinds() []capability.Kind {
	kinds := make([]capability.Kind, 0, len(d.caps))
	for k := range d.caps {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Supports reports whether the device exposes the given capability kind.
func (d *Device) Supports(kind capability.Kind) bool {
	_, ok := d.caps[kind]
	return ok
}

// Detach marks the device as no longer backed by a live unit. Subsequent
// capability calls fail with ErrDeviceNotPresent. Idempotent.
func (d *Device) Detach() {
	d.mu.Lock()
	d.detached = true
	d.mu.Unlock()
}

// Detached reports whether the device has been detached.
func (d *Device) Detached() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.detached
}

// guard returns ErrDeviceNotPresent once the device is detached.
func (d *Device) guard() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.detached {
		return WrapDevice(d.desc, ErrDeviceNotPresent)
	}
	return nil
}

// Capability returns the raw bound implementation for a kind. Most callers
// should prefer the typed accessors, which also guard against detachment on
// every forwarded call.
func (d *Device) Capability(kind capability.Kind) (any, error) {
	if err := d.guard(); err != nil {
		return nil, err
	}
	impl, ok := d.caps[kind]
	if !ok {
		return nil, WrapDevice(d.desc, fmt.Errorf("%w: %s", ErrCapabilityNotSupported, kind))
	}
	return impl, nil
}

func (d *Device) capabilityAs(kind capability.Kind, out func(any) bool) error {
	impl, ok := d.caps[kind]
	if !ok || !out(impl) {
		return WrapDevice(d.desc, fmt.Errorf("%w: %s", ErrCapabilityNotSupported, kind))
	}
	return nil
}

// Motor returns the motor capability, wrapped so calls on a detached device
// fail with ErrDeviceNotPresent.
func (d *Device) Motor() (capability.Motor, error) {
	var impl capability.Motor
	err := d.capabilityAs(capability.KindMotor, func(v any) bool {
		impl, _ = v.(capability.Motor)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &motorProxy{dev: d, impl: impl}, nil
}

// PowerOutputs returns the power output capability.
func (d *Device) PowerOutputs() (capability.PowerOutput, error) {
	var impl capability.PowerOutput
	err := d.capabilityAs(capability.KindPowerOutput, func(v any) bool {
		impl, _ = v.(capability.PowerOutput)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &powerProxy{dev: d, impl: impl}, nil
}

// Servos returns the servo capability.
func (d *Device) Servos() (capability.Servo, error) {
	var impl capability.Servo
	err := d.capabilityAs(capability.KindServo, func(v any) bool {
		impl, _ = v.(capability.Servo)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &servoProxy{dev: d, impl: impl}, nil
}

// LEDs returns the LED capability.
func (d *Device) LEDs() (capability.LED, error) {
	var impl capability.LED
	err := d.capabilityAs(capability.KindLED, func(v any) bool {
		impl, _ = v.(capability.LED)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &ledProxy{dev: d, impl: impl}, nil
}

// DigitalInputs returns the digital input capability.
func (d *Device) DigitalInputs() (capability.DigitalInput, error) {
	var impl capability.DigitalInput
	err := d.capabilityAs(capability.KindDigitalInput, func(v any) bool {
		impl, _ = v.(capability.DigitalInput)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &inputProxy{dev: d, impl: impl}, nil
}

// Battery returns the battery sensor capability.
func (d *Device) Battery() (capability.Battery, error) {
	var impl capability.Battery
	err := d.capabilityAs(capability.KindBattery, func(v any) bool {
		impl, _ = v.(capability.Battery)
		return impl != nil
	})
	if err != nil {
		return nil, err
	}
	return &batteryProxy{dev: d, impl: impl}, nil
}

// Forwarding proxies. Each checks the device is still attached before
// delegating to the backend implementation.

type motorProxy struct {
	dev  *Device
	impl capability.Motor
}

func (p *motorProxy) SetMotorPower(channel int, power float64) error {
	if err := p.dev.guard(); err != nil {
		return err
	}
	return p.impl.SetMotorPower(channel, power)
}

func (p *motorProxy) MotorPower(channel int) (float64, error) {
	if err := p.dev.guard(); err != nil {
		return 0, err
	}
	return p.impl.MotorPower(channel)
}

type powerProxy struct {
	dev  *Device
	impl capability.PowerOutput
}

func (p *powerProxy) SetOutputEnabled(channel int, enabled bool) error {
	if err := p.dev.guard(); err != nil {
		return err
	}
	return p.impl.SetOutputEnabled(channel, enabled)
}

func (p *powerProxy) OutputEnabled(channel int) (bool, error) {
	if err := p.dev.guard(); err != nil {
		return false, err
	}
	return p.impl.OutputEnabled(channel)
}

func (p *powerProxy) OutputCurrent(channel int) (float64, error) {
	if err := p.dev.guard(); err != nil {
		return 0, err
	}
	return p.impl.OutputCurrent(channel)
}

type servoProxy struct {
	dev  *Device
	impl capability.Servo
}

func (p *servoProxy) SetServoPosition(channel int, position float64) error {
	if err := p.dev.guard(); err != nil {
		return err
	}
	return p.impl.SetServoPosition(channel, position)
}

func (p *servoProxy) ServoPosition(channel int) (float64, error) {
	if err := p.dev.guard(); err != nil {
		return 0, err
	}
	return p.impl.ServoPosition(channel)
}

type ledProxy struct {
	dev  *Device
	impl capability.LED
}

func (p *ledProxy) SetLEDState(identifier int, lit bool) error {
	if err := p.dev.guard(); err != nil {
		return err
	}
	return p.impl.SetLEDState(identifier, lit)
}

func (p *ledProxy) LEDState(identifier int) (bool, error) {
	if err := p.dev.guard(); err != nil {
		return false, err
	}
	return p.impl.LEDState(identifier)
}

type inputProxy struct {
	dev  *Device
	impl capability.DigitalInput
}

func (p *inputProxy) ReadDigitalInput(pin int) (bool, error) {
	if err := p.dev.guard(); err != nil {
		return false, err
	}
	return p.impl.ReadDigitalInput(pin)
}

type batteryProxy struct {
	dev  *Device
	impl capability.Battery
}

func (p *batteryProxy) BatteryVoltage() (float64, error) {
	if err := p.dev.guard(); err != nil {
		return 0, err
	}
	return p.impl.BatteryVoltage()
}

func (p *batteryProxy) BatteryCurrent() (float64, error) {
	if err := p.dev.guard(); err != nil {
		return 0, err
	}
	return p.impl.BatteryCurrent()
}
