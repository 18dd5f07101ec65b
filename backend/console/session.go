package console

import (
	"sync"

	"botlink/backend"
	"botlink/board"
	"botlink/capability"
)

// session holds the in-memory state for one simulated unit. All capability
// interfaces are implemented on the session; Bind exposes only the kinds the
// backend advertises.
type session struct {
	owner *Backend
	desc  board.Descriptor

	mu       sync.Mutex
	outputs  map[int]bool
	motors   map[int]float64
	servos   map[int]float64
	leds     map[int]bool
	inputs   map[int]bool
	voltage  float64
	current  float64
}

func newSession(owner *Backend, desc board.Descriptor) *session {
	return &session{
		owner:   owner,
		desc:    desc,
		outputs: make(map[int]bool),
		motors:  make(map[int]float64),
		servos:  make(map[int]float64),
		leds:    make(map[int]bool),
		inputs:  make(map[int]bool),
		voltage: 12.0,
	}
}

func (s *session) capabilitySet(kinds []capability.Kind) backend.CapabilitySet {
	set := make(backend.CapabilitySet, len(kinds))
	for _, k := range kinds {
		set[k] = s
	}
	return set
}

// SetInput drives a simulated digital input from test code.
func (s *session) SetInput(pin int, state bool) {
	s.mu.Lock()
	s.inputs[pin] = state
	s.mu.Unlock()
}

func (s *session) SetOutputEnabled(channel int, enabled bool) error {
	s.mu.Lock()
	s.outputs[channel] = enabled
	s.mu.Unlock()
	s.owner.log("%s: output %d enabled=%v", s.desc, channel, enabled)
	return nil
}

func (s *session) OutputEnabled(channel int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[channel], nil
}

func (s *session) OutputCurrent(channel int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs[channel] {
		return 0.4, nil
	}
	return 0, nil
}

func (s *session) SetMotorPower(channel int, power float64) error {
	if err := capability.CheckMotorPower(channel, power); err != nil {
		return err
	}
	s.mu.Lock()
	s.motors[channel] = power
	s.mu.Unlock()
	s.owner.log("%s: motor %d power=%g", s.desc, channel, power)
	return nil
}

func (s *session) MotorPower(channel int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motors[channel], nil
}

func (s *session) SetServoPosition(channel int, position float64) error {
	if err := capability.CheckServoPosition(channel, position); err != nil {
		return err
	}
	s.mu.Lock()
	s.servos[channel] = position
	s.mu.Unlock()
	s.owner.log("%s: servo %d position=%g", s.desc, channel, position)
	return nil
}

func (s *session) ServoPosition(channel int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servos[channel], nil
}

func (s *session) SetLEDState(identifier int, lit bool) error {
	s.mu.Lock()
	s.leds[identifier] = lit
	s.mu.Unlock()
	s.owner.log("%s: led %d lit=%v", s.desc, identifier, lit)
	return nil
}

func (s *session) LEDState(identifier int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leds[identifier], nil
}

func (s *session) ReadDigitalInput(pin int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[pin], nil
}

func (s *session) BatteryVoltage() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage, nil
}

func (s *session) BatteryCurrent() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}
