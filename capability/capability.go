// Package capability defines the typed operation contracts a board may expose.
//
// Each capability kind is a standalone interface. Control code is written
// against these interfaces and never sees which backend or medium answers a
// call; the console backend and the serial hardware backend implement the
// same contracts.
package capability

import "fmt"

// Kind identifies a capability contract.
type Kind string

const (
	KindPowerOutput  Kind = "power_output"
	KindMotor        Kind = "motor"
	KindServo        Kind = "servo"
	KindLED          Kind = "led"
	KindDigitalInput Kind = "digital_input"
	KindBattery      Kind = "battery_sensor"
)

// AllKinds returns every known capability kind in stable order.
func AllKinds() []Kind {
	return []Kind{
		KindPowerOutput,
		KindMotor,
		KindServo,
		KindLED,
		KindDigitalInput,
		KindBattery,
	}
}

// Valid reports whether k names a known capability kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPowerOutput, KindMotor, KindServo, KindLED, KindDigitalInput, KindBattery:
		return true
	}
	return false
}

// PowerOutput controls switchable power output channels and reports the
// current drawn on each.
type PowerOutput interface {
	SetOutputEnabled(channel int, enabled bool) error
	OutputEnabled(channel int) (bool, error)
	OutputCurrent(channel int) (float64, error)
}

// Motor drives motor channels. Power is a fraction of full scale in
// [MotorPowerMin, MotorPowerMax]; negative values reverse the motor.
type Motor interface {
	SetMotorPower(channel int, power float64) error
	MotorPower(channel int) (float64, error)
}

// Servo positions servo channels. Position is normalised to
// [ServoPositionMin, ServoPositionMax] across the servo's travel.
type Servo interface {
	SetServoPosition(channel int, position float64) error
	ServoPosition(channel int) (float64, error)
}

// LED switches indicator LEDs.
type LED interface {
	SetLEDState(identifier int, lit bool) error
	LEDState(identifier int) (bool, error)
}

// DigitalInput reads digital input pins.
type DigitalInput interface {
	ReadDigitalInput(pin int) (bool, error)
}

// Battery reports the state of the main battery feed.
type Battery interface {
	BatteryVoltage() (float64, error)
	BatteryCurrent() (float64, error)
}

// Bounds for the normalised numeric capabilities.
const (
	MotorPowerMin = -1.0
	MotorPowerMax = 1.0

	ServoPositionMin = -1.0
	ServoPositionMax = 1.0
)

// OutOfRangeError reports a capability argument outside its permitted range.
type OutOfRangeError struct {
	Kind    Kind
	Channel int
	Value   float64
	Min     float64
	Max     float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s channel %d: value %g out of range [%g, %g]",
		e.Kind, e.Channel, e.Value, e.Min, e.Max)
}

// CheckMotorPower validates a motor power value.
func CheckMotorPower(channel int, power float64) error {
	if power < MotorPowerMin || power > MotorPowerMax {
		return &OutOfRangeError{
			Kind: KindMotor, Channel: channel, Value: power,
			Min: MotorPowerMin, Max: MotorPowerMax,
		}
	}
	return nil
}

// CheckServoPosition validates a servo position value.
func CheckServoPosition(channel int, position float64) error {
	if position < ServoPositionMin || position > ServoPositionMax {
		return &OutOfRangeError{
			Kind: KindServo, Channel: channel, Value: position,
			Min: ServoPositionMin, Max: ServoPositionMax,
		}
	}
	return nil
}
