package serialhw

import (
	"botlink/backend"
	"botlink/board"
	"botlink/capability"
)

// USB identifiers for the supported board families.
const (
	vendorBotlink = "1BDA"
	pidPowerBoard = "0010"
	pidServoBoard = "0011"
	pidIOBoard    = "0012"

	// Motor boards ship with a CP210x USB-serial bridge.
	vendorCP210x  = "10C4"
	pidMotorBoard = "EA60"
)

// MatchVIDPID returns a Match predicate for one VID/PID pair.
func MatchVIDPID(vid, pid string) func(PortInfo) bool {
	return func(p PortInfo) bool {
		return p.VID == vid && p.PID == pid
	}
}

// BoardSpecs returns the board families the hardware medium knows about.
func BoardSpecs() []BoardSpec {
	return []BoardSpec{
		{
			Type: board.TypePowerBoard,
			Kinds: []capability.Kind{
				capability.KindPowerOutput, capability.KindLED, capability.KindBattery,
			},
			MinFirmware: "v1",
			Match:       MatchVIDPID(vendorBotlink, pidPowerBoard),
		},
		{
			Type: board.TypeMotorBoard,
			Kinds: []capability.Kind{
				capability.KindMotor, capability.KindLED,
			},
			MinFirmware: "v1",
			Match:       MatchVIDPID(vendorCP210x, pidMotorBoard),
		},
		{
			Type: board.TypeServoBoard,
			Kinds: []capability.Kind{
				capability.KindServo, capability.KindLED,
			},
			MinFirmware: "v1",
			Match:       MatchVIDPID(vendorBotlink, pidServoBoard),
		},
		{
			Type: board.TypeIOBoard,
			Kinds: []capability.Kind{
				capability.KindDigitalInput, capability.KindLED,
			},
			MinFirmware: "v1",
			Match:       MatchVIDPID(vendorBotlink, pidIOBoard),
		},
	}
}

// NewMedium builds the hardware medium over the given transport
// collaborators. Pass USBEnumerator{} and SerialOpener{} for real hardware;
// tests inject fakes.
func NewMedium(enum Enumerator, opener Opener, baud int) (*backend.Medium, error) {
	m := backend.NewMedium(backend.MediumHardware)
	for _, spec := range BoardSpecs() {
		spec := spec
		if err := m.Register(spec.Type, func() (backend.Backend, error) {
			return NewBackend(spec, enum, opener, baud), nil
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}
