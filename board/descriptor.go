// Package board defines the device model: descriptors identifying discovered
// units and Device objects that forward capability calls to the backend that
// bound them.
package board

import (
	"fmt"
	"sort"
	"strings"
)

// DeviceType classifies a controller board.
type DeviceType string

const (
	TypePowerBoard DeviceType = "power_board"
	TypeMotorBoard DeviceType = "motor_board"
	TypeServoBoard DeviceType = "servo_board"
	TypeIOBoard    DeviceType = "io_board"
)

// AllTypes returns every known device type in sorted order.
func AllTypes() []DeviceType {
	return []DeviceType{TypeIOBoard, TypeMotorBoard, TypePowerBoard, TypeServoBoard}
}

// Valid reports whether t names a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case TypePowerBoard, TypeMotorBoard, TypeServoBoard, TypeIOBoard:
		return true
	}
	return false
}

// ParseDeviceType converts a config string to a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	t := DeviceType(strings.TrimSpace(strings.ToLower(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceType, s)
	}
	return t, nil
}

// Descriptor identifies one physical or simulated unit. It is immutable once
// discovered; two descriptors with equal (Type, Serial) refer to the same unit.
type Descriptor struct {
	Type     DeviceType `json:"type" yaml:"type"`
	Serial   string     `json:"serial" yaml:"serial"`
	Firmware string     `json:"firmware" yaml:"firmware"`
}

// Key returns the identity key used for deduplication and lookup.
func (d Descriptor) Key() string {
	return string(d.Type) + "/" + d.Serial
}

// String returns a human-readable summary of the unit.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s (fw %s)", d.Type, d.Serial, d.Firmware)
}

// Compare orders descriptors by (Type, Serial). Firmware does not participate
// in identity.
func Compare(a, b Descriptor) int {
	if c := strings.Compare(string(a.Type), string(b.Type)); c != 0 {
		return c
	}
	return strings.Compare(a.Serial, b.Serial)
}

// SortDescriptors sorts in place by (Type, Serial) so repeated discovery
// passes enumerate deterministically regardless of underlying scan order.
func SortDescriptors(descs []Descriptor) {
	sort.Slice(descs, func(i, j int) bool {
		return Compare(descs[i], descs[j]) < 0
	})
}
