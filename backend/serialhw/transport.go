// Package serialhw provides the hardware medium: backends that discover and
// drive controller boards attached over USB serial. The engine depends only
// on the Enumerator and Opener collaborator contracts; the real transport
// lives in serial.go and is injected at medium construction, so tests run
// against fakes.
package serialhw

import "io"

// PortInfo describes one serial endpoint reported by the enumerator.
type PortInfo struct {
	Device       string // OS device path, e.g. /dev/ttyACM0
	SerialNumber string // USB serial number, unique per unit
	VID          string // USB vendor ID, upper-case hex without 0x
	PID          string // USB product ID, upper-case hex without 0x
	Product      string // USB product string
}

// Port is an open serial connection.
type Port interface {
	io.ReadWriteCloser
}

// Enumerator lists the serial endpoints currently attached.
type Enumerator interface {
	Enumerate() ([]PortInfo, error)
}

// Opener establishes a connection to one endpoint.
type Opener interface {
	Open(device string, baud int) (Port, error)
}
