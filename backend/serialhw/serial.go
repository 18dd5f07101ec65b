package serialhw

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// USBEnumerator lists USB serial ports via the OS port registry.
type USBEnumerator struct{}

// Enumerate implements Enumerator. Non-USB ports are skipped; boards are
// identified by VID/PID and carry their unit serial in the USB descriptor.
func (USBEnumerator) Enumerate() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial port enumeration: %w", err)
	}

	var ports []PortInfo
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		ports = append(ports, PortInfo{
			Device:       d.Name,
			SerialNumber: d.SerialNumber,
			VID:          strings.ToUpper(d.VID),
			PID:          strings.ToUpper(d.PID),
			Product:      d.Product,
		})
	}
	return ports, nil
}

// SerialOpener opens serial ports with a read timeout so a wedged board
// cannot hang a capability call indefinitely.
type SerialOpener struct {
	ReadTimeout time.Duration
}

// Open implements Opener.
func (o SerialOpener) Open(device string, baud int) (Port, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = 1250 * time.Millisecond
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}
	return port, nil
}
