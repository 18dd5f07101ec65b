package serialhw

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"botlink/board"
	"botlink/capability"
	"botlink/logging"
)

// session is one open conversation with a board. The firmware speaks a
// line-oriented text protocol: one command per line, one response per line,
// errors prefixed with "ERR".
//
// The mutex serializes concurrent capability calls on the same unit; the
// engine does not serialize on the caller's behalf.
type session struct {
	desc board.Descriptor

	mu   sync.Mutex
	port Port
	r    *bufio.Reader
}

func newSession(desc board.Descriptor, port Port) *session {
	return &session{desc: desc, port: port, r: bufio.NewReader(port)}
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// command sends one line and returns the response payload. "OK" responses
// yield an empty payload; "ERR <msg>" responses become errors carrying the
// unit identity.
func (s *session) command(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.DebugLog("serial", "%s <- %s", s.desc.Serial, cmd)
	if _, err := s.port.Write([]byte(cmd + "\n")); err != nil {
		return "", board.WrapDevice(s.desc, fmt.Errorf("%w: write: %v", board.ErrDeviceNotPresent, err))
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", board.WrapDevice(s.desc, fmt.Errorf("%w: read: %v", board.ErrDeviceNotPresent, err))
	}
	line = strings.TrimSpace(line)
	logging.DebugLog("serial", "%s -> %s", s.desc.Serial, line)

	switch {
	case line == "OK":
		return "", nil
	case strings.HasPrefix(line, "ERR"):
		return "", board.WrapDevice(s.desc, fmt.Errorf("board error: %s", strings.TrimSpace(strings.TrimPrefix(line, "ERR"))))
	default:
		return line, nil
	}
}

func (s *session) commandFloat(cmd string) (float64, error) {
	resp, err := s.command(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, board.WrapDevice(s.desc, fmt.Errorf("malformed response %q to %q", resp, cmd))
	}
	return v, nil
}

func (s *session) commandBool(cmd string) (bool, error) {
	resp, err := s.command(cmd)
	if err != nil {
		return false, err
	}
	switch resp {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, board.WrapDevice(s.desc, fmt.Errorf("malformed response %q to %q", resp, cmd))
}

// firmwareVersion queries the board's version string.
func (s *session) firmwareVersion() (string, error) {
	return s.command("VER?")
}

func boolArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Capability implementations.

func (s *session) SetOutputEnabled(channel int, enabled bool) error {
	_, err := s.command(fmt.Sprintf("OUT %d %s", channel, boolArg(enabled)))
	return err
}

func (s *session) OutputEnabled(channel int) (bool, error) {
	return s.commandBool(fmt.Sprintf("OUT %d?", channel))
}

func (s *session) OutputCurrent(channel int) (float64, error) {
	return s.commandFloat(fmt.Sprintf("CUR %d?", channel))
}

func (s *session) SetMotorPower(channel int, power float64) error {
	if err := capability.CheckMotorPower(channel, power); err != nil {
		return err
	}
	_, err := s.command(fmt.Sprintf("MOT %d %.3f", channel, power))
	return err
}

func (s *session) MotorPower(channel int) (float64, error) {
	return s.commandFloat(fmt.Sprintf("MOT %d?", channel))
}

func (s *session) SetServoPosition(channel int, position float64) error {
	if err := capability.CheckServoPosition(channel, position); err != nil {
		return err
	}
	_, err := s.command(fmt.Sprintf("SRV %d %.3f", channel, position))
	return err
}

func (s *session) ServoPosition(channel int) (float64, error) {
	return s.commandFloat(fmt.Sprintf("SRV %d?", channel))
}

func (s *session) SetLEDState(identifier int, lit bool) error {
	_, err := s.command(fmt.Sprintf("LED %d %s", identifier, boolArg(lit)))
	return err
}

func (s *session) LEDState(identifier int) (bool, error) {
	return s.commandBool(fmt.Sprintf("LED %d?", identifier))
}

func (s *session) ReadDigitalInput(pin int) (bool, error) {
	return s.commandBool(fmt.Sprintf("IN %d?", pin))
}

func (s *session) BatteryVoltage() (float64, error) {
	return s.commandFloat("BATT V?")
}

func (s *session) BatteryCurrent() (float64, error) {
	return s.commandFloat("BATT I?")
}
