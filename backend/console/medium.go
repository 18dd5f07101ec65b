package console

import (
	"botlink/backend"
	"botlink/board"
)

// NewMedium builds the console medium with one backend per known device
// type. Types with no fixtures still get a backend; their discovery passes
// simply return nothing.
func NewMedium(fixtures map[board.DeviceType][]Fixture, logf LogFunc) (*backend.Medium, error) {
	m := backend.NewMedium(backend.MediumConsole)
	for _, t := range board.AllTypes() {
		t := t
		if err := m.Register(t, func() (backend.Backend, error) {
			b := NewBackend(t, fixtures[t])
			b.SetLogFunc(logf)
			return b, nil
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}
