// Package api provides the REST API for the device inventory and
// capability commands.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"botlink/board"
	"botlink/capability"
	"botlink/engine"
	"botlink/resolver"
)

// DeviceResponse is the JSON response for one device.
type DeviceResponse struct {
	Type         string   `json:"type"`
	Serial       string   `json:"serial"`
	Firmware     string   `json:"firmware"`
	Capabilities []string `json:"capabilities"`
	Present      bool     `json:"present"`
}

// TypeResponse describes one device type and its capability kinds.
type TypeResponse struct {
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
}

// StatusResponse is the JSON response for the service status.
type StatusResponse struct {
	Namespace      string `json:"namespace"`
	Medium         string `json:"medium"`
	State          string `json:"state"`
	Devices        int    `json:"devices"`
	RescanInterval string `json:"rescan_interval,omitempty"`
}

// ScanResponse is the JSON response after a discovery pass.
type ScanResponse struct {
	Devices   int               `json:"devices"`
	Attached  []DeviceResponse  `json:"attached"`
	Detached  []DeviceResponse  `json:"detached"`
	Errors    map[string]string `json:"errors,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// handlers holds the API handler functions.
type handlers struct {
	managers engine.Managers
	engine   *engine.Engine
}

// NewRouter creates the REST API router. The returned cleanup function stops
// the SSE hub and must be called on shutdown.
func NewRouter(managers engine.Managers) (chi.Router, func()) {
	r := chi.NewRouter()
	h := &handlers{managers: managers}

	// If managers is an *engine.Engine, capture it for mutation operations.
	if eng, ok := managers.(*engine.Engine); ok {
		h.engine = eng
	}

	// Root - service status
	r.Get("/", h.handleStatus)

	// Device types
	r.Get("/types", h.handleListTypes)

	// Device inventory and capability commands
	r.Get("/devices", h.handleListDevices)
	r.Route("/devices/{type}", func(r chi.Router) {
		r.Get("/", h.handleDevicesByType)
		r.Route("/{serial}", func(r chi.Router) {
			r.Get("/", h.handleDeviceDetails)
			r.Post("/motor", h.handleSetMotor)
			r.Get("/motor/{channel}", h.handleGetMotor)
			r.Post("/servo", h.handleSetServo)
			r.Get("/servo/{channel}", h.handleGetServo)
			r.Post("/power", h.handleSetPower)
			r.Get("/power/{channel}", h.handleGetPower)
			r.Post("/led", h.handleSetLED)
			r.Get("/led/{identifier}", h.handleGetLED)
			r.Get("/inputs/{pin}", h.handleReadInput)
			r.Get("/battery", h.handleBattery)
		})
	})

	// On-demand discovery
	r.Post("/rescan", h.handleRescan)

	// Broker management
	r.Route("/brokers", func(r chi.Router) {
		r.Get("/", h.handleListBrokers)
		r.Post("/mqtt", h.handleCreateMQTT)
		r.Put("/mqtt/{name}", h.handleUpdateMQTT)
		r.Delete("/mqtt/{name}", h.handleDeleteMQTT)
		r.Post("/valkey", h.handleCreateValkey)
		r.Put("/valkey/{name}", h.handleUpdateValkey)
		r.Delete("/valkey/{name}", h.handleDeleteValkey)
		r.Post("/kafka", h.handleCreateKafka)
		r.Put("/kafka/{name}", h.handleUpdateKafka)
		r.Delete("/kafka/{name}", h.handleDeleteKafka)
	})

	// System settings
	r.Put("/namespace", h.handleSetNamespace)

	// Live event stream
	hub := newEventHub(h.engine)
	r.Get("/events", hub.handleSSE)

	return r, hub.stop
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDeviceError maps the shared error taxonomy onto HTTP status codes.
func (h *handlers) writeDeviceError(w http.ResponseWriter, err error) {
	var oor *capability.OutOfRangeError
	switch {
	case errors.Is(err, board.ErrUnknownDeviceType):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrDeviceNotPresent):
		h.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, board.ErrCapabilityNotSupported):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, board.ErrMediumUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, resolver.ErrResolverClosed), errors.Is(err, resolver.ErrNotActive):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &oor):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func deviceResponse(dev *board.Device) DeviceResponse {
	desc := dev.Descriptor()
	kinds := dev.Kinds()
	caps := make([]string, 0, len(kinds))
	for _, k := range kinds {
		caps = append(caps, string(k))
	}
	return DeviceResponse{
		Type:         string(desc.Type),
		Serial:       desc.Serial,
		Firmware:     desc.Firmware,
		Capabilities: caps,
		Present:      !dev.Detached(),
	}
}

// lookupDevice resolves the {type}/{serial} URL pair to a live device.
func (h *handlers) lookupDevice(w http.ResponseWriter, r *http.Request) (*board.Device, bool) {
	typeName := chi.URLParam(r, "type")
	typeName, _ = url.PathUnescape(typeName)
	serial := chi.URLParam(r, "serial")
	serial, _ = url.PathUnescape(serial)

	t, err := board.ParseDeviceType(typeName)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}

	dev, err := h.managers.GetResolver().Device(t, serial)
	if err != nil {
		if errors.Is(err, board.ErrDeviceNotPresent) {
			h.writeError(w, http.StatusNotFound, err.Error())
		} else {
			h.writeDeviceError(w, err)
		}
		return nil, false
	}
	return dev, true
}

func urlParamInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	return strconv.Atoi(raw)
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := h.managers.GetConfig()
	res := h.managers.GetResolver()

	resp := StatusResponse{
		Namespace: cfg.Namespace,
		Medium:    cfg.Medium.Name,
		State:     res.State().String(),
	}
	if cfg.RescanInterval > 0 {
		resp.RescanInterval = cfg.RescanInterval.String()
	}
	if devs, err := res.Devices(); err == nil {
		resp.Devices = len(devs)
	}

	h.writeJSON(w, resp)
}

func (h *handlers) handleListTypes(w http.ResponseWriter, r *http.Request) {
	res := h.managers.GetResolver()
	response := make([]TypeResponse, 0, len(board.AllTypes()))

	for _, t := range board.AllTypes() {
		kinds, err := res.KindsFor(t)
		if err != nil {
			continue
		}
		caps := make([]string, 0, len(kinds))
		for _, k := range kinds {
			caps = append(caps, string(k))
		}
		response = append(response, TypeResponse{Type: string(t), Capabilities: caps})
	}

	h.writeJSON(w, response)
}

func (h *handlers) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devs, err := h.managers.GetResolver().Devices()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	response := make([]DeviceResponse, 0, len(devs))
	for _, dev := range devs {
		response = append(response, deviceResponse(dev))
	}
	h.writeJSON(w, response)
}

func (h *handlers) handleDevicesByType(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	typeName, _ = url.PathUnescape(typeName)

	t, err := board.ParseDeviceType(typeName)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	devs, err := h.managers.GetResolver().DevicesByType(t)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	response := make([]DeviceResponse, 0, len(devs))
	for _, dev := range devs {
		response = append(response, deviceResponse(dev))
	}
	h.writeJSON(w, response)
}

func (h *handlers) handleDeviceDetails(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, deviceResponse(dev))
}

func (h *handlers) handleRescan(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rescan not available")
		return
	}

	rep, err := h.engine.Rescan(r.Context())
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	resp := ScanResponse{
		Devices:   len(rep.Devices),
		Attached:  make([]DeviceResponse, 0, len(rep.Attached)),
		Detached:  make([]DeviceResponse, 0, len(rep.Detached)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, dev := range rep.Attached {
		resp.Attached = append(resp.Attached, deviceResponse(dev))
	}
	for _, dev := range rep.Detached {
		resp.Detached = append(resp.Detached, deviceResponse(dev))
	}
	if len(rep.BackendErrors) > 0 || len(rep.BindErrors) > 0 {
		resp.Errors = make(map[string]string)
		for t, err := range rep.BackendErrors {
			resp.Errors[string(t)] = err.Error()
		}
		for key, err := range rep.BindErrors {
			resp.Errors[key] = err.Error()
		}
	}

	h.writeJSON(w, resp)
}
