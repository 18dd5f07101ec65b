package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// MotorRequest is the JSON request for setting motor power.
type MotorRequest struct {
	Channel int     `json:"channel"`
	Power   float64 `json:"power"`
}

// ServoRequest is the JSON request for setting a servo position.
type ServoRequest struct {
	Channel  int     `json:"channel"`
	Position float64 `json:"position"`
}

// PowerRequest is the JSON request for switching a power output.
type PowerRequest struct {
	Channel int  `json:"channel"`
	Enabled bool `json:"enabled"`
}

// LEDRequest is the JSON request for setting an LED.
type LEDRequest struct {
	Identifier int  `json:"identifier"`
	Lit        bool `json:"lit"`
}

// CommandResponse is the JSON response after a capability command.
type CommandResponse struct {
	Type      string      `json:"type"`
	Serial    string      `json:"serial"`
	Command   string      `json:"command"`
	Value     interface{} `json:"value,omitempty"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// BatteryResponse is the JSON response for a battery reading.
type BatteryResponse struct {
	Type      string  `json:"type"`
	Serial    string  `json:"serial"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Timestamp string  `json:"timestamp"`
}

func (h *handlers) handleSetMotor(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}

	var req MotorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	motor, err := dev.Motor()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	if err := motor.SetMotorPower(req.Channel, req.Power); err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "motor",
		Value:     req.Power,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleGetMotor(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	channel, err := urlParamInt(r, "channel")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	motor, err := dev.Motor()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	power, err := motor.MotorPower(channel)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "motor",
		Value:     power,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleSetServo(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}

	var req ServoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	servo, err := dev.Servos()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	if err := servo.SetServoPosition(req.Channel, req.Position); err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "servo",
		Value:     req.Position,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleGetServo(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	channel, err := urlParamInt(r, "channel")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	servo, err := dev.Servos()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	position, err := servo.ServoPosition(channel)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "servo",
		Value:     position,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleSetPower(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	power, err := dev.PowerOutputs()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	if err := power.SetOutputEnabled(req.Channel, req.Enabled); err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "power",
		Value:     req.Enabled,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleGetPower(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	channel, err := urlParamInt(r, "channel")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}

	power, err := dev.PowerOutputs()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	enabled, err := power.OutputEnabled(channel)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	current, err := power.OutputCurrent(channel)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, map[string]interface{}{
		"type":      string(desc.Type),
		"serial":    desc.Serial,
		"channel":   channel,
		"enabled":   enabled,
		"current":   current,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleSetLED(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}

	var req LEDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	leds, err := dev.LEDs()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	if err := leds.SetLEDState(req.Identifier, req.Lit); err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "led",
		Value:     req.Lit,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleGetLED(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	identifier, err := urlParamInt(r, "identifier")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid identifier")
		return
	}

	leds, err := dev.LEDs()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	lit, err := leds.LEDState(identifier)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, CommandResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Command:   "led",
		Value:     lit,
		Success:   true,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleReadInput(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}
	pin, err := urlParamInt(r, "pin")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid pin")
		return
	}

	inputs, err := dev.DigitalInputs()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	high, err := inputs.ReadDigitalInput(pin)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, map[string]interface{}{
		"type":      string(desc.Type),
		"serial":    desc.Serial,
		"pin":       pin,
		"value":     high,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handlers) handleBattery(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookupDevice(w, r)
	if !ok {
		return
	}

	battery, err := dev.Battery()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	voltage, err := battery.BatteryVoltage()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	current, err := battery.BatteryCurrent()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}

	desc := dev.Descriptor()
	h.writeJSON(w, BatteryResponse{
		Type:      string(desc.Type),
		Serial:    desc.Serial,
		Voltage:   voltage,
		Current:   current,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
