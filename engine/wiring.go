package engine

import (
	"encoding/json"
	"time"

	"botlink/board"
	"botlink/kafka"
	"botlink/logging"
	"botlink/mqtt"
	"botlink/resolver"
	"botlink/valkey"
)

// inventoryRecord is one device entry in the inventory snapshot.
type inventoryRecord struct {
	Type         string   `json:"type"`
	Serial       string   `json:"serial"`
	Firmware     string   `json:"firmware"`
	Capabilities []string `json:"capabilities"`
}

// inventorySnapshot is the full device set published after each scan.
type inventorySnapshot struct {
	Namespace string            `json:"namespace"`
	Medium    string            `json:"medium"`
	Devices   []inventoryRecord `json:"devices"`
	Timestamp time.Time         `json:"timestamp"`
}

func kindNames(dev *board.Device) []string {
	kinds := dev.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}

// publishReport pushes one discovery pass's changes to every broker.
func (e *Engine) publishReport(rep *resolver.Report) {
	ns := e.cfg.Namespace
	now := time.Now().UTC()

	for _, dev := range rep.Attached {
		desc := dev.Descriptor()
		e.emit(EventDeviceAttached, DeviceEvent{
			DeviceType: string(desc.Type),
			Serial:     desc.Serial,
			Firmware:   desc.Firmware,
		})

		e.mqttMgr.PublishDevice(mqtt.DeviceMessage{
			Namespace:    ns,
			Type:         string(desc.Type),
			Serial:       desc.Serial,
			Firmware:     desc.Firmware,
			Capabilities: kindNames(dev),
			Present:      true,
			Timestamp:    now.Format(time.RFC3339),
		})
		e.valkeyMgr.PublishDevice(valkey.DeviceMessage{
			Namespace:    ns,
			Type:         string(desc.Type),
			Serial:       desc.Serial,
			Firmware:     desc.Firmware,
			Capabilities: kindNames(dev),
			Present:      true,
			Timestamp:    now,
		})

		e.mqttMgr.PublishEvent(mqtt.EventMessage{
			Namespace: ns,
			Event:     "attach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Timestamp: now.Format(time.RFC3339),
		})
		e.valkeyMgr.PublishEvent(valkey.EventMessage{
			Namespace: ns,
			Event:     "attach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Timestamp: now,
		})
		e.kafkaMgr.PublishEvent(kafka.EventMessage{
			Namespace: ns,
			Event:     "attach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Firmware:  desc.Firmware,
			Timestamp: now,
		})
	}

	for _, dev := range rep.Detached {
		desc := dev.Descriptor()
		e.emit(EventDeviceDetached, DeviceEvent{
			DeviceType: string(desc.Type),
			Serial:     desc.Serial,
			Firmware:   desc.Firmware,
		})

		// Retained MQTT state flips to absent; Valkey records are deleted.
		e.mqttMgr.PublishDevice(mqtt.DeviceMessage{
			Namespace: ns,
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Firmware:  desc.Firmware,
			Present:   false,
			Timestamp: now.Format(time.RFC3339),
		})
		e.mqttMgr.ForgetDevice(string(desc.Type), desc.Serial)
		e.valkeyMgr.RemoveDevice(string(desc.Type), desc.Serial)

		e.mqttMgr.PublishEvent(mqtt.EventMessage{
			Namespace: ns,
			Event:     "detach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Timestamp: now.Format(time.RFC3339),
		})
		e.valkeyMgr.PublishEvent(valkey.EventMessage{
			Namespace: ns,
			Event:     "detach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Timestamp: now,
		})
		e.kafkaMgr.PublishEvent(kafka.EventMessage{
			Namespace: ns,
			Event:     "detach",
			Type:      string(desc.Type),
			Serial:    desc.Serial,
			Firmware:  desc.Firmware,
			Timestamp: now,
		})
	}

	for t, err := range rep.BackendErrors {
		e.emit(EventBackendFailed, BackendEvent{DeviceType: string(t), Error: err.Error()})

		e.mqttMgr.PublishEvent(mqtt.EventMessage{
			Namespace: ns,
			Event:     "backend_error",
			Type:      string(t),
			Detail:    err.Error(),
			Timestamp: now.Format(time.RFC3339),
		})
		e.valkeyMgr.PublishEvent(valkey.EventMessage{
			Namespace: ns,
			Event:     "backend_error",
			Type:      string(t),
			Detail:    err.Error(),
			Timestamp: now,
		})
		e.kafkaMgr.PublishEvent(kafka.EventMessage{
			Namespace: ns,
			Event:     "backend_error",
			Type:      string(t),
			Detail:    err.Error(),
			Timestamp: now,
		})
	}

	for key, err := range rep.BindErrors {
		e.emit(EventBindFailed, BindEvent{DeviceKey: key, Error: err.Error()})
	}

	if len(rep.Attached) > 0 || len(rep.Detached) > 0 {
		e.publishInventorySnapshot()
	}
}

// publishAllDevices re-publishes every live device, used when a publisher
// comes up after the inventory was already established.
func (e *Engine) publishAllDevices() {
	devs, err := e.res.Devices()
	if err != nil {
		return
	}

	ns := e.cfg.Namespace
	now := time.Now().UTC()
	for _, dev := range devs {
		desc := dev.Descriptor()
		e.mqttMgr.PublishDevice(mqtt.DeviceMessage{
			Namespace:    ns,
			Type:         string(desc.Type),
			Serial:       desc.Serial,
			Firmware:     desc.Firmware,
			Capabilities: kindNames(dev),
			Present:      true,
			Timestamp:    now.Format(time.RFC3339),
		})
	}
	e.publishInventorySnapshot()
}

// publishInventorySnapshot serializes the live device set and pushes it to
// every broker.
func (e *Engine) publishInventorySnapshot() {
	devs, err := e.res.Devices()
	if err != nil {
		return
	}

	snap := inventorySnapshot{
		Namespace: e.cfg.Namespace,
		Medium:    e.cfg.Medium.Name,
		Devices:   make([]inventoryRecord, 0, len(devs)),
		Timestamp: time.Now().UTC(),
	}
	for _, dev := range devs {
		desc := dev.Descriptor()
		snap.Devices = append(snap.Devices, inventoryRecord{
			Type:         string(desc.Type),
			Serial:       desc.Serial,
			Firmware:     desc.Firmware,
			Capabilities: kindNames(dev),
		})
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		logging.DebugLog("engine", "inventory marshal error: %v", err)
		return
	}

	e.mqttMgr.PublishInventory(payload)
	e.valkeyMgr.PublishInventory(payload)
	e.kafkaMgr.PublishInventory(payload)
}
