package engine

import "time"

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Medium events
	EventMediumActivated EventType = iota + 1
	EventMediumShutDown

	// Device events
	EventDeviceAttached
	EventDeviceDetached

	// Discovery events
	EventScanCompleted
	EventBackendFailed
	EventBindFailed

	// MQTT events
	EventMQTTCreated
	EventMQTTUpdated
	EventMQTTDeleted
	EventMQTTStarted
	EventMQTTStopped

	// Valkey events
	EventValkeyCreated
	EventValkeyUpdated
	EventValkeyDeleted
	EventValkeyStarted
	EventValkeyStopped

	// Kafka events
	EventKafkaCreated
	EventKafkaUpdated
	EventKafkaDeleted
	EventKafkaConnected
	EventKafkaDisconnected

	// System events
	EventNamespaceChanged
	EventRescanIntervalChanged
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// MediumEvent is the payload for medium lifecycle events.
type MediumEvent struct {
	Name string
}

// DeviceEvent is the payload for device attach/detach events.
type DeviceEvent struct {
	DeviceType string
	Serial     string
	Firmware   string
}

// ScanEvent is the payload for discovery pass completion.
type ScanEvent struct {
	Devices  int
	Attached int
	Detached int
	Errors   int
}

// BackendEvent is the payload for per-backend discovery failures.
type BackendEvent struct {
	DeviceType string
	Error      string
}

// BindEvent is the payload for per-device bind failures.
type BindEvent struct {
	DeviceKey string
	Error     string
}

// ServiceEvent is the payload for MQTT/Valkey/Kafka lifecycle events.
type ServiceEvent struct {
	Name string
}

// SystemEvent is the payload for system-level events.
type SystemEvent struct {
	Detail string
}
