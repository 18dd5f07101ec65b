// Package namespace provides utilities for constructing topic and key paths
// with consistent namespace prefixing across all services (MQTT, Valkey, Kafka).
package namespace

// Builder constructs namespace-prefixed topics and keys.
type Builder struct {
	namespace string
	selector  string
}

// New creates a new namespace builder.
func New(namespace, selector string) *Builder {
	return &Builder{
		namespace: namespace,
		selector:  selector,
	}
}

// --- MQTT (delimiter: /) ---

// MQTTDeviceTopic returns the topic for a device's state: {ns}[/{sel}]/devices/{type}/{serial}
func (b *Builder) MQTTDeviceTopic(deviceType, serial string) string {
	return b.mqttBase() + "/devices/" + deviceType + "/" + serial
}

// MQTTEventTopic returns the topic for a lifecycle event: {ns}[/{sel}]/events/{event}
func (b *Builder) MQTTEventTopic(event string) string {
	return b.mqttBase() + "/events/" + event
}

// MQTTInventoryTopic returns the topic for the full device inventory: {ns}[/{sel}]/inventory
func (b *Builder) MQTTInventoryTopic() string {
	return b.mqttBase() + "/inventory"
}

// MQTTBase returns the base topic for JSON messages: {ns}[/{sel}]
func (b *Builder) MQTTBase() string {
	return b.mqttBase()
}

func (b *Builder) mqttBase() string {
	if b.selector != "" {
		return b.namespace + "/" + b.selector
	}
	return b.namespace
}

// --- Valkey (delimiter: :) ---

// ValkeyDeviceKey returns the key for a device's state: {ns}[:{sel}]:devices:{type}:{serial}
func (b *Builder) ValkeyDeviceKey(deviceType, serial string) string {
	return b.valkeyBase() + ":devices:" + deviceType + ":" + serial
}

// ValkeyInventoryKey returns the key for the device inventory: {ns}[:{sel}]:inventory
func (b *Builder) ValkeyInventoryKey() string {
	return b.valkeyBase() + ":inventory"
}

// ValkeyEventsChannel returns the Pub/Sub channel for lifecycle events: {ns}[:{sel}]:events
func (b *Builder) ValkeyEventsChannel() string {
	return b.valkeyBase() + ":events"
}

// ValkeyTypeChannel returns the Pub/Sub channel for one board type's events:
// {ns}[:{sel}]:devices:{type}:events
func (b *Builder) ValkeyTypeChannel(deviceType string) string {
	return b.valkeyBase() + ":devices:" + deviceType + ":events"
}

func (b *Builder) valkeyBase() string {
	if b.selector != "" {
		return b.namespace + ":" + b.selector
	}
	return b.namespace
}

// --- Kafka (delimiter: - for topics, . for health) ---

// KafkaEventTopic returns the topic for lifecycle events: {ns}[-{sel}]-events
// The descriptor key is used as the message key for partitioning.
func (b *Builder) KafkaEventTopic() string {
	return b.kafkaBase() + "-events"
}

// KafkaInventoryTopic returns the topic for inventory snapshots: {ns}[-{sel}]
func (b *Builder) KafkaInventoryTopic() string {
	return b.kafkaBase()
}

// KafkaHealthTopic returns the topic for gateway health: {ns}[-{sel}].health
func (b *Builder) KafkaHealthTopic() string {
	return b.kafkaBase() + ".health"
}

func (b *Builder) kafkaBase() string {
	if b.selector != "" {
		return b.namespace + "-" + b.selector
	}
	return b.namespace
}
