package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"botlink/logging"
	"botlink/namespace"
)

// EventMessage is the JSON structure produced for device lifecycle events.
// The device identity (type/serial) is used as the message key so one
// device's events land on the same partition in order.
type EventMessage struct {
	Namespace string    `json:"namespace"`
	Event     string    `json:"event"` // attach, detach, scan, backend_error
	Type      string    `json:"type,omitempty"`
	Serial    string    `json:"serial,omitempty"`
	Firmware  string    `json:"firmware,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// cluster pairs a producer with its topic namespace.
type cluster struct {
	producer *Producer
	ns       *namespace.Builder
}

// Manager manages producers for multiple Kafka clusters.
type Manager struct {
	clusters map[string]*cluster
	mu       sync.RWMutex
}

// NewManager creates a new Kafka manager.
func NewManager() *Manager {
	return &Manager{
		clusters: make(map[string]*cluster),
	}
}

// AddCluster adds a cluster to the manager and returns its producer.
func (m *Manager) AddCluster(cfg *Config, ns string) *Producer {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := NewProducer(cfg)
	m.clusters[cfg.Name] = &cluster{
		producer: p,
		ns:       namespace.New(ns, cfg.Selector),
	}
	return p
}

// RemoveCluster removes a cluster by name.
func (m *Manager) RemoveCluster(name string) bool {
	m.mu.Lock()
	c, exists := m.clusters[name]
	if exists {
		delete(m.clusters, name)
	}
	m.mu.Unlock()

	// Disconnect OUTSIDE the lock to prevent blocking
	if exists {
		c.producer.Disconnect()
		return true
	}
	return false
}

// Get returns a producer by cluster name.
func (m *Manager) Get(name string) *Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.clusters[name]; ok {
		return c.producer
	}
	return nil
}

// List returns all producers.
func (m *Manager) List() []*Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Producer, 0, len(m.clusters))
	for _, c := range m.clusters {
		result = append(result, c.producer)
	}
	return result
}

// snapshot copies the cluster list so publishes run without the map lock.
func (m *Manager) snapshot() []*cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster, 0, len(m.clusters))
	for _, c := range m.clusters {
		result = append(result, c)
	}
	return result
}

// ConnectEnabled connects all enabled clusters that are not yet connected.
func (m *Manager) ConnectEnabled() int {
	connected := 0
	for _, c := range m.snapshot() {
		if !c.producer.config.Enabled || c.producer.GetStatus() == StatusConnected {
			continue
		}
		if err := c.producer.Connect(); err != nil {
			logging.DebugLog("kafka", "Failed to connect cluster %s: %v", c.producer.config.Name, err)
		} else {
			connected++
		}
	}
	return connected
}

// Connect connects one cluster by name.
func (m *Manager) Connect(name string) error {
	p := m.Get(name)
	if p == nil {
		return fmt.Errorf("kafka cluster '%s' not found", name)
	}
	return p.Connect()
}

// Disconnect disconnects one cluster by name.
func (m *Manager) Disconnect(name string) {
	if p := m.Get(name); p != nil {
		p.Disconnect()
	}
}

// StopAll disconnects all clusters.
func (m *Manager) StopAll() {
	for _, c := range m.snapshot() {
		c.producer.Disconnect()
	}
}

// AnyConnected returns true if any cluster is connected.
func (m *Manager) AnyConnected() bool {
	for _, c := range m.snapshot() {
		if c.producer.GetStatus() == StatusConnected {
			return true
		}
	}
	return false
}

// PublishEvent produces a lifecycle event on every connected cluster.
func (m *Manager) PublishEvent(msg EventMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.DebugLog("kafka", "event marshal error: %v", err)
		return
	}
	key := []byte(msg.Type + "/" + msg.Serial)

	for _, c := range m.snapshot() {
		if c.producer.GetStatus() != StatusConnected {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.producer.Produce(ctx, c.ns.KafkaEventTopic(), key, data); err != nil {
			logging.DebugLog("kafka", "event publish failed on %s: %v", c.producer.config.Name, err)
		}
		cancel()
	}
}

// PublishInventory produces an inventory snapshot on every connected cluster.
func (m *Manager) PublishInventory(payload []byte) {
	for _, c := range m.snapshot() {
		if c.producer.GetStatus() != StatusConnected {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.producer.Produce(ctx, c.ns.KafkaInventoryTopic(), []byte("inventory"), payload); err != nil {
			logging.DebugLog("kafka", "inventory publish failed on %s: %v", c.producer.config.Name, err)
		}
		cancel()
	}
}
