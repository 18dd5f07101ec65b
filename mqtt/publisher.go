// Package mqtt publishes device inventory and lifecycle events to MQTT brokers.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"botlink/config"
	"botlink/logging"
	"botlink/namespace"
)

// Publisher handles the MQTT connection to a single broker.
type Publisher struct {
	config  *config.MQTTConfig
	ns      *namespace.Builder
	client  pahomqtt.Client
	running bool
	mu      sync.RWMutex

	// Track last published device payloads to suppress unchanged retransmits
	lastValues map[string]string
	lastMu     sync.RWMutex
}

// DeviceMessage is the JSON structure published for a device's state.
type DeviceMessage struct {
	Namespace    string   `json:"namespace"`
	Type         string   `json:"type"`
	Serial       string   `json:"serial"`
	Firmware     string   `json:"firmware"`
	Capabilities []string `json:"capabilities,omitempty"`
	Present      bool     `json:"present"`
	Timestamp    string   `json:"timestamp"`
}

// EventMessage is the JSON structure published for lifecycle events.
type EventMessage struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"` // attach, detach, scan, backend_error
	Type      string `json:"type,omitempty"`
	Serial    string `json:"serial,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewPublisher creates a new MQTT publisher for a single broker.
func NewPublisher(cfg *config.MQTTConfig, ns string) *Publisher {
	return &Publisher{
		config:     cfg,
		ns:         namespace.New(ns, cfg.Selector),
		lastValues: make(map[string]string),
	}
}

// Name returns the publisher's name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Start connects to the MQTT broker.
func (p *Publisher) Start() error {
	// Quick check if already running
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	// Build options WITHOUT holding the lock
	opts := pahomqtt.NewClientOptions()

	// Configure broker URL based on TLS setting
	if p.config.UseTLS {
		opts.AddBroker(fmt.Sprintf("ssl://%s:%d", p.config.Broker, p.config.Port))
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		opts.SetTLSConfig(tlsConfig)
	} else {
		opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port))
	}

	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	// Create client and connect WITHOUT holding the lock
	client := pahomqtt.NewClient(opts)
	logging.DebugLog("mqtt", "Attempting to connect to MQTT broker %s:%d", p.config.Broker, p.config.Port)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		logging.DebugLog("mqtt", "MQTT connection timeout")
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		logging.DebugLog("mqtt", "MQTT connection error: %v", token.Error())
		return token.Error()
	}

	logging.DebugLog("mqtt", "Successfully connected to MQTT broker %s:%d", p.config.Broker, p.config.Port)

	// Now acquire lock to update state
	p.mu.Lock()

	// Double-check we're not already running (race condition check)
	if p.running {
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}

	p.client = client
	p.running = true
	p.mu.Unlock()

	// Clear last values to force republish of all devices
	p.lastMu.Lock()
	p.lastValues = make(map[string]string)
	p.lastMu.Unlock()

	return nil
}

// Stop disconnects from the MQTT broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running || p.client == nil {
		p.mu.Unlock()
		return
	}

	p.running = false
	client := p.client
	p.client = nil
	p.mu.Unlock()

	// Disconnect OUTSIDE the lock to prevent blocking
	client.Disconnect(500)
}

// PublishDevice sends a device state message, retained, if it differs from the
// last published payload for that device.
func (p *Publisher) PublishDevice(msg DeviceMessage) bool {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return false
	}

	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	// Dedupe on everything except the timestamp.
	cacheKey := msg.Type + "/" + msg.Serial
	fingerprint := fmt.Sprintf("%s|%v|%v", msg.Firmware, msg.Present, msg.Capabilities)

	p.lastMu.RLock()
	last, exists := p.lastValues[cacheKey]
	p.lastMu.RUnlock()
	if exists && last == fingerprint {
		return false
	}

	topic := p.ns.MQTTDeviceTopic(msg.Type, msg.Serial)
	token := client.Publish(topic, 1, true, payload)

	// Use timeout to prevent blocking
	if !token.WaitTimeout(2 * time.Second) {
		return false
	}
	if token.Error() != nil {
		return false
	}

	p.lastMu.Lock()
	p.lastValues[cacheKey] = fingerprint
	p.lastMu.Unlock()

	return true
}

// PublishEvent sends a lifecycle event message. Events are not retained.
func (p *Publisher) PublishEvent(msg EventMessage) bool {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return false
	}

	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	token := client.Publish(p.ns.MQTTEventTopic(msg.Event), 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return false
	}
	return token.Error() == nil
}

// PublishInventory sends the full inventory snapshot, retained.
func (p *Publisher) PublishInventory(payload []byte) bool {
	p.mu.RLock()
	running := p.running
	client := p.client
	p.mu.RUnlock()

	if !running || client == nil {
		return false
	}

	token := client.Publish(p.ns.MQTTInventoryTopic(), 1, true, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return false
	}
	return token.Error() == nil
}

// ForgetDevice clears the dedupe cache entry so the next PublishDevice for
// that identity always transmits.
func (p *Publisher) ForgetDevice(deviceType, serial string) {
	p.lastMu.Lock()
	delete(p.lastValues, deviceType+"/"+serial)
	p.lastMu.Unlock()
}

// Address returns the broker address string.
func (p *Publisher) Address() string {
	if p.config.UseTLS {
		return fmt.Sprintf("ssl://%s:%d", p.config.Broker, p.config.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
}

// Config returns the publisher's configuration.
func (p *Publisher) Config() *config.MQTTConfig {
	return p.config
}

// Manager manages multiple MQTT publishers.
type Manager struct {
	publishers map[string]*Publisher
	mu         sync.RWMutex
}

// NewManager creates a new MQTT manager.
func NewManager() *Manager {
	return &Manager{
		publishers: make(map[string]*Publisher),
	}
}

// Add adds a publisher to the manager.
func (m *Manager) Add(pub *Publisher) {
	m.mu.Lock()
	m.publishers[pub.Name()] = pub
	m.mu.Unlock()
}

// Remove removes a publisher by name.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	pub, exists := m.publishers[name]
	if exists {
		delete(m.publishers, name)
	}
	m.mu.Unlock()

	if exists {
		pub.Stop()
	}
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishers[name]
}

// List returns all publishers.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Publisher, 0, len(m.publishers))
	for _, pub := range m.publishers {
		result = append(result, pub)
	}
	return result
}

// StartAll starts all publishers that are configured as enabled.
// Returns the number of publishers successfully started.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if pub.config.Enabled && !pub.IsRunning() {
			logging.DebugLog("mqtt", "Auto-starting MQTT publisher: %s", pub.Name())
			if err := pub.Start(); err != nil {
				logging.DebugLog("mqtt", "Failed to auto-start %s: %v", pub.Name(), err)
			} else {
				logging.DebugLog("mqtt", "Successfully started %s (%s)", pub.Name(), pub.Address())
				started++
			}
		}
	}
	return started
}

// StopAll stops all publishers.
func (m *Manager) StopAll() {
	for _, pub := range m.List() {
		pub.Stop()
	}
}

// AnyRunning returns true if any publisher is running.
func (m *Manager) AnyRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, pub := range m.publishers {
		if pub.IsRunning() {
			return true
		}
	}
	return false
}

// PublishDevice fans a device state message out to all running publishers.
func (m *Manager) PublishDevice(msg DeviceMessage) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			pub.PublishDevice(msg)
		}
	}
}

// PublishEvent fans a lifecycle event out to all running publishers.
func (m *Manager) PublishEvent(msg EventMessage) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			pub.PublishEvent(msg)
		}
	}
}

// PublishInventory fans an inventory snapshot out to all running publishers.
func (m *Manager) PublishInventory(payload []byte) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			pub.PublishInventory(payload)
		}
	}
}

// ForgetDevice clears dedupe caches for a device on all publishers.
func (m *Manager) ForgetDevice(deviceType, serial string) {
	for _, pub := range m.List() {
		pub.ForgetDevice(deviceType, serial)
	}
}

// LoadFromConfig creates publishers from configuration.
func (m *Manager) LoadFromConfig(cfgs []config.MQTTConfig, ns string) {
	for i := range cfgs {
		m.Add(NewPublisher(&cfgs[i], ns))
	}
}
