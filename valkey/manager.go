package valkey

import (
	"sync"

	"botlink/config"
	"botlink/logging"
)

// Manager manages multiple Valkey publishers.
type Manager struct {
	publishers []*Publisher
	mu         sync.RWMutex

	onConnectCallback func()
}

// NewManager creates a new Valkey manager.
func NewManager() *Manager {
	return &Manager{
		publishers: make([]*Publisher, 0),
	}
}

// LoadFromConfig loads publishers from configuration.
func (m *Manager) LoadFromConfig(configs []config.ValkeyConfig, ns string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range configs {
		pub := NewPublisher(&configs[i], ns)
		pub.SetOnConnectCallback(m.onConnectCallback)
		m.publishers = append(m.publishers, pub)
	}
}

// Add adds a new publisher.
func (m *Manager) Add(cfg *config.ValkeyConfig, ns string) *Publisher {
	m.mu.Lock()
	defer m.mu.Unlock()

	pub := NewPublisher(cfg, ns)
	pub.SetOnConnectCallback(m.onConnectCallback)
	m.publishers = append(m.publishers, pub)
	return pub
}

// Remove removes a publisher by name.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()

	var pubToStop *Publisher
	for i, pub := range m.publishers {
		if pub.config.Name == name {
			pubToStop = pub
			m.publishers = append(m.publishers[:i], m.publishers[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	// Stop OUTSIDE the lock to prevent blocking
	if pubToStop != nil {
		pubToStop.Stop()
		return true
	}
	return false
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, pub := range m.publishers {
		if pub.config.Name == name {
			return pub
		}
	}
	return nil
}

// List returns all publishers.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Publisher, len(m.publishers))
	copy(result, m.publishers)
	return result
}

// StartAll starts all enabled publishers.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if pub.config.Enabled {
			if err := pub.Start(); err != nil {
				logging.DebugLog("valkey", "Failed to start Valkey %s: %v", pub.config.Name, err)
			} else {
				logging.DebugLog("valkey", "Started Valkey %s at %s", pub.config.Name, pub.Address())
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

// PublishDevice stores a device record on all running publishers.
func (m *Manager) PublishDevice(msg DeviceMessage) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			if err := pub.PublishDevice(msg); err != nil {
				logging.DebugLog("valkey", "Valkey publish error (%s): %v", pub.config.Name, err)
			}
		}
	}
}

// RemoveDevice deletes a device record from all running publishers.
func (m *Manager) RemoveDevice(deviceType, serial string) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			if err := pub.RemoveDevice(deviceType, serial); err != nil {
				logging.DebugLog("valkey", "Valkey delete error (%s): %v", pub.config.Name, err)
			}
		}
	}
}

// PublishEvent publishes a lifecycle event on all running publishers.
func (m *Manager) PublishEvent(msg EventMessage) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			if err := pub.PublishEvent(msg); err != nil {
				logging.DebugLog("valkey", "Valkey event publish error (%s): %v", pub.config.Name, err)
			}
		}
	}
}

// PublishInventory stores the inventory snapshot on all running publishers.
func (m *Manager) PublishInventory(payload []byte) {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			if err := pub.PublishInventory(payload); err != nil {
				logging.DebugLog("valkey", "Valkey inventory publish error (%s): %v", pub.config.Name, err)
			}
		}
	}
}

// SetOnConnectCallback sets the callback invoked after connection is established.
func (m *Manager) SetOnConnectCallback(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onConnectCallback = callback
	for _, pub := range m.publishers {
		pub.SetOnConnectCallback(callback)
	}
}
