// Package valkey stores the device inventory in Valkey/Redis and publishes
// lifecycle events over Pub/Sub.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"botlink/config"
	"botlink/logging"
	"botlink/namespace"
)

// DeviceMessage represents a device state record stored in Valkey.
type DeviceMessage struct {
	Namespace    string    `json:"namespace"`
	Type         string    `json:"type"`
	Serial       string    `json:"serial"`
	Firmware     string    `json:"firmware"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Present      bool      `json:"present"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventMessage represents a lifecycle event published over Pub/Sub.
type EventMessage struct {
	Namespace string    `json:"namespace"`
	Event     string    `json:"event"` // attach, detach, scan, backend_error
	Type      string    `json:"type,omitempty"`
	Serial    string    `json:"serial,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher handles publishing device state to a Valkey server.
type Publisher struct {
	config  *config.ValkeyConfig
	ns      *namespace.Builder
	client  *redis.Client
	running bool
	mu      sync.RWMutex

	onConnectCallback func()
}

// NewPublisher creates a new Valkey publisher.
func NewPublisher(cfg *config.ValkeyConfig, ns string) *Publisher {
	return &Publisher{
		config: cfg,
		ns:     namespace.New(ns, cfg.Selector),
	}
}

// Start connects to the Valkey server.
func (p *Publisher) Start() error {
	// Check if already running (quick check with lock)
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	// Create client options
	opts := &redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}

	if p.config.UseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	// Create client and test connection WITHOUT holding the lock
	client := redis.NewClient(opts)

	logging.DebugLog("valkey", "Attempting to connect to Valkey at %s (DB: %d, TLS: %v)",
		p.config.Address, p.config.Database, p.config.UseTLS)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.DebugLog("valkey", "Valkey connection failed: %v", err)
		client.Close()
		return fmt.Errorf("failed to connect to Valkey at %s: %w", p.config.Address, err)
	}

	logging.DebugLog("valkey", "Successfully connected to Valkey at %s", p.config.Address)

	// Now acquire lock to update state
	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check we're not already running (race condition check)
	if p.running {
		client.Close()
		return nil
	}

	p.client = client
	p.running = true

	// Call on-connect callback to publish the current inventory
	if p.onConnectCallback != nil {
		go p.onConnectCallback()
	}

	return nil
}

// Stop disconnects from the Valkey server.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}

	p.running = false
	client := p.client
	p.client = nil
	p.mu.Unlock()

	// Close OUTSIDE the lock to prevent blocking
	if client != nil {
		return client.Close()
	}
	return nil
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Config returns the publisher's configuration.
func (p *Publisher) Config() *config.ValkeyConfig {
	return p.config
}

// Address returns the server address.
func (p *Publisher) Address() string {
	scheme := "redis"
	if p.config.UseTLS {
		scheme = "rediss"
	}
	return fmt.Sprintf("%s://%s", scheme, p.config.Address)
}

// PublishDevice stores a device state record in Valkey.
func (p *Publisher) PublishDevice(msg DeviceMessage) error {
	p.mu.RLock()
	if !p.running || p.client == nil {
		p.mu.RUnlock()
		return nil
	}
	client := p.client
	cfg := p.config
	p.mu.RUnlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	key := p.ns.ValkeyDeviceKey(msg.Type, msg.Serial)

	// Use a short timeout to prevent blocking
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Set the key with optional TTL
	if cfg.KeyTTL > 0 {
		err = client.Set(ctx, key, data, cfg.KeyTTL).Err()
	} else {
		err = client.Set(ctx, key, data, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	// Publish to Pub/Sub if enabled
	if cfg.PublishChanges {
		client.Publish(ctx, p.ns.ValkeyTypeChannel(msg.Type), data)
	}

	return nil
}

// RemoveDevice deletes a device's record after it detaches.
func (p *Publisher) RemoveDevice(deviceType, serial string) error {
	p.mu.RLock()
	if !p.running || p.client == nil {
		p.mu.RUnlock()
		return nil
	}
	client := p.client
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return client.Del(ctx, p.ns.ValkeyDeviceKey(deviceType, serial)).Err()
}

// PublishEvent publishes a lifecycle event to the events channel.
func (p *Publisher) PublishEvent(msg EventMessage) error {
	p.mu.RLock()
	if !p.running || p.client == nil {
		p.mu.RUnlock()
		return nil
	}
	client := p.client
	p.mu.RUnlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return client.Publish(ctx, p.ns.ValkeyEventsChannel(), data).Err()
}

// PublishInventory stores the full inventory snapshot.
func (p *Publisher) PublishInventory(payload []byte) error {
	p.mu.RLock()
	if !p.running || p.client == nil {
		p.mu.RUnlock()
		return nil
	}
	client := p.client
	cfg := p.config
	p.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if cfg.KeyTTL > 0 {
		return client.Set(ctx, p.ns.ValkeyInventoryKey(), payload, cfg.KeyTTL).Err()
	}
	return client.Set(ctx, p.ns.ValkeyInventoryKey(), payload, 0).Err()
}

// SetOnConnectCallback sets the callback invoked after connection is established.
func (p *Publisher) SetOnConnectCallback(callback func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnectCallback = callback
}
