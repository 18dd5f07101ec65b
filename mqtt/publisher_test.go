package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"botlink/config"
)

func TestNewPublisher(t *testing.T) {
	cfg := &config.MQTTConfig{
		Name:    "test",
		Broker:  "localhost",
		Port:    1883,
		Enabled: true,
	}
	pub := NewPublisher(cfg, "robot1")

	if pub == nil {
		t.Fatal("expected non-nil publisher")
	}
	if pub.Name() != "test" {
		t.Errorf("expected name 'test', got %q", pub.Name())
	}
	if pub.IsRunning() {
		t.Error("new publisher should not be running")
	}
}

func TestPublisherAddress(t *testing.T) {
	t.Run("tcp address", func(t *testing.T) {
		cfg := &config.MQTTConfig{
			Broker: "localhost",
			Port:   1883,
			UseTLS: false,
		}
		pub := NewPublisher(cfg, "robot1")

		if addr := pub.Address(); addr != "tcp://localhost:1883" {
			t.Errorf("expected 'tcp://localhost:1883', got %q", addr)
		}
	})

	t.Run("ssl address", func(t *testing.T) {
		cfg := &config.MQTTConfig{
			Broker: "localhost",
			Port:   8883,
			UseTLS: true,
		}
		pub := NewPublisher(cfg, "robot1")

		if addr := pub.Address(); addr != "ssl://localhost:8883" {
			t.Errorf("expected 'ssl://localhost:8883', got %q", addr)
		}
	})
}

func TestDeviceMessagePayload(t *testing.T) {
	msg := DeviceMessage{
		Namespace:    "robot1",
		Type:         "motor_board",
		Serial:       "SN001",
		Firmware:     "v2",
		Capabilities: []string{"motor", "led"},
		Present:      true,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	requiredFields := []string{"namespace", "type", "serial", "firmware", "capabilities", "present", "timestamp"}
	for _, field := range requiredFields {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}

func TestEventMessageOmitsEmptyFields(t *testing.T) {
	msg := EventMessage{
		Namespace: "robot1",
		Event:     "scan",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if _, ok := decoded["serial"]; ok {
		t.Error("serial should be omitted when empty")
	}
	if _, ok := decoded["detail"]; ok {
		t.Error("detail should be omitted when empty")
	}
	if decoded["event"] != "scan" {
		t.Errorf("expected event 'scan', got %v", decoded["event"])
	}
}

func TestManagerOperations(t *testing.T) {
	m := NewManager()

	cfg := &config.MQTTConfig{Name: "broker1", Broker: "localhost", Port: 1883}
	m.Add(NewPublisher(cfg, "robot1"))

	if m.Get("broker1") == nil {
		t.Fatal("expected to find broker1")
	}
	if len(m.List()) != 1 {
		t.Errorf("expected 1 publisher, got %d", len(m.List()))
	}
	if m.AnyRunning() {
		t.Error("no publisher should be running")
	}

	m.Remove("broker1")
	if m.Get("broker1") != nil {
		t.Error("broker1 should be removed")
	}
}

func TestLoadFromConfig(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]config.MQTTConfig{
		{Name: "a", Broker: "host-a", Port: 1883},
		{Name: "b", Broker: "host-b", Port: 8883, UseTLS: true},
	}, "robot1")

	if len(m.List()) != 2 {
		t.Fatalf("expected 2 publishers, got %d", len(m.List()))
	}
	if m.Get("b").Address() != "ssl://host-b:8883" {
		t.Errorf("unexpected address %q", m.Get("b").Address())
	}
}
