package valkey

import (
	"encoding/json"
	"testing"
	"time"

	"botlink/config"
)

func TestDeviceMessageStructure(t *testing.T) {
	t.Run("all fields present", func(t *testing.T) {
		msg := DeviceMessage{
			Namespace:    "robot1",
			Type:         "motor_board",
			Serial:       "SN001",
			Firmware:     "v2",
			Capabilities: []string{"motor", "led"},
			Present:      true,
			Timestamp:    time.Now().UTC(),
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
	})

	t.Run("capabilities omitted when empty", func(t *testing.T) {
		msg := DeviceMessage{
			Namespace: "robot1",
			Type:      "motor_board",
			Serial:    "SN001",
			Firmware:  "v2",
			Timestamp: time.Now().UTC(),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}

		if _, ok := decoded["capabilities"]; ok {
			t.Error("capabilities should be omitted when empty")
		}
	})
}

func TestEventMessageStructure(t *testing.T) {
	t.Run("attach event", func(t *testing.T) {
		msg := EventMessage{
			Namespace: "robot1",
			Event:     "attach",
			Type:      "motor_board",
			Serial:    "SN001",
			Timestamp: time.Now().UTC(),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}

		if decoded["event"] != "attach" {
			t.Errorf("expected event 'attach', got %v", decoded["event"])
		}
		if _, ok := decoded["detail"]; ok {
			t.Error("detail should be omitted when empty")
		}
	})

	t.Run("backend error event carries detail", func(t *testing.T) {
		msg := EventMessage{
			Namespace: "robot1",
			Event:     "backend_error",
			Type:      "servo_board",
			Detail:    "medium unavailable",
			Timestamp: time.Now().UTC(),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}

		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}

		if decoded["detail"] != "medium unavailable" {
			t.Errorf("detail mismatch: %v", decoded["detail"])
		}
		if _, ok := decoded["serial"]; ok {
			t.Error("serial should be omitted when empty")
		}
	})
}

func TestTimestampFormat(t *testing.T) {
	msg := DeviceMessage{
		Namespace: "robot1",
		Type:      "motor_board",
		Serial:    "SN001",
		Firmware:  "v2",
		Timestamp: time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	// Timestamp should be in RFC3339 format
	ts := decoded["timestamp"].(string)
	if ts != "2024-01-15T10:30:45Z" {
		t.Errorf("unexpected timestamp format: %s", ts)
	}
}

func TestPublisherAddress(t *testing.T) {
	t.Run("plain address", func(t *testing.T) {
		pub := NewPublisher(&config.ValkeyConfig{Address: "localhost:6379"}, "robot1")
		if pub.Address() != "redis://localhost:6379" {
			t.Errorf("unexpected address %q", pub.Address())
		}
	})

	t.Run("tls address", func(t *testing.T) {
		pub := NewPublisher(&config.ValkeyConfig{Address: "valkey.local:6380", UseTLS: true}, "robot1")
		if pub.Address() != "rediss://valkey.local:6380" {
			t.Errorf("unexpected address %q", pub.Address())
		}
	})
}

func TestManagerOperations(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]config.ValkeyConfig{
		{Name: "cache1", Address: "localhost:6379"},
		{Name: "cache2", Address: "localhost:6380"},
	}, "robot1")

	if len(m.List()) != 2 {
		t.Fatalf("expected 2 publishers, got %d", len(m.List()))
	}
	if m.Get("cache1") == nil {
		t.Fatal("expected to find cache1")
	}
	if m.Get("nonexistent") != nil {
		t.Error("expected nil for nonexistent publisher")
	}
	if m.AnyRunning() {
		t.Error("no publisher should be running")
	}

	if !m.Remove("cache1") {
		t.Error("Remove returned false")
	}
	if m.Get("cache1") != nil {
		t.Error("cache1 should be removed")
	}
	if m.Remove("cache1") {
		t.Error("second Remove should return false")
	}
}
