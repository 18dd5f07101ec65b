package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Medium.Name != MediumHardware {
		t.Errorf("expected hardware medium by default, got %s", cfg.Medium.Name)
	}
	if !cfg.Medium.Eager {
		t.Error("expected eager backend instantiation by default")
	}
	if !cfg.Web.Enabled {
		t.Error("expected Web.Enabled true by default")
	}
	if !cfg.Web.UI.Enabled {
		t.Error("expected Web.UI.Enabled true by default")
	}
	if !cfg.Web.API.Enabled {
		t.Error("expected Web.API.Enabled true by default")
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected Web port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected Web host 0.0.0.0, got %s", cfg.Web.Host)
	}
	if cfg.RescanInterval != 0 {
		t.Error("expected automatic rescans disabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default valid", func(c *Config) {}, false},
		{"valid namespace", func(c *Config) { c.Namespace = "cell-4.line_2" }, false},
		{"invalid namespace", func(c *Config) { c.Namespace = "bad namespace" }, true},
		{"console medium", func(c *Config) { c.Medium.Name = MediumConsole }, false},
		{"unknown medium", func(c *Config) { c.Medium.Name = "telepathy" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("returns default for nonexistent file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Medium.Name != MediumHardware {
			t.Error("expected default config")
		}
	})

	t.Run("save and load roundtrip", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test.yaml")

		cfg := &Config{
			Namespace: "robot1",
			Medium: MediumConfig{
				Name:       MediumConsole,
				AllowTypes: []string{"motor_board"},
				Console: []FixtureConfig{
					{Type: "motor_board", Serial: "SIM1", Firmware: "v2"},
				},
			},
			RescanInterval: 5 * time.Second,
			MQTT: []MQTTConfig{
				{Name: "TestMQTT", Broker: "mqtt.local", Port: 1883},
			},
		}

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if loaded.Namespace != "robot1" {
			t.Errorf("namespace not preserved: %s", loaded.Namespace)
		}
		if loaded.Medium.Name != MediumConsole {
			t.Error("medium selection not preserved")
		}
		if len(loaded.Medium.Console) != 1 || loaded.Medium.Console[0].Serial != "SIM1" {
			t.Error("console fixtures not preserved")
		}
		if loaded.RescanInterval != 5*time.Second {
			t.Errorf("expected 5s rescan interval, got %v", loaded.RescanInterval)
		}
		if len(loaded.MQTT) != 1 || loaded.MQTT[0].Broker != "mqtt.local" {
			t.Error("MQTT config not preserved")
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		path := filepath.Join(tmpDir, "subdir", "nested", "config.yaml")
		cfg := DefaultConfig()

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("config file was not created")
		}
	})

	t.Run("returns error for invalid yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "invalid.yaml")
		os.WriteFile(path, []byte("invalid: yaml: content: ["), 0644)

		_, err := Load(path)
		if err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestMQTTOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddMQTT and FindMQTT", func(t *testing.T) {
		mqtt := MQTTConfig{Name: "Broker1", Broker: "mqtt.local"}
		cfg.AddMQTT(mqtt)

		found := cfg.FindMQTT("Broker1")
		if found == nil {
			t.Fatal("FindMQTT returned nil")
		}
		if found.Broker != "mqtt.local" {
			t.Errorf("expected broker 'mqtt.local', got %s", found.Broker)
		}
	})

	t.Run("UpdateMQTT", func(t *testing.T) {
		updated := MQTTConfig{Name: "Broker1", Broker: "mqtt2.local", Port: 8883}
		if !cfg.UpdateMQTT("Broker1", updated) {
			t.Error("UpdateMQTT returned false")
		}

		found := cfg.FindMQTT("Broker1")
		if found.Port != 8883 {
			t.Error("MQTT not updated")
		}
	})

	t.Run("RemoveMQTT", func(t *testing.T) {
		if !cfg.RemoveMQTT("Broker1") {
			t.Error("RemoveMQTT returned false")
		}
		if cfg.FindMQTT("Broker1") != nil {
			t.Error("MQTT not removed")
		}
	})

	t.Run("FindMQTT returns nil for nonexistent", func(t *testing.T) {
		if cfg.FindMQTT("nonexistent") != nil {
			t.Error("expected nil for nonexistent broker")
		}
	})
}

func TestValkeyOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddValkey and FindValkey", func(t *testing.T) {
		valkey := ValkeyConfig{Name: "Redis1", Address: "localhost:6379"}
		cfg.AddValkey(valkey)

		found := cfg.FindValkey("Redis1")
		if found == nil {
			t.Fatal("FindValkey returned nil")
		}
		if found.Address != "localhost:6379" {
			t.Errorf("expected address 'localhost:6379', got %s", found.Address)
		}
	})

	t.Run("UpdateValkey", func(t *testing.T) {
		updated := ValkeyConfig{Name: "Redis1", Address: "redis.local:6380"}
		if !cfg.UpdateValkey("Redis1", updated) {
			t.Error("UpdateValkey returned false")
		}

		found := cfg.FindValkey("Redis1")
		if found.Address != "redis.local:6380" {
			t.Error("Valkey not updated")
		}
	})

	t.Run("RemoveValkey", func(t *testing.T) {
		if !cfg.RemoveValkey("Redis1") {
			t.Error("RemoveValkey returned false")
		}
		if cfg.FindValkey("Redis1") != nil {
			t.Error("Valkey not removed")
		}
	})
}

func TestKafkaOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddKafka and FindKafka", func(t *testing.T) {
		kafka := KafkaConfig{Name: "Cluster1", Brokers: []string{"kafka:9092"}}
		cfg.AddKafka(kafka)

		found := cfg.FindKafka("Cluster1")
		if found == nil {
			t.Fatal("FindKafka returned nil")
		}
		if len(found.Brokers) != 1 || found.Brokers[0] != "kafka:9092" {
			t.Errorf("expected brokers ['kafka:9092'], got %v", found.Brokers)
		}
	})

	t.Run("UpdateKafka", func(t *testing.T) {
		updated := KafkaConfig{Name: "Cluster1", Brokers: []string{"kafka1:9092", "kafka2:9092"}}
		if !cfg.UpdateKafka("Cluster1", updated) {
			t.Error("UpdateKafka returned false")
		}

		found := cfg.FindKafka("Cluster1")
		if len(found.Brokers) != 2 {
			t.Error("Kafka not updated")
		}
	})

	t.Run("RemoveKafka", func(t *testing.T) {
		if !cfg.RemoveKafka("Cluster1") {
			t.Error("RemoveKafka returned false")
		}
		if cfg.FindKafka("Cluster1") != nil {
			t.Error("Kafka not removed")
		}
	})
}

func TestWebUserOperations(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("AddWebUser and FindWebUser", func(t *testing.T) {
		cfg.AddWebUser(WebUser{Username: "operator", Role: RoleViewer})

		found := cfg.FindWebUser("operator")
		if found == nil {
			t.Fatal("FindWebUser returned nil")
		}
		if found.Role != RoleViewer {
			t.Errorf("expected role viewer, got %s", found.Role)
		}
	})

	t.Run("UpdateWebUser", func(t *testing.T) {
		if !cfg.UpdateWebUser("operator", WebUser{Username: "operator", Role: RoleAdmin}) {
			t.Error("UpdateWebUser returned false")
		}
		if cfg.FindWebUser("operator").Role != RoleAdmin {
			t.Error("user not updated")
		}
	})

	t.Run("RemoveWebUser", func(t *testing.T) {
		if !cfg.RemoveWebUser("operator") {
			t.Error("RemoveWebUser returned false")
		}
		if cfg.FindWebUser("operator") != nil {
			t.Error("user not removed")
		}
	})
}

func TestSessionSecretGenerated(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "secret.yaml")

	os.WriteFile(path, []byte(`
namespace: test
web:
  enabled: true
  host: "0.0.0.0"
  port: 8080
  ui:
    enabled: true
`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// No auto-admin should be created (setup wizard handles first user)
	if len(cfg.Web.UI.Users) != 0 {
		t.Fatalf("expected 0 users, got %d", len(cfg.Web.UI.Users))
	}

	if cfg.Web.UI.SessionSecret == "" {
		t.Error("expected session secret to be generated")
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if path == "" {
		t.Error("DefaultPath returned empty string")
	}
	if !filepath.IsAbs(path) && path != "config.yaml" {
		t.Error("expected absolute path or 'config.yaml'")
	}
}
