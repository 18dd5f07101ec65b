package engine

import (
	"context"
	"fmt"
	"time"

	"botlink/backend"
	"botlink/backend/console"
	"botlink/backend/serialhw"
	"botlink/board"
	"botlink/config"
	"botlink/kafka"
	"botlink/logging"
	"botlink/mqtt"
	"botlink/resolver"
	"botlink/valkey"
)

// LogFunc is the logging callback signature. Engine never imports the cmd package.
type LogFunc func(format string, args ...interface{})

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	LogFunc    LogFunc
}

// Engine centralizes all business logic: config mutations, resolver
// orchestration, and publisher wiring. WebUI and REST API become thin
// consumers.
type Engine struct {
	cfg        *config.Config
	configPath string
	logFn      LogFunc

	medium *backend.Medium
	res    *resolver.Resolver

	mqttMgr   *mqtt.Manager
	valkeyMgr *valkey.Manager
	kafkaMgr  *kafka.Manager

	Events *EventBus

	stopChan chan struct{}
}

// New creates a new Engine. Call Start() to activate the medium and wiring.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		logFn:      logFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
}

// Start builds the configured medium, activates the resolver, wires the
// publishers, runs the first discovery pass, and starts the rescan loop.
func (e *Engine) Start(ctx context.Context) error {
	cfg := e.cfg

	m, err := buildMedium(cfg, e.logFn)
	if err != nil {
		return fmt.Errorf("build medium: %w", err)
	}
	e.medium = m

	e.res = resolver.New(resolver.Options{
		Eager:      cfg.Medium.Eager,
		AllowTypes: parseAllowTypes(cfg.Medium.AllowTypes, e.logFn),
	})
	if err := e.res.Activate(ctx, m); err != nil {
		return fmt.Errorf("activate medium %q: %w", cfg.Medium.Name, err)
	}
	e.emit(EventMediumActivated, MediumEvent{Name: cfg.Medium.Name})

	// Create MQTT manager
	e.mqttMgr = mqtt.NewManager()
	e.mqttMgr.LoadFromConfig(cfg.MQTT, cfg.Namespace)

	// Create Valkey manager
	e.valkeyMgr = valkey.NewManager()
	e.valkeyMgr.LoadFromConfig(cfg.Valkey, cfg.Namespace)

	// Create Kafka manager
	e.kafkaMgr = kafka.NewManager()
	for i := range cfg.Kafka {
		kc := cfg.Kafka[i]
		e.kafkaMgr.AddCluster(buildKafkaRuntimeConfig(&kc), cfg.Namespace)
	}

	// Republish the inventory whenever a Valkey server (re)connects, so a
	// restarted server catches up without waiting for the next scan.
	e.valkeyMgr.SetOnConnectCallback(func() {
		e.publishInventorySnapshot()
	})

	// First discovery pass before publishers come up; the on-connect and
	// StartAll paths below push the resulting inventory out.
	if _, err := e.Rescan(ctx); err != nil {
		logging.DebugLog("engine", "initial discovery failed: %v", err)
	}

	// Auto-start enabled MQTT publishers
	go func() {
		if started := e.mqttMgr.StartAll(); started > 0 {
			e.publishAllDevices()
		}
	}()

	// Auto-start enabled Valkey publishers
	go func() {
		e.valkeyMgr.StartAll()
	}()

	// Auto-connect enabled Kafka clusters
	go e.kafkaMgr.ConnectEnabled()

	// Periodic rescans
	if cfg.RescanInterval > 0 {
		go e.rescanLoop(cfg.RescanInterval)
	}

	return nil
}

// rescanLoop runs discovery passes until Stop.
func (e *Engine) rescanLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := e.Rescan(ctx); err != nil {
				logging.DebugLog("engine", "rescan failed: %v", err)
			}
			cancel()
		}
	}
}

// Rescan runs one discovery pass and publishes the resulting changes.
func (e *Engine) Rescan(ctx context.Context) (*resolver.Report, error) {
	rep, err := e.res.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}

	e.logFn("Scan: %d devices (%d attached, %d detached, %d backend errors)",
		len(rep.Devices), len(rep.Attached), len(rep.Detached), len(rep.BackendErrors))

	e.publishReport(rep)
	e.emit(EventScanCompleted, ScanEvent{
		Devices:  len(rep.Devices),
		Attached: len(rep.Attached),
		Detached: len(rep.Detached),
		Errors:   len(rep.BackendErrors) + len(rep.BindErrors),
	})
	return rep, nil
}

// Stop shuts down the rescan loop, all publishers, and the resolver.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}

	if e.mqttMgr != nil {
		e.mqttMgr.StopAll()
	}
	if e.valkeyMgr != nil {
		e.valkeyMgr.StopAll()
	}
	if e.kafkaMgr != nil {
		e.kafkaMgr.StopAll()
	}
	if e.res != nil {
		if err := e.res.Shutdown(); err != nil && err != resolver.ErrResolverClosed {
			logging.DebugLog("engine", "resolver shutdown: %v", err)
		}
		e.emit(EventMediumShutDown, MediumEvent{Name: e.cfg.Medium.Name})
	}
}

// buildMedium constructs the medium named in the config.
func buildMedium(cfg *config.Config, logFn LogFunc) (*backend.Medium, error) {
	switch cfg.Medium.Name {
	case config.MediumHardware:
		baud := cfg.Medium.Serial.Baud
		if baud <= 0 {
			baud = 115200
		}
		opener := serialhw.SerialOpener{ReadTimeout: cfg.Medium.Serial.ReadTimeout}
		return serialhw.NewMedium(serialhw.USBEnumerator{}, opener, baud)

	case config.MediumConsole:
		fixtures := make(map[board.DeviceType][]console.Fixture)
		for _, fc := range cfg.Medium.Console {
			t, err := board.ParseDeviceType(fc.Type)
			if err != nil {
				return nil, fmt.Errorf("console fixture %q: %w", fc.Serial, err)
			}
			fixtures[t] = append(fixtures[t], console.Fixture{
				Serial:   fc.Serial,
				Firmware: fc.Firmware,
			})
		}
		return console.NewMedium(fixtures, console.LogFunc(logFn))

	default:
		return nil, fmt.Errorf("unknown medium %q", cfg.Medium.Name)
	}
}

// parseAllowTypes converts config strings to device types, skipping and
// logging unknown names.
func parseAllowTypes(names []string, logFn LogFunc) []board.DeviceType {
	var types []board.DeviceType
	for _, name := range names {
		t, err := board.ParseDeviceType(name)
		if err != nil {
			logFn("Ignoring unknown device type in allow_types: %q", name)
			continue
		}
		types = append(types, t)
	}
	return types
}

// buildKafkaRuntimeConfig converts a persisted Kafka config into the
// runtime form the producer uses.
func buildKafkaRuntimeConfig(kc *config.KafkaConfig) *kafka.Config {
	autoCreate := true
	if kc.AutoCreateTopics != nil {
		autoCreate = *kc.AutoCreateTopics
	}
	acks := kc.RequiredAcks
	if acks == 0 {
		acks = -1
	}
	retries := kc.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := kc.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &kafka.Config{
		Name:             kc.Name,
		Enabled:          kc.Enabled,
		Brokers:          kc.Brokers,
		UseTLS:           kc.UseTLS,
		TLSSkipVerify:    kc.TLSSkipVerify,
		SASLMechanism:    kafka.SASLMechanism(kc.SASLMechanism),
		Username:         kc.Username,
		Password:         kc.Password,
		RequiredAcks:     acks,
		MaxRetries:       retries,
		RetryBackoff:     backoff,
		Selector:         kc.Selector,
		AutoCreateTopics: autoCreate,
	}
}

// Managers provides access to shared backend managers.
// *Engine satisfies this interface via its accessor methods.
type Managers interface {
	GetConfig() *config.Config
	GetConfigPath() string
	GetResolver() *resolver.Resolver
	GetMQTTMgr() *mqtt.Manager
	GetValkeyMgr() *valkey.Manager
	GetKafkaMgr() *kafka.Manager
}

// Verify *Engine implements Managers at compile time.
var _ Managers = (*Engine)(nil)

func (e *Engine) GetConfig() *config.Config     { return e.cfg }
func (e *Engine) GetConfigPath() string         { return e.configPath }
func (e *Engine) GetResolver() *resolver.Resolver { return e.res }
func (e *Engine) GetMQTTMgr() *mqtt.Manager     { return e.mqttMgr }
func (e *Engine) GetValkeyMgr() *valkey.Manager { return e.valkeyMgr }
func (e *Engine) GetKafkaMgr() *kafka.Manager   { return e.kafkaMgr }

// saveConfig is a helper that locks, saves, and unlocks.
func (e *Engine) saveConfig() error {
	return e.cfg.UnlockAndSave(e.configPath)
}

func (e *Engine) emit(t EventType, payload interface{}) {
	e.Events.Emit(Event{Type: t, Payload: payload})
}
