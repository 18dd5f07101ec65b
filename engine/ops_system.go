package engine

import (
	"context"
	"fmt"
	"time"
)

// SetNamespace updates the namespace in config and saves. Publishers pick up
// the new namespace when they are recreated; a restart applies it everywhere.
func (e *Engine) SetNamespace(ns string) error {
	e.cfg.Lock()
	e.cfg.Namespace = ns
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventNamespaceChanged, SystemEvent{Detail: ns})
	return nil
}

// SetRescanInterval updates the automatic discovery period in config and
// saves. Takes effect on restart.
func (e *Engine) SetRescanInterval(interval time.Duration) error {
	if interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidInput)
	}

	e.cfg.Lock()
	e.cfg.RescanInterval = interval
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	e.emit(EventRescanIntervalChanged, SystemEvent{Detail: interval.String()})
	return nil
}

// TriggerRescan runs one discovery pass on demand.
func (e *Engine) TriggerRescan(ctx context.Context) (attached, detached int, err error) {
	rep, err := e.Rescan(ctx)
	if err != nil {
		return 0, 0, err
	}
	return len(rep.Attached), len(rep.Detached), nil
}

// SetWebHost updates the web server host in config and saves.
func (e *Engine) SetWebHost(host string) error {
	e.cfg.Lock()
	e.cfg.Web.Host = host
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// SetWebPort updates the web server port in config and saves.
func (e *Engine) SetWebPort(port int) error {
	e.cfg.Lock()
	e.cfg.Web.Port = port
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// SetWebAPIEnabled sets the web API enabled state in config and saves.
func (e *Engine) SetWebAPIEnabled(enabled bool) error {
	e.cfg.Lock()
	e.cfg.Web.API.Enabled = enabled
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// SetWebUIEnabled sets the web UI enabled state in config and saves.
func (e *Engine) SetWebUIEnabled(enabled bool) error {
	e.cfg.Lock()
	e.cfg.Web.UI.Enabled = enabled
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// SetWebEnabled sets the web server enabled state in config and saves.
func (e *Engine) SetWebEnabled(enabled bool) error {
	e.cfg.Lock()
	e.cfg.Web.Enabled = enabled
	if err := e.saveConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// ForcePublishAll pushes every live device and the inventory snapshot to all
// running publishers.
func (e *Engine) ForcePublishAll() {
	e.publishAllDevices()
}
