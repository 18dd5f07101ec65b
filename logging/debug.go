package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DebugLogger provides verbose debug logging for troubleshooting discovery
// and transport problems. It writes to a dedicated debug.log file; output
// can be restricted to a subset of subsystems.
type DebugLogger struct {
	file    *os.File
	mu      sync.Mutex
	closed  bool
	filters map[string]bool // subsystem filters (empty = log all)
}

var (
	globalDebugLogger *DebugLogger
	globalDebugMu     sync.RWMutex
)

// Subsystem names accepted by SetFilter.
var knownSubsystems = []string{
	"resolver",
	"backend",
	"serial",
	"console",
	"engine",
	"mqtt",
	"valkey",
	"kafka",
	"web",
	"debug",
}

// KnownSubsystems returns the subsystem names accepted by SetFilter.
func KnownSubsystems() []string {
	out := make([]string, len(knownSubsystems))
	copy(out, knownSubsystems)
	return out
}

// NewDebugLogger creates a debug logger writing to path. The file is
// truncated for each session.
func NewDebugLogger(path string) (*DebugLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	logger := &DebugLogger{
		file:    file,
		filters: make(map[string]bool),
	}
	logger.Log("debug", "debug logging started - %s", time.Now().Format(time.RFC3339))
	return logger, nil
}

// SetFilter restricts output to a comma-separated list of subsystems.
// Empty string logs everything. Matching is case-insensitive.
func (l *DebugLogger) SetFilter(filter string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.filters = make(map[string]bool)
	if filter == "" {
		return
	}

	for _, s := range strings.Split(filter, ",") {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			continue
		}
		l.filters[s] = true
		// The serial subsystem is the transport under backend; asking for
		// one implies the other.
		if s == "backend" {
			l.filters["serial"] = true
			l.filters["console"] = true
		}
	}
}

// shouldLog must be called with l.mu held.
func (l *DebugLogger) shouldLog(subsystem string) bool {
	if len(l.filters) == 0 {
		return true
	}
	s := strings.ToLower(subsystem)
	return l.filters[s] || s == "debug"
}

// Log writes a formatted message with timestamp and subsystem prefix.
func (l *DebugLogger) Log(subsystem, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.shouldLog(subsystem) {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "%s [%s] %s\n", timestamp, subsystem, msg)
}

// Close closes the debug log file.
func (l *DebugLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// SetGlobalDebugLogger installs the process-wide debug logger used by
// DebugLog. Pass nil to disable.
func SetGlobalDebugLogger(logger *DebugLogger) {
	globalDebugMu.Lock()
	globalDebugLogger = logger
	globalDebugMu.Unlock()
}

// DebugLog writes to the global debug logger, if one is installed.
func DebugLog(subsystem, format string, args ...interface{}) {
	globalDebugMu.RLock()
	logger := globalDebugLogger
	globalDebugMu.RUnlock()
	logger.Log(subsystem, format, args...)
}
