package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestFileLogger(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("creates new file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test1.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Error("log file was not created")
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test2.log")
		if err := os.WriteFile(path, []byte("existing content\n"), 0644); err != nil {
			t.Fatal(err)
		}

		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatal(err)
		}
		logger.Log("new content")
		logger.Close()

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(content), "existing content") {
			t.Error("existing content was overwritten")
		}
		if !strings.Contains(string(content), "new content") {
			t.Error("new content was not appended")
		}
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		if _, err := NewFileLogger("/nonexistent/directory/file.log"); err == nil {
			t.Error("expected error for invalid path")
		}
	})

	t.Run("log after close is dropped", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test3.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatal(err)
		}
		logger.Close()
		logger.Log("should not panic")
	})

	t.Run("concurrent logging", func(t *testing.T) {
		path := filepath.Join(tmpDir, "test4.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatal(err)
		}
		defer logger.Close()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				logger.Log("goroutine %d", n)
			}(i)
		}
		wg.Wait()
	})
}

func TestDebugLoggerFilter(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "debug.log")

	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatal(err)
	}

	logger.SetFilter("resolver, mqtt")
	logger.Log("resolver", "resolver message")
	logger.Log("serial", "serial message")
	logger.Log("mqtt", "mqtt message")
	logger.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)
	if !strings.Contains(text, "resolver message") {
		t.Error("filtered-in resolver message missing")
	}
	if strings.Contains(text, "serial message") {
		t.Error("filtered-out serial message present")
	}
	if !strings.Contains(text, "mqtt message") {
		t.Error("filtered-in mqtt message missing")
	}
}

func TestDebugLoggerBackendImpliesTransports(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "debug.log")

	logger, err := NewDebugLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.SetFilter("backend")
	logger.Log("serial", "serial under backend")
	logger.Log("console", "console under backend")
	logger.Log("web", "web message")
	logger.Close()

	content, _ := os.ReadFile(path)
	text := string(content)
	if !strings.Contains(text, "serial under backend") {
		t.Error("backend filter should include serial")
	}
	if !strings.Contains(text, "console under backend") {
		t.Error("backend filter should include console")
	}
	if strings.Contains(text, "web message") {
		t.Error("web should be filtered out")
	}
}

func TestDebugLogNilGlobal(t *testing.T) {
	SetGlobalDebugLogger(nil)
	// Must not panic with no global logger installed.
	DebugLog("resolver", "dropped")
}
