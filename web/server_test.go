package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"botlink/config"
	"botlink/engine"
	"botlink/kafka"
	"botlink/mqtt"
	"botlink/resolver"
	"botlink/valkey"
)

// Verify testManagers implements engine.Managers.
var _ engine.Managers = (*testManagers)(nil)

type testManagers struct {
	cfg        *config.Config
	configPath string
}

func (m *testManagers) GetConfig() *config.Config      { return m.cfg }
func (m *testManagers) GetConfigPath() string          { return m.configPath }
func (m *testManagers) GetResolver() *resolver.Resolver { return nil }
func (m *testManagers) GetMQTTMgr() *mqtt.Manager      { return nil }
func (m *testManagers) GetValkeyMgr() *valkey.Manager  { return nil }
func (m *testManagers) GetKafkaMgr() *kafka.Manager    { return nil }

func testWebConfig(t *testing.T, port int) (*config.WebConfig, *testManagers) {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	cfg := &config.WebConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    port,
		API:     config.WebAPIConfig{Enabled: false},
		UI: config.WebUIConfig{
			Enabled:       true,
			SessionSecret: "dGVzdHNlY3JldHRlc3RzZWNyZXR0ZXN0c2VjcmV0dGVzdA==",
			Users: []config.WebUser{{
				Username:           "admin",
				PasswordHash:       string(hash),
				Role:               config.RoleAdmin,
				MustChangePassword: true,
			}},
		},
	}

	fullCfg := config.DefaultConfig()
	fullCfg.Web = *cfg
	mgrs := &testManagers{
		cfg:        fullCfg,
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
	}
	return cfg, mgrs
}

func TestUnsecuredDeadline(t *testing.T) {
	cfg, mgrs := testWebConfig(t, 19876)

	s := NewServer(cfg, mgrs)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if !s.IsRunning() {
		t.Fatal("expected server to be running")
	}

	// Set a short deadline
	expired := make(chan bool, 1)
	s.SetUnsecuredDeadline(200*time.Millisecond, func() {
		expired <- true
	})

	select {
	case <-expired:
		// Timer fired
	case <-time.After(2 * time.Second):
		t.Fatal("deadline timer did not fire within 2s")
	}

	// Server should be stopped
	if s.IsRunning() {
		t.Error("expected server to be stopped after deadline")
	}
}

func TestLoginFlowThroughMount(t *testing.T) {
	cfg, mgrs := testWebConfig(t, 0)

	// Use the full web.Server router (chi.Mount) like production
	s := NewServer(cfg, mgrs)
	server := httptest.NewServer(s.router)
	defer server.Close()

	client := server.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	// Step 1: GET / should redirect to /login (not authenticated)
	resp, err := client.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	// Step 2: POST /login with admin/admin
	form := url.Values{"username": {"admin"}, "password": {"admin"}}
	resp, err = client.Post(server.URL+"/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("POST /login failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") != "/change-password" {
		t.Fatalf("expected redirect to /change-password, got %s", resp.Header.Get("Location"))
	}

	// Step 3: GET /change-password with session cookie
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatal("no cookies set after login")
	}
	req, _ := http.NewRequest("GET", server.URL+"/change-password", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET /change-password failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d (location=%s)", resp.StatusCode, resp.Header.Get("Location"))
	}

	// Step 4: protected route with MustChangePassword redirects back
	req, _ = http.NewRequest("GET", server.URL+"/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/change-password" {
		t.Errorf("expected redirect to /change-password, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestUnsecuredDeadlineClear(t *testing.T) {
	cfg, mgrs := testWebConfig(t, 19877)

	s := NewServer(cfg, mgrs)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	// Set deadline then clear it
	s.SetUnsecuredDeadline(200*time.Millisecond, func() {
		t.Error("deadline should not fire after clear")
	})
	s.ClearUnsecuredDeadline()

	// Wait longer than the deadline
	time.Sleep(500 * time.Millisecond)

	// Server should still be running
	if !s.IsRunning() {
		t.Error("expected server to still be running after cleared deadline")
	}
}
