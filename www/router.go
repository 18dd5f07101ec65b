// Package www serves the browser UI: session-based login, a device
// inventory dashboard, and user management.
package www

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"botlink/config"
	"botlink/engine"
)

// Handlers holds all HTTP handlers for the web UI.
type Handlers struct {
	cfg      *config.WebUIConfig
	managers engine.Managers
	sessions *sessionStore
	tmpl     *template.Template
}

// newHandlers creates a new handlers instance.
func newHandlers(cfg *config.WebUIConfig, managers engine.Managers) *Handlers {
	h := &Handlers{
		cfg:      cfg,
		managers: managers,
		sessions: newSessionStore(cfg.SessionSecret),
	}

	h.tmpl = template.Must(template.New("").Funcs(template.FuncMap{
		"isAdmin": isAdmin,
		"lower":   strings.ToLower,
	}).ParseFS(templatesFS, "templates/*.html"))

	return h
}

// NewRouter creates the web UI router.
func NewRouter(cfg *config.WebUIConfig, managers engine.Managers) chi.Router {
	h := newHandlers(cfg, managers)

	r := chi.NewRouter()

	// Login/logout (public)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLoginSubmit)
	r.Post("/logout", h.handleLogout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/", h.handleDashboard)
		r.Get("/change-password", h.handleChangePasswordPage)
		r.Post("/change-password", h.handleChangePasswordSubmit)

		// User management (admin only)
		r.Route("/users", func(r chi.Router) {
			r.Use(h.adminOnlyMiddleware)
			r.Get("/", h.handleUsersPage)
			r.Post("/", h.handleUserCreate)
			r.Post("/{username}/delete", h.handleUserDelete)
		})
	})

	return r
}

// authMiddleware checks if the user is authenticated. Users flagged for a
// forced password change are held on /change-password until they set one.
func (h *Handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, _, ok := h.sessions.getUser(r)
		if !ok || username == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		// Verify user still exists in config
		user := h.managers.GetConfig().FindWebUser(username)
		if user == nil {
			h.sessions.clear(w, r)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if user.MustChangePassword && r.URL.Path != "/change-password" {
			http.Redirect(w, r, "/change-password", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// adminOnlyMiddleware checks if the user has admin role.
func (h *Handlers) adminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, role, ok := h.sessions.getUser(r)
		if !ok || !isAdmin(role) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// renderTemplate renders a template with common data.
func (h *Handlers) renderTemplate(w http.ResponseWriter, name string, data map[string]interface{}) {
	if data == nil {
		data = make(map[string]interface{})
	}
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// getUserInfo returns the current user info for templates.
func (h *Handlers) getUserInfo(r *http.Request) map[string]interface{} {
	username, role, _ := h.sessions.getUser(r)
	return map[string]interface{}{
		"Username": username,
		"Role":     role,
		"IsAdmin":  isAdmin(role),
	}
}
