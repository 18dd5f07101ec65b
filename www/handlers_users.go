package www

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"botlink/config"
)

// UserData holds user display data.
type UserData struct {
	Username string
	Role     string
	IsAdmin  bool
}

func (h *Handlers) getUsersData() []UserData {
	cfg := h.managers.GetConfig()
	users := cfg.Web.UI.Users
	result := make([]UserData, 0, len(users))

	for _, u := range users {
		result = append(result, UserData{
			Username: u.Username,
			Role:     u.Role,
			IsAdmin:  isAdmin(u.Role),
		})
	}

	return result
}

// handleUsersPage renders the user management page.
func (h *Handlers) handleUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderUsers(w, r, "")
}

func (h *Handlers) renderUsers(w http.ResponseWriter, r *http.Request, errMsg string) {
	data := h.getUserInfo(r)
	data["Users"] = h.getUsersData()
	if errMsg != "" {
		data["Error"] = errMsg
	}
	h.renderTemplate(w, "users.html", data)
}

// handleUserCreate creates a new user from the form on the users page.
func (h *Handlers) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")
	role := r.FormValue("role")

	if username == "" {
		h.renderUsers(w, r, "Username is required")
		return
	}
	if password == "" {
		h.renderUsers(w, r, "Password is required")
		return
	}
	if role != config.RoleAdmin && role != config.RoleViewer {
		h.renderUsers(w, r, "Role must be 'admin' or 'viewer'")
		return
	}

	cfg := h.managers.GetConfig()
	if cfg.FindWebUser(username) != nil {
		h.renderUsers(w, r, "User already exists")
		return
	}

	hash, err := hashPassword(password)
	if err != nil {
		h.renderUsers(w, r, "Failed to hash password: "+err.Error())
		return
	}

	cfg.Lock()
	cfg.AddWebUser(config.WebUser{
		Username:           username,
		PasswordHash:       hash,
		Role:               role,
		MustChangePassword: true,
	})
	if err := cfg.UnlockAndSave(h.managers.GetConfigPath()); err != nil {
		h.renderUsers(w, r, "Failed to save config: "+err.Error())
		return
	}

	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// handleUserDelete deletes a user.
func (h *Handlers) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	username, _ = url.PathUnescape(username)

	cfg := h.managers.GetConfig()

	// Don't allow deleting yourself
	currentUser, _, _ := h.sessions.getUser(r)
	if currentUser == username {
		h.renderUsers(w, r, "Cannot delete your own account")
		return
	}

	// Check if this is the last admin
	user := cfg.FindWebUser(username)
	if user != nil && isAdmin(user.Role) {
		adminCount := 0
		for _, u := range cfg.Web.UI.Users {
			if isAdmin(u.Role) {
				adminCount++
			}
		}
		if adminCount <= 1 {
			h.renderUsers(w, r, "Cannot delete the last admin user")
			return
		}
	}

	cfg.Lock()
	if !cfg.RemoveWebUser(username) {
		cfg.Unlock()
		h.renderUsers(w, r, "User not found")
		return
	}
	if err := cfg.UnlockAndSave(h.managers.GetConfigPath()); err != nil {
		h.renderUsers(w, r, "Failed to save config: "+err.Error())
		return
	}

	http.Redirect(w, r, "/users", http.StatusSeeOther)
}
