package www

import (
	"net/http"

	"botlink/config"
)

// handleLoginPage renders the login page.
func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// If already logged in, redirect to home
	if username, _, ok := h.sessions.getUser(r); ok && username != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.renderTemplate(w, "login.html", nil)
}

// handleLoginSubmit handles login form submission.
func (h *Handlers) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if username == "" || password == "" {
		h.renderTemplate(w, "login.html", map[string]interface{}{
			"Error": "Username and password are required",
		})
		return
	}

	// Find user in config
	user := h.managers.GetConfig().FindWebUser(username)
	if user == nil {
		h.renderTemplate(w, "login.html", map[string]interface{}{
			"Error": "Invalid username or password",
		})
		return
	}

	// Check password
	if !checkPassword(password, user.PasswordHash) {
		h.renderTemplate(w, "login.html", map[string]interface{}{
			"Error": "Invalid username or password",
		})
		return
	}

	// Set session
	if err := h.sessions.setUser(w, r, user.Username, user.Role); err != nil {
		h.renderTemplate(w, "login.html", map[string]interface{}{
			"Error": "Session error: " + err.Error(),
		})
		return
	}

	if user.MustChangePassword {
		http.Redirect(w, r, "/change-password", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout handles logout.
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// DeviceRow holds device display data for the dashboard.
type DeviceRow struct {
	Type         string
	Serial       string
	Firmware     string
	Capabilities []string
	Present      bool
}

// handleDashboard renders the device inventory page.
func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cfg := h.managers.GetConfig()
	data := h.getUserInfo(r)
	data["Namespace"] = cfg.Namespace
	data["Medium"] = cfg.Medium.Name
	data["Devices"] = h.getDevicesData()
	h.renderTemplate(w, "index.html", data)
}

func (h *Handlers) getDevicesData() []DeviceRow {
	res := h.managers.GetResolver()
	if res == nil {
		return nil
	}
	devs, err := res.Devices()
	if err != nil {
		return nil
	}

	rows := make([]DeviceRow, 0, len(devs))
	for _, dev := range devs {
		desc := dev.Descriptor()
		kinds := dev.Kinds()
		caps := make([]string, 0, len(kinds))
		for _, k := range kinds {
			caps = append(caps, string(k))
		}
		rows = append(rows, DeviceRow{
			Type:         string(desc.Type),
			Serial:       desc.Serial,
			Firmware:     desc.Firmware,
			Capabilities: caps,
			Present:      !dev.Detached(),
		})
	}
	return rows
}

// handleChangePasswordPage renders the password change form.
func (h *Handlers) handleChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	username, _, _ := h.sessions.getUser(r)
	user := h.managers.GetConfig().FindWebUser(username)

	data := map[string]interface{}{}
	if user != nil && user.MustChangePassword {
		data["MustChange"] = true
	}
	h.renderTemplate(w, "change_password.html", data)
}

// handleChangePasswordSubmit updates the current user's password.
func (h *Handlers) handleChangePasswordSubmit(w http.ResponseWriter, r *http.Request) {
	username, _, _ := h.sessions.getUser(r)
	cfg := h.managers.GetConfig()
	user := cfg.FindWebUser(username)
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	current := r.FormValue("current")
	password := r.FormValue("password")
	confirm := r.FormValue("confirm")

	fail := func(msg string) {
		h.renderTemplate(w, "change_password.html", map[string]interface{}{
			"Error":      msg,
			"MustChange": user.MustChangePassword,
		})
	}

	if !checkPassword(current, user.PasswordHash) {
		fail("Current password is incorrect")
		return
	}
	if password == "" {
		fail("New password is required")
		return
	}
	if password != confirm {
		fail("Passwords do not match")
		return
	}
	if password == current {
		fail("New password must differ from the current one")
		return
	}

	hash, err := hashPassword(password)
	if err != nil {
		fail("Failed to hash password: " + err.Error())
		return
	}

	cfg.Lock()
	cfg.UpdateWebUser(username, config.WebUser{
		Username:     username,
		PasswordHash: hash,
		Role:         user.Role,
	})
	if err := cfg.UnlockAndSave(h.managers.GetConfigPath()); err != nil {
		fail("Failed to save config: " + err.Error())
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
