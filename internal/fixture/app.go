// Package fixture serves a small subnet manager web application with the observable
// behaviour uiflow scenarios verify: a login modal backed by session_api, role-gated
// controls, a change-password modal that alerts on a wrong password, a user table and a
// CSV export behind a dropdown.
package fixture

import (
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

//go:embed index.html
var indexHTML string

const sessionCookie = "PHPSESSID"

// Accounts created by NewApp
const (
	AdminUser     = "admin"
	AdminPassword = "admin123"
	PlainUser     = "viewer"
	PlainPassword = "viewer123"
)

// ExportColumns is the versioned header written by the CSV export
var ExportColumns = []string{
	"Site Name", "Admin Number", "Parent Network", "Subnet", "Netmask",
	"First IP", "Last IP", "Usable First", "Usable Last", "Usable Count",
	"Total Hosts", "VLAN ID", "VLAN Name", "Created At", "Updated At",
}

// Options alter the application to reproduce known defects
type Options struct {
	// ResponseDelay delays every session_api answer
	ResponseDelay time.Duration
	// ExportHeader overrides the CSV header; nil serves ExportColumns
	ExportHeader []string
	// RoleBug reports every role as "undefined" in the user list
	RoleBug bool
	// MenuGap is the pixel gap between the export button and its dropdown
	MenuGap int
}

type account struct {
	password  string
	role      string
	createdAt string
}

// App is the fixture application. It implements http.Handler.
type App struct {
	opts   Options
	logger arbor.ILogger
	mux    *http.ServeMux

	mu       sync.Mutex
	accounts map[string]*account
	sessions map[string]string
}

// NewApp creates the application with an admin and a plain user account
func NewApp(opts Options, logger arbor.ILogger) *App {
	if opts.ExportHeader == nil {
		opts.ExportHeader = ExportColumns
	}
	if opts.MenuGap == 0 {
		opts.MenuGap = 2
	}
	a := &App{
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
		accounts: map[string]*account{
			AdminUser: {password: AdminPassword, role: "admin", createdAt: "2025-01-15"},
			PlainUser: {password: PlainPassword, role: "user", createdAt: "2025-02-03"},
		},
		sessions: make(map[string]string),
	}
	a.mux.HandleFunc("/", a.handleIndex)
	a.mux.HandleFunc("/session_api.php", a.handleSession)
	a.mux.HandleFunc("/api.php", a.handleAPI)
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Str("query", r.URL.RawQuery).Msg("Fixture request")
	a.mux.ServeHTTP(w, r)
}

// Password returns the current password of username
func (a *App) Password(username string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.accounts[username]; ok {
		return acc.password
	}
	return ""
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.php" {
		http.NotFound(w, r)
		return
	}
	page := strings.Replace(indexHTML, "calc(100% + 2px)", fmt.Sprintf("calc(100%% + %dpx)", a.opts.MenuGap), 1)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page)
}

// currentUser returns the username bound to the request's session cookie
func (a *App) currentUser(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[cookie.Value]
}

type sessionRequest struct {
	Action          string `json:"action"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionUser struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *sessionUser `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sessionResponse{Message: "Requête invalide"})
		return
	}

	if a.opts.ResponseDelay > 0 {
		select {
		case <-time.After(a.opts.ResponseDelay):
		case <-r.Context().Done():
			return
		}
	}

	switch req.Action {
	case "status":
		user := a.currentUser(r)
		if user == "" {
			writeJSON(w, http.StatusOK, sessionResponse{Message: "Non connecté"})
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Success: true, User: a.userInfo(user)})

	case "login":
		a.login(w, req)

	case "logout":
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			a.mu.Lock()
			delete(a.sessions, cookie.Value)
			a.mu.Unlock()
		}
		writeJSON(w, http.StatusOK, sessionResponse{Success: true})

	case "change_password":
		a.changePassword(w, r, req)

	default:
		writeJSON(w, http.StatusBadRequest, sessionResponse{Message: "Action inconnue"})
	}
}

func (a *App) userInfo(username string) *sessionUser {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[username]
	if !ok {
		return nil
	}
	return &sessionUser{Username: username, Role: acc.role}
}

func (a *App) login(w http.ResponseWriter, req sessionRequest) {
	a.mu.Lock()
	acc, ok := a.accounts[req.Username]
	valid := ok && req.Password != "" && acc.password == req.Password
	var sid string
	if valid {
		sid = uuid.New().String()
		a.sessions[sid] = req.Username
	}
	a.mu.Unlock()

	if !valid {
		a.logger.Debug().Str("username", req.Username).Msg("Fixture login rejected")
		writeJSON(w, http.StatusOK, sessionResponse{Message: "Identifiants incorrects"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sid, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, User: a.userInfo(req.Username)})
}

func (a *App) changePassword(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	user := a.currentUser(r)
	if user == "" {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Message: "Non connecté"})
		return
	}
	if req.NewPassword == "" {
		writeJSON(w, http.StatusBadRequest, sessionResponse{Message: "New password required"})
		return
	}

	a.mu.Lock()
	acc := a.accounts[user]
	ok := acc.password == req.CurrentPassword
	if ok {
		acc.password = req.NewPassword
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, sessionResponse{Message: "Old password incorrect"})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Success: true, Message: "Password changed successfully"})
}

func (a *App) handleAPI(w http.ResponseWriter, r *http.Request) {
	user := a.currentUser(r)
	switch r.URL.Query().Get("action") {
	case "list_users":
		if info := a.userInfo(user); info == nil || info.Role != "admin" {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"success": false, "message": "Accès refusé"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "users": a.users()})

	case "export_csv":
		a.exportCSV(w)

	default:
		http.NotFound(w, r)
	}
}

func (a *App) users() []map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]map[string]string, 0, len(a.accounts))
	for _, name := range []string{AdminUser, PlainUser} {
		acc := a.accounts[name]
		role := acc.role
		if a.opts.RoleBug {
			role = "undefined"
		}
		out = append(out, map[string]string{"username": name, "role": role, "created_at": acc.createdAt})
	}
	return out
}

// exportCSV writes a BOM-prefixed CSV with the configured header and two subnets.
// VLAN columns are left empty.
func (a *App) exportCSV(w http.ResponseWriter) {
	rows := []map[string]string{
		{"Site Name": "Paris HQ", "Subnet": "10.0.0.0/24", "Netmask": "255.255.255.0", "Parent Network": "10.0.0.0/16"},
		{"Site Name": "Lyon", "Subnet": "10.0.1.0/24", "Netmask": "255.255.255.0", "Parent Network": "10.0.0.0/16"},
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subnets_export.csv"`)
	fmt.Fprint(w, "\ufeff")

	cw := csv.NewWriter(w)
	cw.Write(a.opts.ExportHeader)
	for i, row := range rows {
		record := make([]string, len(a.opts.ExportHeader))
		for j, col := range a.opts.ExportHeader {
			switch {
			case strings.HasPrefix(col, "VLAN"):
				record[j] = ""
			case row[col] != "":
				record[j] = row[col]
			default:
				record[j] = fmt.Sprintf("%s %d", col, i+1)
			}
		}
		cw.Write(record)
	}
	cw.Flush()
}
