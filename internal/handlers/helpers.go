package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/uiflow/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// RequireMethod writes a JSON 405 and returns false unless r uses one of methods
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// WriteJSON writes data as JSON with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes {"status":"error","error":message}
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteEngineError writes a run failure with a status derived from its kind.
// Environment failures mean the browser or application under test was unusable.
func WriteEngineError(w http.ResponseWriter, err error) error {
	status := http.StatusInternalServerError
	switch models.KindOf(err) {
	case models.ErrorKindEnvironment:
		status = http.StatusBadGateway
	case models.ErrorKindAborted:
		status = http.StatusServiceUnavailable
	}

	body := map[string]string{
		"status": "error",
		"error":  err.Error(),
		"kind":   string(models.KindOf(err)),
	}
	var engineErr *models.EngineError
	if errors.As(err, &engineErr) && engineErr.Selector != "" {
		body["selector"] = engineErr.Selector
	}
	return WriteJSON(w, status, body)
}

// WriteStarted writes a 202 for a run that continues in the background
func WriteStarted(w http.ResponseWriter, name, message string) error {
	return WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"name":    name,
		"message": message,
	})
}

// ListWindow echoes the window applied to a list response
type ListWindow struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// GetListWindow reads ?limit= and ?offset=. Limit defaults to 20 and is capped at 200;
// invalid values fall back to the defaults.
func GetListWindow(r *http.Request) (limit, offset int) {
	limit = defaultListLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxListLimit)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// PathSegment returns the path segment that follows prefix, e.g.
// PathSegment("/api/scenarios/login/run", "/api/scenarios/") == "login".
func PathSegment(path, prefix string) string {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}
