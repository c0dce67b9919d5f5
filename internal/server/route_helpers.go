package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/uiflow/internal/handlers"
)

// RouteHandler is a function type for HTTP handlers
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers
type MethodRouter map[string]RouteHandler

// RouteByMethod dispatches on r.Method; unknown methods get a JSON 405
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	handler, ok := routes[r.Method]
	if !ok {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}

// RouteResourceItem handles GET and DELETE of one stored resource
func RouteResourceItem(w http.ResponseWriter, r *http.Request, get, remove RouteHandler) {
	routes := MethodRouter{}
	if get != nil {
		routes[http.MethodGet] = get
	}
	if remove != nil {
		routes[http.MethodDelete] = remove
	}
	RouteByMethod(w, r, routes)
}

// RouteNamed routes prefix{name} to item and prefix{name}/{action} to actions[action].
// Deeper paths, unknown actions and an empty name are 404s. A nil item means the bare
// resource has no handler.
func RouteNamed(w http.ResponseWriter, r *http.Request, prefix string, item RouteHandler, actions map[string]RouteHandler) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	name, action, nested := strings.Cut(rest, "/")
	if name == "" {
		handlers.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	if !nested {
		if item == nil {
			handlers.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		item(w, r)
		return
	}

	handler, ok := actions[action]
	if !ok {
		handlers.WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	handler(w, r)
}
