package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

// ScenarioInfo is the list view of a loaded scenario
type ScenarioInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	States      int      `json:"states"`
	Steps       int      `json:"steps"`
	Running     bool     `json:"running"`
}

// ScenarioHandler lists scenarios and starts runs on demand
type ScenarioHandler struct {
	catalog interfaces.ScenarioCatalog
	runner  interfaces.ScenarioRunner
	logger  arbor.ILogger
	// runs outlive the request that started them
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]bool
}

func NewScenarioHandler(ctx context.Context, catalog interfaces.ScenarioCatalog, runner interfaces.ScenarioRunner, logger arbor.ILogger) *ScenarioHandler {
	return &ScenarioHandler{
		catalog: catalog,
		runner:  runner,
		logger:  logger,
		baseCtx: ctx,
		running: make(map[string]bool),
	}
}

// ListScenariosHandler handles GET /api/scenarios
func (h *ScenarioHandler) ListScenariosHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.catalog.List()
	infos := make([]ScenarioInfo, 0, len(list))
	for _, sc := range list {
		infos = append(infos, ScenarioInfo{
			Name:        sc.Name,
			Description: sc.Description,
			Source:      sc.Source,
			Schedule:    sc.Schedule,
			Tags:        sc.Tags,
			States:      len(sc.States),
			Steps:       len(sc.Steps),
			Running:     h.running[sc.Name],
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"scenarios": infos})
}

// GetScenarioHandler handles GET /api/scenarios/{name}
func (h *ScenarioHandler) GetScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sc, ok := h.lookup(w, PathSegment(r.URL.Path, "/api/scenarios/"))
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, sc)
}

// RunScenarioHandler handles POST /api/scenarios/{name}/run.
// With ?wait=true the report is returned once the run finishes; otherwise the run continues
// in the background and its progress is streamed over /ws.
func (h *ScenarioHandler) RunScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sc, ok := h.lookup(w, PathSegment(r.URL.Path, "/api/scenarios/"))
	if !ok {
		return
	}

	if !h.claim(sc.Name) {
		WriteError(w, http.StatusConflict, "Scenario is already running")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		defer h.release(sc.Name)
		rep, err := h.runner.Run(r.Context(), sc)
		if err != nil {
			h.logger.Error().Err(err).Str("scenario", sc.Name).Msg("Scenario run failed")
			WriteEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rep)
		return
	}

	common.SafeGo(h.logger, "scenario-run-"+sc.Name, func() {
		defer h.release(sc.Name)
		if _, err := h.runner.Run(h.baseCtx, sc); err != nil {
			h.logger.Error().Err(err).Str("scenario", sc.Name).Msg("Scenario run failed")
		}
	})

	h.logger.Info().Str("scenario", sc.Name).Msg("Scenario run started")
	WriteStarted(w, sc.Name, "Scenario run started")
}

func (h *ScenarioHandler) lookup(w http.ResponseWriter, name string) (*models.Scenario, bool) {
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Scenario name is required")
		return nil, false
	}
	sc, err := h.catalog.Get(name)
	if err != nil {
		if errors.Is(err, models.ErrScenarioNotFound) {
			WriteError(w, http.StatusNotFound, "Scenario not found")
			return nil, false
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return sc, true
}

func (h *ScenarioHandler) claim(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running[name] {
		return false
	}
	h.running[name] = true
	return true
}

func (h *ScenarioHandler) release(name string) {
	h.mu.Lock()
	delete(h.running, name)
	h.mu.Unlock()
}

// IsRunning reports whether a run of name started by this handler is in progress
func (h *ScenarioHandler) IsRunning(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running[name]
}
