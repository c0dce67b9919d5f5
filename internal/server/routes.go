package server

import (
	"net/http"

	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Reports
	mux.HandleFunc("/api/reports", s.app.ReportHandler.ListReportsHandler) // GET (list)
	mux.HandleFunc("/api/reports/", s.handleReportRoutes)                 // GET/DELETE /{id}

	// API routes - Scenarios
	mux.HandleFunc("/api/scenarios", s.app.ScenarioHandler.ListScenariosHandler) // GET (list)
	mux.HandleFunc("/api/scenarios/", s.handleScenarioRoutes)                   // GET /{name}, POST /{name}/run

	// API routes - Schedules
	mux.HandleFunc("/api/schedules", s.app.SchedulerHandler.ListSchedulesHandler) // GET (list)
	mux.HandleFunc("/api/schedules/", s.handleScheduleRoutes)                    // POST /{name}/trigger

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	return mux
}

// handleReportRoutes routes /api/reports/{id}
func (s *Server) handleReportRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, s.app.ReportHandler.GetReportHandler, s.app.ReportHandler.DeleteReportHandler)
}

// handleScenarioRoutes routes /api/scenarios/{name} and /api/scenarios/{name}/run
func (s *Server) handleScenarioRoutes(w http.ResponseWriter, r *http.Request) {
	RouteNamed(w, r, "/api/scenarios/", s.app.ScenarioHandler.GetScenarioHandler, map[string]RouteHandler{
		"run": s.app.ScenarioHandler.RunScenarioHandler,
	})
}

// handleScheduleRoutes routes /api/schedules/{name}/trigger
func (s *Server) handleScheduleRoutes(w http.ResponseWriter, r *http.Request) {
	RouteNamed(w, r, "/api/schedules/", nil, map[string]RouteHandler{
		"trigger": s.app.SchedulerHandler.TriggerScheduleHandler,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"scenarios": len(s.app.Catalog.List()),
		"clients":   s.app.WSHandler.ClientCount(),
		"scheduler": s.app.SchedulerService.IsRunning(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}
	handlers.WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}
