package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/report"
)

// ReportSummary is the list view of a stored report
type ReportSummary struct {
	ID         string          `json:"id"`
	Scenario   string          `json:"scenario"`
	Verdict    models.Verdict  `json:"verdict"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
	Passed     int             `json:"passed"`
	Steps      int             `json:"steps"`
	FirstFatal *models.Failure `json:"first_fatal,omitempty"`
}

// ReportHandler serves report history
type ReportHandler struct {
	reports interfaces.ReportStorage
	logger  arbor.ILogger
}

func NewReportHandler(reports interfaces.ReportStorage, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// ListReportsHandler handles GET /api/reports?scenario=&verdict=&limit=&offset=
func (h *ReportHandler) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, offset := GetListWindow(r)
	opts := models.ReportListOptions{
		Scenario: r.URL.Query().Get("scenario"),
		Verdict:  models.Verdict(r.URL.Query().Get("verdict")),
		Limit:    limit,
		Offset:   offset,
	}

	reports, err := h.reports.ListReports(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list reports")
		WriteError(w, http.StatusInternalServerError, "Failed to list reports")
		return
	}

	summaries := make([]ReportSummary, 0, len(reports))
	for _, rep := range reports {
		summaries = append(summaries, ReportSummary{
			ID:         rep.ID,
			Scenario:   rep.Scenario,
			Verdict:    rep.Verdict,
			StartedAt:  rep.StartedAt,
			DurationMs: rep.DurationMs,
			Passed:     rep.PassedCount(),
			Steps:      len(rep.Steps),
			FirstFatal: rep.FirstFatal,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": summaries,
		"window":  ListWindow{Limit: limit, Offset: offset, Count: len(summaries)},
	})
}

// GetReportHandler handles GET /api/reports/{id}. ?format=text renders the plain summary.
func (h *ReportHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := PathSegment(r.URL.Path, "/api/reports/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Report ID is required")
		return
	}

	var rep *models.ScenarioReport
	var err error
	if id == "latest" {
		rep, err = h.reports.LatestReport(r.Context(), r.URL.Query().Get("scenario"))
	} else {
		rep, err = h.reports.GetReport(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, models.ErrReportNotFound) {
			WriteError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get report")
		WriteError(w, http.StatusInternalServerError, "Failed to get report")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		report.WriteSummary(w, rep)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

// DeleteReportHandler handles DELETE /api/reports/{id}
func (h *ReportHandler) DeleteReportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := PathSegment(r.URL.Path, "/api/reports/")
	if err := h.reports.DeleteReport(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrReportNotFound) {
			WriteError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete report")
		WriteError(w, http.StatusInternalServerError, "Failed to delete report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
