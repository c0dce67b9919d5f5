package handlers

import (
	"net/http"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
)

// SchedulerHandler exposes the scheduled scenario runs
type SchedulerHandler struct {
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

func NewSchedulerHandler(scheduler interfaces.SchedulerService, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, logger: logger}
}

// ListSchedulesHandler handles GET /api/schedules
func (h *SchedulerHandler) ListSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	statuses := h.scheduler.GetAllJobStatuses()
	out := make([]*interfaces.JobStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running":   h.scheduler.IsRunning(),
		"schedules": out,
	})
}

// TriggerScheduleHandler handles POST /api/schedules/{name}/trigger
func (h *SchedulerHandler) TriggerScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	name := PathSegment(r.URL.Path, "/api/schedules/")
	if _, err := h.scheduler.GetJobStatus(name); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := h.scheduler.TriggerJob(name); err != nil {
		h.logger.Warn().Err(err).Str("job", name).Msg("Failed to trigger scheduled run")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	WriteStarted(w, name, "Scheduled run triggered")
}
