package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/scenarios"
	"github.com/tidwall/gjson"
)

type memoryReports struct {
	mu      sync.Mutex
	reports []*models.ScenarioReport
	lastOpt models.ReportListOptions
}

func (m *memoryReports) SaveReport(ctx context.Context, r *models.ScenarioReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *memoryReports) GetReport(ctx context.Context, id string) (*models.ScenarioReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrReportNotFound, id)
}

func (m *memoryReports) ListReports(ctx context.Context, opts models.ReportListOptions) ([]*models.ScenarioReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOpt = opts
	var out []*models.ScenarioReport
	for _, r := range m.reports {
		if opts.Scenario != "" && r.Scenario != opts.Scenario {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryReports) LatestReport(ctx context.Context, scenario string) (*models.ScenarioReport, error) {
	list, _ := m.ListReports(ctx, models.ReportListOptions{Scenario: scenario})
	if len(list) == 0 {
		return nil, models.ErrReportNotFound
	}
	return list[len(list)-1], nil
}

func (m *memoryReports) DeleteReport(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reports {
		if r.ID == id {
			m.reports = append(m.reports[:i], m.reports[i+1:]...)
			return nil
		}
	}
	return models.ErrReportNotFound
}

func (m *memoryReports) PruneReports(ctx context.Context, keep int) (int, error) { return 0, nil }

func sampleReport(id, scenario string, verdict models.Verdict) *models.ScenarioReport {
	return &models.ScenarioReport{
		ID:        id,
		Scenario:  scenario,
		Verdict:   verdict,
		StartedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Steps: []models.StepOutcome{
			{Index: 0, Step: "open", Status: models.StepPassed, Passed: true},
			{Index: 1, Step: "login", Status: models.StepFailed},
		},
	}
}

func TestListReportsHandler(t *testing.T) {
	store := &memoryReports{}
	store.SaveReport(context.Background(), sampleReport("a", "login", models.VerdictPassed))
	store.SaveReport(context.Background(), sampleReport("b", "export", models.VerdictFailed))
	h := NewReportHandler(store, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.ListReportsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/reports?scenario=login&limit=5&offset=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reports []ReportSummary `json:"reports"`
		Window  ListWindow      `json:"window"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "a", body.Reports[0].ID)
	assert.Equal(t, 1, body.Reports[0].Passed)
	assert.Equal(t, 2, body.Reports[0].Steps)
	assert.Equal(t, 5, store.lastOpt.Limit)
	assert.Equal(t, 5, store.lastOpt.Offset)
	assert.Equal(t, ListWindow{Limit: 5, Offset: 5, Count: 1}, body.Window)

	rec = httptest.NewRecorder()
	h.ListReportsHandler(rec, httptest.NewRequest(http.MethodPost, "/api/reports", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetReportHandler(t *testing.T) {
	store := &memoryReports{}
	store.SaveReport(context.Background(), sampleReport("run-1", "login", models.VerdictFailed))
	h := NewReportHandler(store, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.GetReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/reports/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rep models.ScenarioReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, models.VerdictFailed, rep.Verdict)

	rec = httptest.NewRecorder()
	h.GetReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/reports/run-1?format=text", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "login")

	rec = httptest.NewRecorder()
	h.GetReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/reports/latest?scenario=login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/reports/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteReportHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/reports/run-1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = httptest.NewRecorder()
	h.DeleteReportHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/reports/run-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type blockingRunner struct {
	release chan struct{}
	calls   chan string
}

func (r *blockingRunner) Run(ctx context.Context, sc *models.Scenario) (*models.ScenarioReport, error) {
	r.calls <- sc.Name
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return sampleReport("run-"+sc.Name, sc.Name, models.VerdictPassed), nil
}

func newScenarioHandler(runner *blockingRunner) *ScenarioHandler {
	logger := arbor.NewLogger()
	catalog := scenarios.NewStaticCatalog([]*models.Scenario{
		{Name: "login", Description: "admin login", Steps: []models.Step{{Name: "open"}}},
	}, logger)
	return NewScenarioHandler(context.Background(), catalog, runner, logger)
}

func TestListScenariosHandler(t *testing.T) {
	h := newScenarioHandler(&blockingRunner{})

	rec := httptest.NewRecorder()
	h.ListScenariosHandler(rec, httptest.NewRequest(http.MethodGet, "/api/scenarios", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Scenarios []ScenarioInfo `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Scenarios, 1)
	assert.Equal(t, "login", body.Scenarios[0].Name)
	assert.Equal(t, 1, body.Scenarios[0].Steps)

	rec = httptest.NewRecorder()
	h.GetScenarioHandler(rec, httptest.NewRequest(http.MethodGet, "/api/scenarios/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunScenarioHandlerAsync(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), calls: make(chan string, 1)}
	h := newScenarioHandler(runner)

	rec := httptest.NewRecorder()
	h.RunScenarioHandler(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/login/run", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "login", <-runner.calls)
	assert.True(t, h.IsRunning("login"))

	rec = httptest.NewRecorder()
	h.RunScenarioHandler(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/login/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.release)
	assert.Eventually(t, func() bool { return !h.IsRunning("login") }, time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	h.RunScenarioHandler(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/missing/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunScenarioHandlerWait(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), calls: make(chan string, 1)}
	close(runner.release)
	h := newScenarioHandler(runner)

	rec := httptest.NewRecorder()
	h.RunScenarioHandler(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/login/run?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var rep models.ScenarioReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "run-login", rep.ID)
	assert.False(t, h.IsRunning("login"))
}

func TestWriteEngineError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteEngineError(rec, models.WrapEngineError(models.ErrorKindEnvironment, "open", "", errors.New("no browser")))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EnvironmentError", gjson.Get(rec.Body.String(), "kind").String())

	rec = httptest.NewRecorder()
	WriteEngineError(rec, models.NewEngineError(models.ErrorKindElementNotFound, "click", "missing"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	WriteEngineError(rec, context.Canceled)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireMethodSetsAllow(t *testing.T) {
	rec := httptest.NewRecorder()
	ok := RequireMethod(rec, httptest.NewRequest(http.MethodPut, "/api/reports/x", nil), http.MethodGet, http.MethodDelete)
	assert.False(t, ok)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Allow"))
	assert.Equal(t, "error", gjson.Get(rec.Body.String(), "status").String())
}

func TestGetListWindow(t *testing.T) {
	limit, offset := GetListWindow(httptest.NewRequest(http.MethodGet, "/api/reports?limit=999&offset=-1", nil))
	assert.Equal(t, 200, limit)
	assert.Equal(t, 0, offset)
	limit, _ = GetListWindow(httptest.NewRequest(http.MethodGet, "/api/reports?limit=abc", nil))
	assert.Equal(t, 20, limit)
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "login", PathSegment("/api/scenarios/login/run", "/api/scenarios/"))
	assert.Equal(t, "abc", PathSegment("/api/reports/abc", "/api/reports/"))
	assert.Equal(t, "", PathSegment("/other", "/api/reports/"))
}
