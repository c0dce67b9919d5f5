package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/app"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/testutil"
)

const modalScenario = `
name = "open-login"
base_url = "http://app.test/"
initial = "home"

[[states]]
name = "home"
  [[states.predicates]]
  selector = "#loginBtn"
  property = "visible"
  expected = "true"

[[states]]
name = "modal"
  [[states.predicates]]
  selector = "#loginModal"
  property = "visible"
  expected = "true"

[[steps]]
name = "open login"
expect = "modal"
  [[steps.actions]]
  kind = "click"
  selector = "#loginBtn"
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	root := t.TempDir()
	scenarioDir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(scenarioDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarioDir, "open-login.toml"), []byte(modalScenario), 0644))

	cfg := common.NewDefaultConfig()
	cfg.Scenarios.Dir = scenarioDir
	cfg.Reports.Dir = filepath.Join(root, "results")
	cfg.Storage.Badger.Path = filepath.Join(root, "data")
	cfg.Executor.ScreenshotOnFailure = false
	cfg.Executor.DOMSnapshotOnFailure = false
	cfg.Executor.StepTimeout = "1s"

	driver := testutil.NewScriptedDriver()
	driver.Set("#loginBtn", testutil.Element{Visible: true})
	driver.Set("#loginModal", testutil.Element{Visible: false})
	driver.OnClick("#loginBtn", func(d *testutil.ScriptedDriver) { d.Show("#loginModal") })

	application, err := app.New(cfg, arbor.NewLogger(), app.WithDriverFactory(driver.Factory()))
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, v))
	}
	return resp.StatusCode
}

func TestScenarioRunAndReportHistory(t *testing.T) {
	srv := newTestServer(t)

	var list struct {
		Scenarios []struct {
			Name string `json:"name"`
		} `json:"scenarios"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/scenarios", &list))
	require.Len(t, list.Scenarios, 1)
	assert.Equal(t, "open-login", list.Scenarios[0].Name)

	resp, err := http.Post(srv.URL+"/api/scenarios/open-login/run?wait=true", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep models.ScenarioReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, models.VerdictPassed, rep.Verdict, "first cause: %+v", rep.FirstFatal)

	var history struct {
		Reports []struct {
			ID      string         `json:"id"`
			Verdict models.Verdict `json:"verdict"`
		} `json:"reports"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reports?scenario=open-login", &history))
	require.Len(t, history.Reports, 1)
	assert.Equal(t, rep.ID, history.Reports[0].ID)

	var stored models.ScenarioReport
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/reports/"+rep.ID, &stored))
	assert.Equal(t, "open-login", stored.Scenario)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/reports/nope", nil))
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/scenarios/missing", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/scenarios/open-login/extra", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, srv.URL+"/api/scenarios/open-login/run", nil))

	var health map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/health", &health))
	assert.Equal(t, "ok", health["status"])

	var version common.VersionInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/version", &version))
	assert.Equal(t, common.Version, version.Version)
	assert.NotEmpty(t, version.GoVersion)

	var schedules map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/schedules", &schedules))

	resp, err := http.Post(srv.URL+"/api/schedules/none/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/reports", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/health", nil)
	req.Header.Set(RequestIDHeader, "run-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "run-42", resp.Header.Get(RequestIDHeader))
}

func TestStartOnFreePort(t *testing.T) {
	root := t.TempDir()
	cfg := common.NewDefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Scenarios.Dir = filepath.Join(root, "scenarios")
	cfg.Reports.Dir = filepath.Join(root, "results")
	cfg.Storage.Badger.Path = filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(cfg.Scenarios.Dir, 0755))

	application, err := app.New(cfg, arbor.NewLogger(), app.WithDriverFactory(testutil.NewScriptedDriver().Factory()))
	require.NoError(t, err)
	defer application.Close()

	srv := New(application)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addr() + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, <-errCh)
}
