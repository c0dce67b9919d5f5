package browser

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/fixture"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/executor"
)

func TestKeyMapping(t *testing.T) {
	assert.Equal(t, "\u001b", keys["Escape"])
	assert.Equal(t, "\r", keys["Enter"])
	_, ok := keys["q"]
	assert.False(t, ok)
}

func TestIsTextual(t *testing.T) {
	assert.True(t, isTextual("application/json"))
	assert.True(t, isTextual("text/csv"))
	assert.False(t, isTextual("image/png"))
	assert.Equal(t, "abc", truncateBody([]byte("abcdef"), 3))
	assert.Equal(t, "abcdef", truncateBody([]byte("abcdef"), 0))
}

func TestClassifyScriptException(t *testing.T) {
	d := &ChromeDriver{browserCtx: context.Background()}
	ctx := context.Background()

	err := d.classify(ctx, "evaluate", "", &runtime.ExceptionDetails{Text: "Uncaught TypeError: cannot read properties of null"})
	assert.Equal(t, models.ErrorKindScriptError, models.KindOf(err))
	assert.False(t, models.IsFatal(err))

	err = d.classify(ctx, "evaluate", "", errors.New("websocket closed"))
	assert.Equal(t, models.ErrorKindEnvironment, models.KindOf(err))
}

func TestAllocatorOptionsExtend(t *testing.T) {
	base := len(allocatorOptions(Options{}))
	full := allocatorOptions(Options{WindowWidth: 800, WindowHeight: 600, UserAgent: "ua", ExecPath: "/bin/chrome", NoSandbox: true})
	assert.Equal(t, base+4, len(full))
}

// Drives a real browser against the fixture. Requires Chrome and UIFLOW_CHROME=1.
func TestChromeAgainstFixture(t *testing.T) {
	if os.Getenv("UIFLOW_CHROME") != "1" {
		t.Skip("set UIFLOW_CHROME=1 to run browser tests")
	}

	logger := arbor.NewLogger()
	srv := httptest.NewServer(fixture.NewApp(fixture.Options{}, logger))
	defer srv.Close()

	factory := NewFactory(Options{
		Headless:       true,
		NoSandbox:      true,
		WindowWidth:    1280,
		WindowHeight:   800,
		DefaultTimeout: 5 * time.Second,
		DialogGrace:    2 * time.Second,
		MaxBodyBytes:   64 * 1024,
		CaptureBodies:  true,
		CaptureConsole: true,
	}, logger)

	config := executor.RunnerConfig{
		Executor: executor.DefaultOptions(),
		Session: executor.SessionOptions{
			ResultsRoot:  t.TempDir(),
			DialogPolicy: models.DialogAccept,
		},
		RunTimeout: time.Minute,
	}
	runner := executor.NewRunner(config, factory, nil, nil, logger)

	visible := func(sel string, want string) models.Predicate {
		return models.Predicate{Selector: sel, Property: models.PropertyVisible, Expected: want}
	}
	sc := &models.Scenario{
		Name:    "fixture login",
		BaseURL: srv.URL + "/",
		Initial: "anonymous",
		States: []models.State{
			{Name: "anonymous", Predicates: []models.Predicate{visible("#loginBtn", "true"), visible("#adminUserBtn", "false")}},
			{Name: "login-modal", Predicates: []models.Predicate{visible("#loginModal", "true")}},
			{Name: "admin", Predicates: []models.Predicate{visible("#logoutBtn", "true"), visible("#adminUserBtn", "true"), visible("#loginModal", "false")}},
			{Name: "change-password-open", Predicates: []models.Predicate{visible("#changePwdModal", "true")}},
		},
		Steps: []models.Step{
			{Name: "open login", Actions: []models.Action{{Kind: models.ActionClick, Selector: "#loginBtn"}}, Expect: "login-modal"},
			{
				Name: "submit",
				Actions: []models.Action{
					{Kind: models.ActionFill, Selector: "#loginUsername", Value: fixture.AdminUser},
					{Kind: models.ActionFill, Selector: "#loginPassword", Value: fixture.AdminPassword},
					{Kind: models.ActionClick, Selector: "#loginSubmit"},
				},
				Waits: []models.SignalWait{{SignalMatch: models.SignalMatch{
					Kind: models.SignalNetworkResponse, URLContains: "session_api", JSON: map[string]string{"success": "true"},
				}}},
				Expect: "admin",
				Assertions: []models.AssertionSpec{
					{Kind: models.AssertSignalField, Signal: models.SignalNetworkResponse, Path: "user.role", Expected: "admin"},
				},
			},
			{Name: "open change password", Actions: []models.Action{{Kind: models.ActionClick, Selector: "#changePwdBtn"}}, Expect: "change-password-open"},
			{
				Name: "wrong current password",
				Actions: []models.Action{
					{Kind: models.ActionFill, Selector: "#currentPassword", Value: "wrong"},
					{Kind: models.ActionFill, Selector: "#newPassword", Value: "Secret#2025"},
					{Kind: models.ActionFill, Selector: "#confirmPassword", Value: "Secret#2025"},
					{Kind: models.ActionClick, Selector: "#changePwdSubmit"},
				},
				Waits:      []models.SignalWait{{SignalMatch: models.SignalMatch{Kind: models.SignalDialog, MessageContains: "incorrect"}, Timeout: models.Duration(2 * time.Second)}},
				Expect:     "change-password-open",
				Assertions: []models.AssertionSpec{{Kind: models.AssertNoPageErrors}},
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	rep, err := runner.Run(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPassed, rep.Verdict, "first cause: %+v", rep.FirstFatal)
}
