package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFiles_Defaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "accept", config.Signals.DialogPolicy)
	assert.Equal(t, "2s", config.Signals.DialogGrace)
	assert.False(t, config.Executor.FailFast)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "./scenarios", config.Scenarios.Dir)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	base := writeConfig(t, "base.toml", `
[browser]
headless = false
default_timeout = "3s"

[scenarios]
base_url = "http://base"

[variables]
admin_user = "admin"
`)
	override := writeConfig(t, "override.toml", `
[scenarios]
base_url = "http://override"

[executor]
fail_fast = true
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.False(t, config.Browser.Headless)
	assert.Equal(t, "3s", config.Browser.DefaultTimeout)
	assert.Equal(t, "http://override", config.Scenarios.BaseURL)
	assert.True(t, config.Executor.FailFast)
	assert.Equal(t, "admin", config.Variables["admin_user"])
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("UIFLOW_SERVER_PORT", "9999")
	t.Setenv("UIFLOW_DIALOG_POLICY", "dismiss")
	t.Setenv("UIFLOW_LOG_OUTPUT", "stdout, file")
	t.Setenv("UIFLOW_VAR_ADMIN_PASSWORD", "s3cret")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "dismiss", config.Signals.DialogPolicy)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, "s3cret", config.Variables["admin_password"])

	ApplyFlagOverrides(config, 7000, "", "debug")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromFiles_Invalid(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := writeConfig(t, "bad.toml", `
[executor]
step_timeout = "soon"
`)
	_, err = LoadFromFiles(bad)
	assert.ErrorContains(t, err, "executor.step_timeout")

	policy := writeConfig(t, "policy.toml", `
[signals]
dialog_policy = "ignore"
`)
	_, err = LoadFromFiles(policy)
	assert.ErrorContains(t, err, "dialog_policy")
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 2*time.Second, ParseDurationOr("2s", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("nope", time.Second))
	assert.Equal(t, time.Second, ParseDurationOr("-1s", time.Second))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("*/15 * * * *"))
	assert.Error(t, ValidateSchedule("every day"))
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		base, target, want string
	}{
		{"http://localhost:8080", "/index.php", "http://localhost:8080/index.php"},
		{"http://localhost:8080/app", "index.php", "http://localhost:8080/app/index.php"},
		{"http://localhost:8080/app/", "https://other/x", "https://other/x"},
		{"", "http://only", "http://only"},
		{"http://localhost:8080", "", "http://localhost:8080"},
	}
	for _, c := range cases {
		got, err := ResolveURL(c.base, c.target)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s + %s", c.base, c.target)
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "1b4e28ba", ShortID("run_1b4e28ba-2fa1-11d2-883f-0016d3cca427"))
	assert.Len(t, NewRunID(), len("run_")+36)
}
