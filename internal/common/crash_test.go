package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

func TestTrackRun(t *testing.T) {
	done := TrackRun("run-a", "login")
	found := false
	for _, run := range ActiveRuns() {
		if run.RunID == "run-a" {
			found = true
			assert.Equal(t, "login", run.Scenario)
		}
	}
	assert.True(t, found)
	done()
	for _, run := range ActiveRuns() {
		assert.NotEqual(t, "run-a", run.RunID)
	}
}

func TestWriteCrashFile(t *testing.T) {
	prev := CrashLogDir
	CrashLogDir = t.TempDir()
	defer func() { CrashLogDir = prev }()

	done := TrackRun("run-b", "csv-export")
	defer done()

	path := WriteCrashFile("nil map write", "goroutine 1 [running]:")
	require.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(filepath.Base(path), ".yaml"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report CrashReport
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.Equal(t, "nil map write", report.Panic)
	assert.Equal(t, "goroutine 1 [running]:", report.Stack)
	require.NotEmpty(t, report.ActiveRuns)
	assert.Equal(t, "csv-export", report.ActiveRuns[len(report.ActiveRuns)-1].Scenario)
}

func TestSafeGoRecovers(t *testing.T) {
	finished := make(chan struct{})
	SafeGo(arbor.NewLogger(), "panics", func() {
		defer close(finished)
		panic("boom")
	})
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not run")
	}
}
