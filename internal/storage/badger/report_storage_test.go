package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

func newTestStorage(t *testing.T) interfaces.ReportStorage {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager.ReportStorage()
}

func newReport(id, scenario string, verdict models.Verdict, started time.Time) *models.ScenarioReport {
	return &models.ScenarioReport{
		ID:        id,
		Scenario:  scenario,
		Verdict:   verdict,
		StartedAt: started,
		Steps: []models.StepOutcome{{
			Index:   1,
			Step:    "submit credentials",
			Passed:  verdict == models.VerdictPassed,
			Status:  models.StepPassed,
			Failure: &models.Failure{Kind: models.ErrorKindSignalTimeout, Message: "no response"},
		}},
		Signals: []models.Signal{{
			Seq:    1,
			Kind:   models.SignalDialog,
			Dialog: &models.DialogPayload{Type: "alert", Message: "Erreur: Old password incorrect", Accepted: true},
		}},
	}
}

func TestSaveAndGetReport(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	rep := newReport("run-1", "login", models.VerdictFailed, time.Now())
	require.NoError(t, storage.SaveReport(ctx, rep))

	got, err := storage.GetReport(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "login", got.Scenario)
	assert.Equal(t, models.VerdictFailed, got.Verdict)
	require.Len(t, got.Signals, 1)
	assert.Equal(t, "Erreur: Old password incorrect", got.Signals[0].Dialog.Message)
	assert.Equal(t, models.ErrorKindSignalTimeout, got.Steps[0].Failure.Kind)

	_, err = storage.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrReportNotFound)

	assert.Error(t, storage.SaveReport(ctx, &models.ScenarioReport{}))
}

func TestListReportsNewestFirst(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, storage.SaveReport(ctx, newReport("a", "login", models.VerdictPassed, base)))
	require.NoError(t, storage.SaveReport(ctx, newReport("b", "export", models.VerdictFailed, base.Add(time.Minute))))
	require.NoError(t, storage.SaveReport(ctx, newReport("c", "login", models.VerdictFailed, base.Add(2*time.Minute))))

	all, err := storage.ListReports(ctx, models.ReportListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	logins, err := storage.ListReports(ctx, models.ReportListOptions{Scenario: "login"})
	require.NoError(t, err)
	assert.Len(t, logins, 2)

	failed, err := storage.ListReports(ctx, models.ReportListOptions{Verdict: models.VerdictFailed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c", failed[0].ID)

	latest, err := storage.LatestReport(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	_, err = storage.LatestReport(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrReportNotFound)
}

func TestDeleteAndPruneReports(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, storage.SaveReport(ctx, newReport(fmt.Sprintf("login-%d", i), "login", models.VerdictPassed, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, storage.SaveReport(ctx, newReport("export-0", "export", models.VerdictPassed, base)))

	removed, err := storage.PruneReports(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	logins, err := storage.ListReports(ctx, models.ReportListOptions{Scenario: "login"})
	require.NoError(t, err)
	require.Len(t, logins, 2)
	assert.Equal(t, "login-4", logins[0].ID)
	assert.Equal(t, "login-3", logins[1].ID)

	_, err = storage.GetReport(ctx, "export-0")
	assert.NoError(t, err)

	require.NoError(t, storage.DeleteReport(ctx, "export-0"))
	assert.ErrorIs(t, storage.DeleteReport(ctx, "export-0"), models.ErrReportNotFound)

	removed, err = storage.PruneReports(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
