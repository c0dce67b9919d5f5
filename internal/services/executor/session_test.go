package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/testutil"
)

func openTestSession(t *testing.T) (*Session, *testutil.ScriptedDriver) {
	d := testutil.NewScriptedDriver()
	sc := &models.Scenario{Name: "s", Steps: []models.Step{{Name: "only"}}}
	sess, err := OpenSession(context.Background(), "run_1234abcd-0000", d.Factory(), sc, SessionOptions{ResultsRoot: t.TempDir()}, arbor.NewLogger())
	require.NoError(t, err)
	return sess, d
}

func TestSession_CleanupRunsOnceInReverseOrder(t *testing.T) {
	sess, d := openTestSession(t)

	var order []string
	sess.AddCleanup(func() error { order = append(order, "first"); return nil })
	sess.AddCleanup(func() error { order = append(order, "second"); return errors.New("second failed") })

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sess.Close()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, 1, d.CloseCount())
	for _, err := range errs {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "second failed")
	}
}

func TestSession_CloseReleasesSignalWaiters(t *testing.T) {
	sess, _ := openTestSession(t)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalDialog}, 0)
		done <- err
	}()

	require.NoError(t, sess.Close())
	err := <-done
	assert.True(t, models.IsKind(err, models.ErrorKindAborted))
}

func TestSession_Paths(t *testing.T) {
	sess, _ := openTestSession(t)
	defer sess.Close()

	assert.True(t, strings.HasPrefix(filepath.Base(sess.ResultsDir), "run-"))
	assert.True(t, strings.HasSuffix(sess.ResultsDir, "-1234abcd"))

	first := sess.ScreenshotPath("Open Login Modal!", "png")
	second := sess.ScreenshotPath("", "md")
	assert.Equal(t, "01_open_login_modal.png", filepath.Base(first))
	assert.Equal(t, "02_step.md", filepath.Base(second))
	assert.Equal(t, filepath.Join(sess.ResultsDir, "artifacts", "export.csv"), sess.ArtifactPath("../export.csv"))

	assert.Empty(t, sess.LastDownload())
	sess.SetLastDownload("/tmp/x.csv")
	assert.Equal(t, "/tmp/x.csv", sess.LastDownload())
}
