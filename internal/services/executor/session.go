package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/signals"
	"github.com/ternarybob/uiflow/internal/services/state"
)

// SessionOptions configures how a Session is opened
type SessionOptions struct {
	ResultsRoot  string
	DialogPolicy models.DialogPolicy
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Session owns one driver and one signal bus for a single scenario run.
// Cleanup runs exactly once, in reverse registration order.
type Session struct {
	ID         string
	Driver     interfaces.Driver
	Bus        *signals.Bus
	States     *state.Model
	ResultsDir string

	logger arbor.ILogger

	mu            sync.Mutex
	cleanup       []func() error
	closeOnce     sync.Once
	closeErr      error
	screenshotNum int
	lastDownload  string
}

// OpenSession creates the results directory, the signal bus and the driver for runID
func OpenSession(ctx context.Context, runID string, factory interfaces.DriverFactory, scenario *models.Scenario, opts SessionOptions, logger arbor.ILogger) (*Session, error) {
	root := opts.ResultsRoot
	if root == "" {
		root = "./results"
	}
	dir := filepath.Join(root, fmt.Sprintf("run-%s-%s", time.Now().Format("2006-01-02-15-04-05"), common.ShortID(runID)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, models.WrapEngineError(models.ErrorKindEnvironment, "open_session", "", fmt.Errorf("failed to create results directory: %w", err))
	}

	s := &Session{
		ID:         runID,
		ResultsDir: dir,
		logger:     logger,
	}

	s.Bus = signals.NewBus(logger, opts.WaitTimeout)
	s.AddCleanup(func() error {
		s.Bus.Close()
		return nil
	})

	driver, err := factory(ctx, s.Bus, scenario.EffectiveDialogPolicy(opts.DialogPolicy))
	if err != nil {
		s.Close()
		if errors.Is(err, context.Canceled) {
			return nil, models.WrapEngineError(models.ErrorKindAborted, "open_session", "", err)
		}
		return nil, models.WrapEngineError(models.ErrorKindEnvironment, "open_session", "", err)
	}
	s.Driver = driver
	s.AddCleanup(driver.Close)

	s.States = state.NewModel(driver, scenario.States, opts.PollInterval, logger)

	logger.Debug().Str("session", runID).Str("results_dir", dir).Msg("Session opened")
	return s, nil
}

// AddCleanup registers fn to run when the session closes
func (s *Session) AddCleanup(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup = append(s.cleanup, fn)
}

// Close tears the session down. Safe to call from every exit path; only the first call does work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		fns := s.cleanup
		s.cleanup = nil
		s.mu.Unlock()

		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Warn().Err(s.closeErr).Str("session", s.ID).Msg("Session teardown reported errors")
		} else {
			s.logger.Debug().Str("session", s.ID).Msg("Session closed")
		}
	})
	return s.closeErr
}

// ScreenshotPath returns the next sequentially numbered evidence path for name
func (s *Session) ScreenshotPath(name, ext string) string {
	s.mu.Lock()
	s.screenshotNum++
	n := s.screenshotNum
	s.mu.Unlock()
	return filepath.Join(s.ResultsDir, fmt.Sprintf("%02d_%s.%s", n, sanitizeName(name), ext))
}

// ArtifactPath returns where a saved artifact named name is stored
func (s *Session) ArtifactPath(name string) string {
	return filepath.Join(s.ResultsDir, "artifacts", filepath.Base(name))
}

// SetLastDownload records the most recently saved download
func (s *Session) SetLastDownload(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDownload = path
}

// LastDownload returns the path of the most recently saved download, if any
func (s *Session) LastDownload() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDownload
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func sanitizeName(name string) string {
	name = unsafeName.ReplaceAllString(strings.ToLower(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "step"
	}
	if len(name) > 60 {
		name = name[:60]
	}
	return name
}
