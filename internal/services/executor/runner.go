package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"github.com/ternarybob/uiflow/internal/services/report"
)

// RunnerConfig holds everything a Runner needs beyond its collaborators
type RunnerConfig struct {
	Executor    Options
	Session     SessionOptions
	RunTimeout  time.Duration
	WriteJSON   bool
	KeepReports int
	BaseURL     string
}

// RunnerConfigFromConfig maps application configuration onto a RunnerConfig
func RunnerConfigFromConfig(cfg *common.Config) RunnerConfig {
	opts := OptionsFromConfig(cfg)
	return RunnerConfig{
		Executor: opts,
		Session: SessionOptions{
			ResultsRoot:  cfg.Reports.Dir,
			DialogPolicy: models.DialogPolicy(cfg.Signals.DialogPolicy),
			WaitTimeout:  opts.WaitTimeout,
			PollInterval: opts.PollInterval,
		},
		RunTimeout:  common.ParseDurationOr(cfg.Executor.RunTimeout, 5*time.Minute),
		WriteJSON:   cfg.Reports.WriteJSON,
		KeepReports: cfg.Reports.Keep,
		BaseURL:     cfg.Scenarios.BaseURL,
	}
}

var _ interfaces.ScenarioRunner = (*Runner)(nil)

// Runner opens one Session per scenario run, executes it and persists the report
type Runner struct {
	config       RunnerConfig
	factory      interfaces.DriverFactory
	storage      interfaces.ReportStorage
	eventService interfaces.EventService
	logger       arbor.ILogger

	// serialises pruning; runs themselves are independent
	pruneMu sync.Mutex
}

// NewRunner creates a runner. storage and eventService may be nil.
func NewRunner(config RunnerConfig, factory interfaces.DriverFactory, storage interfaces.ReportStorage, eventService interfaces.EventService, logger arbor.ILogger) *Runner {
	return &Runner{
		config:       config,
		factory:      factory,
		storage:      storage,
		eventService: eventService,
		logger:       logger,
	}
}

// Run executes scenario in a fresh session. Engine failures are reported through the
// returned report's verdict; the error is non-nil only for invalid input.
func (r *Runner) Run(ctx context.Context, scenario *models.Scenario) (*models.ScenarioReport, error) {
	if scenario == nil {
		return nil, fmt.Errorf("scenario is nil")
	}

	// Apply the configured base URL without mutating the catalog's copy
	sc := *scenario
	if sc.BaseURL == "" {
		sc.BaseURL = r.config.BaseURL
	}

	runID := common.NewRunID()
	defer common.TrackRun(runID, sc.Name)()
	logger := common.RunLogger(r.logger, runID)
	started := time.Now()
	builder := report.NewBuilder(runID, sc.Name, started)

	runCtx := ctx
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	r.publish(ctx, interfaces.EventRunStarted, map[string]interface{}{
		"run_id":   runID,
		"scenario": sc.Name,
		"steps":    len(sc.Steps),
		"started":  started,
	})

	sess, err := OpenSession(runCtx, runID, r.factory, &sc, r.config.Session, logger)
	if err != nil {
		logger.Error().Err(err).Str("scenario", sc.Name).Msg("Failed to open session")
		builder.SetFatal(&models.Failure{Kind: models.KindOf(err), Message: err.Error()})
		builder.SetRunState(models.RunStateErrored)
		return r.finish(ctx, builder.Build(time.Now()), logger), nil
	}
	defer sess.Close()

	sess.Bus.Observe(func(sig models.Signal) {
		r.publish(ctx, interfaces.EventSignal, map[string]interface{}{
			"run_id": runID,
			"seq":    sig.Seq,
			"kind":   string(sig.Kind),
			"text":   common.Truncate(sig.Text(), 200),
		})
	})

	exec := NewExecutor(r.config.Executor, logger)
	exec.OnStep(func(o models.StepOutcome) {
		r.publish(ctx, interfaces.EventStepCompleted, map[string]interface{}{
			"run_id":   runID,
			"scenario": sc.Name,
			"index":    o.Index,
			"step":     o.Step,
			"status":   string(o.Status),
			"elapsed":  o.ElapsedMs,
		})
		for _, w := range o.Warnings {
			r.publish(ctx, interfaces.EventStateWarning, map[string]interface{}{
				"run_id":  runID,
				"step":    o.Step,
				"warning": w,
			})
		}
	})

	result := exec.Execute(runCtx, sess, &sc)
	for _, o := range result.Outcomes {
		builder.Add(o)
	}
	builder.SetRunState(result.RunState)
	builder.SetResultsDir(sess.ResultsDir)

	if runCtx.Err() != nil && ctx.Err() == nil {
		builder.AddWarning(fmt.Sprintf("run timeout of %s exceeded", r.config.RunTimeout))
	}

	// Snapshot signals before teardown so late arrivals during close are not reported
	builder.SetSignals(sess.Bus.Snapshot())
	if err := sess.Close(); err != nil {
		builder.SetFatal(&models.Failure{Kind: models.ErrorKindEnvironment, Message: fmt.Sprintf("session teardown failed: %v", err)})
		builder.SetRunState(models.RunStateErrored)
	}

	rep := builder.Build(time.Now())
	if r.config.WriteJSON {
		path := filepath.Join(sess.ResultsDir, "report.json")
		if err := report.WriteJSONFile(path, rep); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to write report file")
		}
	}
	return r.finish(ctx, rep, logger), nil
}

// finish persists the report and announces completion
func (r *Runner) finish(ctx context.Context, rep *models.ScenarioReport, logger arbor.ILogger) *models.ScenarioReport {
	if r.storage != nil {
		if err := r.storage.SaveReport(ctx, rep); err != nil {
			logger.Warn().Err(err).Str("run_id", rep.ID).Msg("Failed to store report")
		} else if r.config.KeepReports > 0 {
			r.pruneMu.Lock()
			removed, err := r.storage.PruneReports(ctx, r.config.KeepReports)
			r.pruneMu.Unlock()
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to prune report history")
			} else if removed > 0 {
				logger.Debug().Int("removed", removed).Msg("Pruned report history")
			}
		}
	}

	logger.Info().
		Str("scenario", rep.Scenario).
		Str("verdict", string(rep.Verdict)).
		Int("passed_steps", rep.PassedCount()).
		Int("steps", len(rep.Steps)).
		Int64("duration_ms", rep.DurationMs).
		Msg("Scenario report ready")

	r.publish(ctx, interfaces.EventRunCompleted, map[string]interface{}{
		"run_id":      rep.ID,
		"scenario":    rep.Scenario,
		"verdict":     string(rep.Verdict),
		"passed":      rep.PassedCount(),
		"steps":       len(rep.Steps),
		"duration_ms": rep.DurationMs,
	})
	return rep
}

func (r *Runner) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if r.eventService == nil {
		return
	}
	if err := r.eventService.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		r.logger.Debug().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
