package worker

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

// ReportFunc receives each report as soon as its run finishes. Calls are serialized.
type ReportFunc func(report *models.ScenarioReport)

type job struct {
	index    int
	scenario *models.Scenario
}

// WorkerPool runs a batch of scenarios on a fixed number of workers, each run in
// its own browser session
type WorkerPool struct {
	runner     interfaces.ScenarioRunner
	logger     arbor.ILogger
	numWorkers int

	mu       sync.Mutex
	onReport ReportFunc
}

func NewWorkerPool(runner interfaces.ScenarioRunner, logger arbor.ILogger, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		runner:     runner,
		logger:     logger,
		numWorkers: numWorkers,
	}
}

// OnReport registers a callback invoked after every completed run
func (wp *WorkerPool) OnReport(fn ReportFunc) {
	wp.onReport = fn
}

// RunAll runs every scenario and returns the reports in input order. Scenarios not
// started before ctx is canceled have no report (nil entry). The first runner error
// is returned after all workers stop.
func (wp *WorkerPool) RunAll(ctx context.Context, list []*models.Scenario) ([]*models.ScenarioReport, error) {
	reports := make([]*models.ScenarioReport, len(list))
	jobs := make(chan job)

	workers := wp.numWorkers
	if workers > len(list) {
		workers = len(list)
	}

	wp.logger.Debug().
		Int("num_workers", workers).
		Int("scenarios", len(list)).
		Msg("Starting worker pool")

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				rep, err := wp.process(ctx, workerID, j)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					continue
				}
				reports[j.index] = rep
			}
		}(i)
	}

dispatch:
	for i, sc := range list {
		select {
		case <-ctx.Done():
			wp.logger.Warn().
				Int("skipped", len(list)-i).
				Msg("Interrupted, skipping remaining scenarios")
			break dispatch
		case jobs <- job{index: i, scenario: sc}:
		}
	}
	close(jobs)
	wg.Wait()

	wp.logger.Debug().Msg("Worker pool stopped")
	return reports, firstErr
}

// process runs one scenario on a worker
func (wp *WorkerPool) process(ctx context.Context, workerID int, j job) (*models.ScenarioReport, error) {
	wp.logger.Debug().
		Int("worker_id", workerID).
		Str("scenario", j.scenario.Name).
		Msg("Processing scenario")

	rep, err := wp.runner.Run(ctx, j.scenario)
	if err != nil {
		wp.logger.Error().
			Err(err).
			Int("worker_id", workerID).
			Str("scenario", j.scenario.Name).
			Msg("Scenario run failed to start")
		return nil, err
	}

	if wp.onReport != nil {
		wp.mu.Lock()
		wp.onReport(rep)
		wp.mu.Unlock()
	}
	return rep, nil
}
