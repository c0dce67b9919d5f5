package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/models"
)

type fakeRunner struct {
	active  int32
	maxSeen int32
	delay   time.Duration
	fail    string
}

func (r *fakeRunner) Run(ctx context.Context, sc *models.Scenario) (*models.ScenarioReport, error) {
	n := atomic.AddInt32(&r.active, 1)
	defer atomic.AddInt32(&r.active, -1)
	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(r.delay)
	if sc.Name == r.fail {
		return nil, errors.New("browser unavailable")
	}
	return &models.ScenarioReport{Scenario: sc.Name, Verdict: models.VerdictPassed}, nil
}

func scenarioList(names ...string) []*models.Scenario {
	out := make([]*models.Scenario, len(names))
	for i, n := range names {
		out[i] = &models.Scenario{Name: n}
	}
	return out
}

func TestRunAllKeepsOrderAndBoundsWorkers(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	pool := NewWorkerPool(runner, arbor.NewLogger(), 2)

	var mu sync.Mutex
	var seen []string
	pool.OnReport(func(rep *models.ScenarioReport) {
		mu.Lock()
		seen = append(seen, rep.Scenario)
		mu.Unlock()
	})

	reports, err := pool.RunAll(context.Background(), scenarioList("a", "b", "c", "d", "e"))
	require.NoError(t, err)
	require.Len(t, reports, 5)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, name, reports[i].Scenario)
	}
	assert.Len(t, seen, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxSeen), int32(2))
}

func TestRunAllReportsRunnerError(t *testing.T) {
	pool := NewWorkerPool(&fakeRunner{fail: "b"}, arbor.NewLogger(), 1)

	reports, err := pool.RunAll(context.Background(), scenarioList("a", "b", "c"))
	require.Error(t, err)
	assert.NotNil(t, reports[0])
	assert.Nil(t, reports[1])
	assert.NotNil(t, reports[2])
}

func TestRunAllStopsDispatchOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := NewWorkerPool(&fakeRunner{}, arbor.NewLogger(), 0)
	reports, err := pool.RunAll(ctx, scenarioList("a", "b"))
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
