package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	var mu sync.Mutex
	var got []string
	handler := func(ctx context.Context, event interfaces.Event) error {
		defer wg.Done()
		mu.Lock()
		got = append(got, event.Payload.(map[string]interface{})["run_id"].(string))
		mu.Unlock()
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventRunCompleted, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventRunCompleted, handler))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventRunCompleted,
		Payload: map[string]interface{}{"run_id": "run-1"},
	}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers were not called")
	}
	assert.Equal(t, []string{"run-1", "run-1"}, got)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSignal}))
	assert.Error(t, svc.Subscribe(interfaces.EventSignal, nil))
}

func TestPublishSyncCollectsErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	boom := errors.New("boom")
	require.NoError(t, svc.Subscribe(interfaces.EventStepCompleted, func(ctx context.Context, e interfaces.Event) error { return boom }))
	require.NoError(t, svc.Subscribe(interfaces.EventStepCompleted, func(ctx context.Context, e interfaces.Event) error { return nil }))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventStepCompleted})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestCloseDropsSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	called := false
	require.NoError(t, svc.Subscribe(interfaces.EventRunStarted, func(ctx context.Context, e interfaces.Event) error {
		called = true
		return nil
	}))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
	assert.False(t, called)
}

func TestLoggerSubscriber(t *testing.T) {
	logger := arbor.NewLogger()
	subscriber := NewLoggerSubscriber(logger)

	assert.NoError(t, subscriber(context.Background(), interfaces.Event{
		Type: interfaces.EventStepCompleted,
		Payload: map[string]interface{}{
			"run_id":   "run-1",
			"scenario": "login",
			"step":     "submit credentials",
			"status":   "passed",
		},
	}))
	assert.NoError(t, subscriber(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
	assert.NoError(t, subscriber(context.Background(), interfaces.Event{
		Type:    interfaces.EventRunCompleted,
		Payload: map[string]interface{}{"run_id": "run-2", "verdict": "Errored"},
	}))
	assert.NoError(t, subscriber(context.Background(), interfaces.Event{
		Type:    interfaces.EventStateWarning,
		Payload: map[string]interface{}{"run_id": "run-2", "warning": "two states match"},
	}))

	svc := NewService(logger)
	defer svc.Close()
	require.NoError(t, SubscribeLoggerToAllEvents(svc, logger))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunCompleted}))
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var mu sync.Mutex
	var seen []int
	require.NoError(t, svc.Subscribe(interfaces.EventSignal, func(ctx context.Context, e interfaces.Event) error {
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSignal, Payload: i}))
	}
	// Close drains the queues
	require.NoError(t, svc.Close())

	require.Len(t, seen, 50)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestPanickingHandlerIsReported(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()
	require.NoError(t, svc.Subscribe(interfaces.EventStateWarning, func(ctx context.Context, e interfaces.Event) error {
		panic("bad payload")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventStateWarning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad payload")
}

func TestFullQueueDropsEvents(t *testing.T) {
	svc := NewService(arbor.NewLogger()).(*Service)
	release := make(chan struct{})
	require.NoError(t, svc.Subscribe(interfaces.EventSignal, func(ctx context.Context, e interfaces.Event) error {
		<-release
		return nil
	}))

	// One delivery is held by the handler; the rest fill the queue and then overflow
	for i := 0; i < subscriberQueueSize+10; i++ {
		require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSignal}))
	}
	assert.GreaterOrEqual(t, svc.Dropped(), int64(9))

	close(release)
	require.NoError(t, svc.Close())
	assert.Error(t, svc.Subscribe(interfaces.EventSignal, func(ctx context.Context, e interfaces.Event) error { return nil }))
}
