package signals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/models"
)

func dialog(msg string) models.Signal {
	return models.Signal{Kind: models.SignalDialog, Dialog: &models.DialogPayload{Type: "alert", Message: msg, Accepted: true}}
}

func response(url string, status int, body string) models.Signal {
	return models.Signal{Kind: models.SignalNetworkResponse, Response: &models.ResponsePayload{URL: url, Status: status, Body: body}}
}

func TestBus_WaitForBindsEachDialogExactlyOnce(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	bus.Append(dialog("A"))
	bus.Append(dialog("B"))

	match := models.SignalMatch{Kind: models.SignalDialog}
	first, err := bus.WaitFor(context.Background(), match, 100*time.Millisecond)
	require.NoError(t, err)
	second, err := bus.WaitFor(context.Background(), match, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "A", first.Dialog.Message)
	assert.Equal(t, "B", second.Dialog.Message)

	_, err = bus.WaitFor(context.Background(), match, 50*time.Millisecond)
	assert.True(t, models.IsKind(err, models.ErrorKindSignalTimeout))
}

func TestBus_WaitForWakesOnLaterAppend(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		bus.Append(response("http://app/api/session_api.php", 200, `{"success":true}`))
	}()

	sig, err := bus.WaitFor(context.Background(), models.SignalMatch{
		Kind:        models.SignalNetworkResponse,
		URLContains: "session_api",
		Status:      200,
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sig.Seq)
}

func TestBus_ResponseAfterDeadlineIsTimeout(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	go func() {
		time.Sleep(600 * time.Millisecond)
		bus.Append(response("http://app/api/session_api.php", 200, `{"success":true}`))
	}()

	start := time.Now()
	_, err := bus.WaitFor(context.Background(), models.SignalMatch{
		Kind:        models.SignalNetworkResponse,
		URLContains: "session_api",
	}, 500*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, models.ErrorKindSignalTimeout, models.KindOf(err))
	assert.Less(t, time.Since(start), 600*time.Millisecond)
}

func TestBus_NonMatchingSignalsAreLeftForLaterWaits(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	bus.Append(response("http://app/api/other.php", 200, ""))
	bus.Append(response("http://app/api/session_api.php", 400, `{"success":false,"message":"Old password incorrect"}`))

	sig, err := bus.WaitFor(context.Background(), models.SignalMatch{
		Kind: models.SignalNetworkResponse,
		JSON: map[string]string{"success": "false"},
	}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sig.Seq)

	sig, err = bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalNetworkResponse}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sig.Seq)
}

func TestBus_CancelledContextIsAborted(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := bus.WaitFor(ctx, models.SignalMatch{Kind: models.SignalDownload}, time.Second)
	assert.Equal(t, models.ErrorKindAborted, models.KindOf(err))
}

func TestBus_CloseReleasesWaiters(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalDialog}, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, models.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}

	bus.Append(dialog("late"))
	assert.Empty(t, bus.Snapshot())
}

func TestBus_ZeroTimeoutUsesDefault(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), 40*time.Millisecond)
	defer bus.Close()

	start := time.Now()
	_, err := bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalDialog}, 0)
	assert.True(t, models.IsKind(err, models.ErrorKindSignalTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestBus_ConcurrentAppendsKeepSequenceOrder(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Append(models.Signal{Kind: models.SignalConsole, Console: &models.ConsolePayload{Level: "log", Text: "x"}})
		}()
	}
	wg.Wait()

	log := bus.Snapshot()
	require.Len(t, log, 50)
	for i, s := range log {
		assert.Equal(t, int64(i+1), s.Seq)
	}
}

func TestBus_ReadHelpers(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	var observed []int64
	bus.Observe(func(s models.Signal) { observed = append(observed, s.Seq) })

	bus.Append(dialog("first"))
	bus.Append(models.Signal{Kind: models.SignalPageError, PageError: &models.PageErrorPayload{Message: "boom"}})
	bus.Append(dialog("second"))

	last, ok := bus.Last(models.SignalDialog)
	require.True(t, ok)
	assert.Equal(t, "second", last.Dialog.Message)

	_, ok = bus.Last(models.SignalDownload)
	assert.False(t, ok)

	assert.Len(t, bus.Since(1), 2)
	assert.Len(t, bus.Find(models.SignalMatch{Kind: models.SignalDialog, MessageContains: "SEC"}), 1)
	assert.Equal(t, int64(3), bus.LastSeq())
	assert.Equal(t, []int64{1, 2, 3}, observed)
}

func TestBus_ReservedResponseKeepsArrivalOrder(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	seq := bus.Reserve(models.SignalNetworkResponse)
	bus.Append(dialog("Saved"))

	log := bus.Snapshot()
	require.Len(t, log, 1)
	assert.Equal(t, models.SignalDialog, log[0].Kind)

	filled := bus.Fill(seq, response("http://app/api/save.php", 200, `{"success":true}`))
	assert.Equal(t, seq, filled.Seq)

	log = bus.Snapshot()
	require.Len(t, log, 2)
	assert.Equal(t, models.SignalNetworkResponse, log[0].Kind)
	assert.Equal(t, int64(1), log[0].Seq)
	assert.Equal(t, `{"success":true}`, log[0].Response.Body)
	assert.Equal(t, models.SignalDialog, log[1].Kind)
	assert.Equal(t, int64(2), log[1].Seq)
	assert.False(t, log[1].Timestamp.Before(log[0].Timestamp))

	// a second fill of the same slot is ignored
	bus.Fill(seq, response("http://app/other", 500, ""))
	assert.Equal(t, 200, bus.Snapshot()[0].Response.Status)
}

func TestBus_WaitForBindsReservedResponseBeforeLaterOne(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	seq := bus.Reserve(models.SignalNetworkResponse)
	bus.Append(response("http://app/api/second.php", 200, ""))

	go func() {
		time.Sleep(30 * time.Millisecond)
		bus.Fill(seq, response("http://app/api/first.php", 200, "body"))
	}()

	match := models.SignalMatch{Kind: models.SignalNetworkResponse}
	first, err := bus.WaitFor(context.Background(), match, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "http://app/api/first.php", first.Response.URL)
	assert.Equal(t, int64(1), first.Seq)

	second, err := bus.WaitFor(context.Background(), match, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "http://app/api/second.php", second.Response.URL)
}

func TestBus_ReservationDoesNotHoldBackOtherKinds(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	defer bus.Close()

	bus.Reserve(models.SignalNetworkResponse)
	bus.Append(dialog("Deleted"))

	sig, err := bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalDialog}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "Deleted", sig.Dialog.Message)
}

func TestBus_StaleReservationStopsBlocking(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	bus.reserveGrace = 40 * time.Millisecond
	defer bus.Close()

	bus.Reserve(models.SignalNetworkResponse)
	bus.Append(response("http://app/api/list.php", 200, ""))

	start := time.Now()
	sig, err := bus.WaitFor(context.Background(), models.SignalMatch{Kind: models.SignalNetworkResponse}, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sig.Seq)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestBus_ReserveAfterCloseReturnsZero(t *testing.T) {
	bus := NewBus(arbor.NewLogger(), time.Second)
	bus.Close()

	assert.Equal(t, int64(0), bus.Reserve(models.SignalNetworkResponse))
	bus.Fill(0, response("http://app/x", 200, ""))
	assert.Empty(t, bus.Snapshot())
}
