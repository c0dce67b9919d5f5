package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
)

// loggedFields are the payload keys copied onto the log entry, in output order
var loggedFields = []string{"scenario", "step", "status", "verdict", "warning"}

// NewLoggerSubscriber returns a handler that logs run lifecycle events under the run's
// correlation id. Failed and errored outcomes are raised to warn and error.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		payload, _ := event.Payload.(map[string]interface{})
		field := func(key string) string {
			v, _ := payload[key].(string)
			return v
		}

		l := logger
		if runID := field("run_id"); runID != "" {
			l = common.RunLogger(logger, runID)
		}

		var logEvent arbor.ILogEvent
		switch {
		case field("verdict") == string(models.VerdictErrored):
			logEvent = l.Error()
		case field("verdict") == string(models.VerdictFailed), field("status") == string(models.StepFailed),
			event.Type == interfaces.EventStateWarning:
			logEvent = l.Warn()
		case event.Type == interfaces.EventRunStarted, event.Type == interfaces.EventRunCompleted:
			logEvent = l.Info()
		default:
			logEvent = l.Debug()
		}

		logEvent = logEvent.Str("event_type", string(event.Type))
		for _, key := range loggedFields {
			if v := field(key); v != "" {
				logEvent = logEvent.Str(key, v)
			}
		}
		logEvent.Msg("Run event")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every lifecycle event type.
// Signal events are left out; they are logged by the signal bus itself.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)
	for _, eventType := range interfaces.AllEventTypes {
		if eventType == interfaces.EventSignal {
			continue
		}
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}
	return nil
}
