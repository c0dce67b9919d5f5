package handlers

import (
	"context"
	"strings"
	"time"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/common"
	"github.com/ternarybob/uiflow/internal/interfaces"
	"github.com/ternarybob/uiflow/internal/models"
	"golang.org/x/time/rate"
)

// RunEventUpdate is the payload broadcast for every engine event
type RunEventUpdate struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario,omitempty"`
	Level      string    `json:"level"`
	Step       string    `json:"step,omitempty"`
	Index      int       `json:"index,omitempty"`
	Status     string    `json:"status,omitempty"`
	Verdict    string    `json:"verdict,omitempty"`
	Passed     int       `json:"passed,omitempty"`
	Steps      int       `json:"steps,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Seq        int64     `json:"seq,omitempty"`
	Text       string    `json:"text,omitempty"`
	Warning    string    `json:"warning,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSubscriber bridges engine events to WebSocket broadcasts
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
	minLevel      plog.Level
}

// NewEventSubscriber creates and initializes an event subscriber
// Automatically subscribes to all engine events with config-driven filtering and throttling
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:       handler,
		eventService:  eventService,
		logger:        logger,
		allowedEvents: make(map[string]bool),
		throttlers:    make(map[string]*rate.Limiter),
		minLevel:      plog.TraceLevel,
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}

		for eventType, intervalStr := range config.ThrottleIntervals {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				// 1 event per interval (burst=1)
				s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Throttler initialized for event type")
			} else {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
			}
		}

		if config.MinLevel != "" {
			s.minLevel = plog.ParseLevel(config.MinLevel)
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the broadcast handler for every engine event type
func (s *EventSubscriber) SubscribeAll() {
	for _, eventType := range interfaces.AllEventTypes {
		if err := s.eventService.Subscribe(eventType, s.handleEvent); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe to event")
		}
	}
	s.logger.Debug().Int("event_types", len(interfaces.AllEventTypes)).Msg("EventSubscriber registered for run events")
}

func (s *EventSubscriber) handleEvent(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Invalid event payload type")
		return nil
	}

	level := eventLevel(event.Type, payload)
	if !s.shouldBroadcastEvent(string(event.Type), level) {
		return nil
	}

	update := RunEventUpdate{
		RunID:      getString(payload, "run_id"),
		Scenario:   getString(payload, "scenario"),
		Level:      strings.ToLower(level.String()),
		Step:       getString(payload, "step"),
		Index:      getInt(payload, "index"),
		Status:     getString(payload, "status"),
		Verdict:    getString(payload, "verdict"),
		Passed:     getInt(payload, "passed"),
		Steps:      getInt(payload, "steps"),
		DurationMs: getInt64(payload, "duration_ms"),
		Kind:       getString(payload, "kind"),
		Seq:        getInt64(payload, "seq"),
		Text:       getString(payload, "text"),
		Warning:    getString(payload, "warning"),
		Timestamp:  time.Now(),
	}
	if update.DurationMs == 0 {
		update.DurationMs = getInt64(payload, "elapsed")
	}

	s.handler.Broadcast(string(event.Type), update)
	return nil
}

// shouldBroadcastEvent checks if an event should be broadcast based on whitelist, level and throttling
func (s *EventSubscriber) shouldBroadcastEvent(eventType string, level plog.Level) bool {
	// Check whitelist (empty allowedEvents = allow all)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if level < s.minLevel {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Trace().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}

// eventLevel grades an event so clients can filter noise
func eventLevel(eventType interfaces.EventType, payload map[string]interface{}) plog.Level {
	switch eventType {
	case interfaces.EventSignal:
		if getString(payload, "kind") == string(models.SignalPageError) {
			return plog.WarnLevel
		}
		return plog.DebugLevel
	case interfaces.EventStateWarning:
		return plog.WarnLevel
	case interfaces.EventStepCompleted:
		switch models.StepStatus(getString(payload, "status")) {
		case models.StepFailed:
			return plog.WarnLevel
		case models.StepErrored:
			return plog.ErrorLevel
		}
	case interfaces.EventRunCompleted:
		switch models.Verdict(getString(payload, "verdict")) {
		case models.VerdictFailed:
			return plog.WarnLevel
		case models.VerdictErrored:
			return plog.ErrorLevel
		}
	}
	return plog.InfoLevel
}
