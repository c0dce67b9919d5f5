package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/uiflow/internal/interfaces"
)

// subscriberQueueSize bounds the events buffered for one slow subscriber
const subscriberQueueSize = 256

type delivery struct {
	ctx   context.Context
	event interfaces.Event
}

// subscriber owns a queue drained by a single goroutine, so one subscriber sees the
// events of a run in publish order
type subscriber struct {
	eventType interfaces.EventType
	handler   interfaces.EventHandler
	queue     chan delivery
	done      chan struct{}
}

// Service is the in-process event bus behind run progress and the live stream.
// Publish never blocks the executor: a subscriber whose queue is full loses the event.
type Service struct {
	mu          sync.RWMutex
	subscribers map[interfaces.EventType][]*subscriber
	closed      bool
	dropped     atomic.Int64
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type and starts its delivery goroutine
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("event service is closed")
	}

	sub := &subscriber{
		eventType: eventType,
		handler:   handler,
		queue:     make(chan delivery, subscriberQueueSize),
		done:      make(chan struct{}),
	}
	s.subscribers[eventType] = append(s.subscribers[eventType], sub)
	go s.drain(sub)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

func (s *Service) drain(sub *subscriber) {
	defer close(sub.done)
	for d := range sub.queue {
		if err := s.invoke(d.ctx, sub, d.event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_type", string(sub.eventType)).
				Msg("Event handler failed")
		}
	}
}

// invoke calls the handler, turning a panic into an error
func (s *Service) invoke(ctx context.Context, sub *subscriber, event interfaces.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}

// Publish queues the event for every subscriber of its type and returns immediately
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	for _, sub := range s.subscribers[event.Type] {
		select {
		case sub.queue <- delivery{ctx: context.WithoutCancel(ctx), event: event}:
		default:
			total := s.dropped.Add(1)
			s.logger.Warn().
				Str("event_type", string(event.Type)).
				Int64("dropped_total", total).
				Msg("Event subscriber queue full, event dropped")
		}
	}
	return nil
}

// PublishSync calls every subscriber of the event type in the caller's goroutine and
// returns their joined errors
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	subs := append([]*subscriber(nil), s.subscribers[event.Type]...)
	s.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := s.invoke(ctx, sub, event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Dropped returns how many queued deliveries were lost to full subscriber queues
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting events, lets every subscriber finish its queue and drops all
// subscriptions
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*subscriber
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			close(sub.queue)
			all = append(all, sub)
		}
	}
	s.subscribers = make(map[interfaces.EventType][]*subscriber)
	s.mu.Unlock()

	for _, sub := range all {
		<-sub.done
	}
	s.logger.Debug().Int("subscribers", len(all)).Msg("Event service closed")
	return nil
}
