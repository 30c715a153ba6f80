package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventSourceRemoved    EventType = "source.removed"
	EventIntervalAssigned EventType = "interval.assigned"
)

// Event represents a distributed event
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	SourceID   domain.SubjectID `json:"source_id"`
	By         domain.SubjectID `json:"by,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus provides event publishing and subscription across instances
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger

	mu        sync.Mutex
	pubsub    *redis.PubSub
	ready     chan struct{}
	readyOnce sync.Once
}

// NewEventBus creates a new event bus
func NewEventBus(client *redis.Client, prefix, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    prefix + "events",
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// InstanceID returns the id stamped on events from this process
func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"source_id", event.SourceID,
	)
	return nil
}

// PublishSourceRemoved implements ports.EventPublisher
func (eb *EventBus) PublishSourceRemoved(ctx context.Context, sourceID, by domain.SubjectID) error {
	return eb.Publish(ctx, &Event{
		Type:     EventSourceRemoved,
		SourceID: sourceID,
		By:       by,
	})
}

// PublishIntervalAssigned asks the instance holding sourceID's connection
// to push the new cadence.
func (eb *EventBus) PublishIntervalAssigned(ctx context.Context, sourceID domain.SubjectID, seconds int) error {
	payload, err := json.Marshal(domain.IntervalAssigned{SourceID: sourceID, IntervalSeconds: seconds})
	if err != nil {
		return err
	}
	return eb.Publish(ctx, &Event{
		Type:     EventIntervalAssigned,
		SourceID: sourceID,
		Payload:  payload,
	})
}

// Ready is closed once Subscribe is receiving
func (eb *EventBus) Ready() <-chan struct{} {
	return eb.ready
}

// Subscribe blocks delivering events from other instances to handler until
// ctx is done.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	eb.readyOnce.Do(func() { close(eb.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

// RelayEventHandler applies remote events to this instance's relay.
func RelayEventHandler(terminator ports.StreamTerminator, notifier ports.Notifier) func(*Event) error {
	return func(event *Event) error {
		switch event.Type {
		case EventSourceRemoved:
			terminator.ForceTerminate(event.SourceID, event.By, domain.ReasonSourceRemoved)
			return nil
		case EventIntervalAssigned:
			var payload domain.IntervalAssigned
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				return fmt.Errorf("invalid interval payload: %w", err)
			}
			err := notifier.Notify(event.SourceID, domain.EventIntervalAssigned, payload)
			if errors.Is(err, domain.ErrNotDelivered) {
				return nil
			}
			return err
		default:
			return fmt.Errorf("unknown event type: %s", event.Type)
		}
	}
}
