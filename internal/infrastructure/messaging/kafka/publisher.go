package kafka

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
)

// EventKind names an interaction.
type EventKind string

const (
	EventLevelChanged   EventKind = "level_changed"
	EventPointClicked   EventKind = "point_clicked"
	EventTokensAnalyzed EventKind = "tokens_analyzed"
	EventSessionOpened  EventKind = "session_opened"
	EventSessionClosed  EventKind = "session_closed"
)

// eventSource is the envelope source of every event.
const eventSource = "featurescope"

// InteractionEvent records one viewer interaction with a render session.
type InteractionEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	FeatureID string    `json:"feature_id,omitempty"`
	Level     string    `json:"level,omitempty"`
	FromLevel string    `json:"from_level,omitempty"`
	Scale     float64   `json:"scale"`
	Tokens    int       `json:"tokens,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher delivers interaction events.
type EventPublisher interface {
	Publish(ctx context.Context, ev InteractionEvent) error
	Close() error
}

// messagePublisher is the part of Producer the event publisher needs.
type messagePublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
	Close() error
}

type eventPublisher struct {
	producer messagePublisher
	topic    string
	metrics  *prometheus.AppMetrics
	logger   logging.Logger
}

// NewEventPublisher publishes events to topic, keyed by session id so one
// session's events stay ordered.
func NewEventPublisher(p *Producer, topic string, metrics *prometheus.AppMetrics, logger logging.Logger) EventPublisher {
	return newEventPublisher(p, topic, metrics, logger)
}

func newEventPublisher(p messagePublisher, topic string, metrics *prometheus.AppMetrics, logger logging.Logger) *eventPublisher {
	if metrics == nil {
		metrics = prometheus.NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &eventPublisher{producer: p, topic: topic, metrics: metrics, logger: logger.Named("events")}
}

func (e *eventPublisher) Publish(ctx context.Context, ev InteractionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	env, err := NewEventEnvelope(string(ev.Kind), eventSource, ev)
	if err != nil {
		return err
	}
	env.EventID = ev.ID
	msg, err := env.ToMessage(e.topic, ev.SessionID)
	if err != nil {
		return err
	}
	if err := e.producer.Publish(ctx, msg); err != nil {
		e.metrics.EventsPublished.WithLabelValues(string(ev.Kind), "failure").Inc()
		e.logger.Warn("event publish failed",
			logging.String("kind", string(ev.Kind)), logging.SessionID(ev.SessionID), logging.Err(err))
		return err
	}
	e.metrics.EventsPublished.WithLabelValues(string(ev.Kind), "success").Inc()
	return nil
}

func (e *eventPublisher) Close() error { return e.producer.Close() }

// NoopPublisher drops every event. It is used when kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, InteractionEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
