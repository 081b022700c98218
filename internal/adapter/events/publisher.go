// internal/adapter/events/publisher.go

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"brandpulse/internal/domain/signal"
)

// Event types relayed to subscribers
const (
	TypeBatchCompleted  = "batch.completed"
	TypeTopicsRefreshed = "topics.refreshed"
)

// Conn is the publishing side of a NATS connection
type Conn interface {
	Publish(subject string, data []byte) error
}

// Envelope wraps every published event
type Envelope struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// TopicsRefreshed is the payload of a topics.refreshed event
type TopicsRefreshed struct {
	Version  string         `json:"version"`
	FittedAt time.Time      `json:"fitted_at"`
	Docs     int            `json:"docs"`
	Topics   []signal.Theme `json:"topics"`
}

// Subject returns the subject for an event type under prefix
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

// Publisher publishes pipeline events to NATS
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
}

// NewPublisher creates a new event publisher
func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		now:    time.Now,
	}
}

// PublishBatchCompleted publishes the report of a committed batch
func (p *Publisher) PublishBatchCompleted(_ context.Context, report signal.BatchReport) error {
	return p.publish(TypeBatchCompleted, report)
}

// PublishTopicsRefreshed publishes the headline of a new topic snapshot
func (p *Publisher) PublishTopicsRefreshed(_ context.Context, snapshot signal.TopicSnapshot) error {
	return p.publish(TypeTopicsRefreshed, TopicsRefreshed{
		Version:  snapshot.Version,
		FittedAt: snapshot.FittedAt,
		Docs:     snapshot.Docs,
		Topics:   snapshot.Topics,
	})
}

func (p *Publisher) publish(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling %s payload: %w", eventType, err)
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Time: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("error marshaling %s event: %w", eventType, err)
	}
	if err := p.conn.Publish(Subject(p.prefix, eventType), msg); err != nil {
		return fmt.Errorf("error publishing %s event: %w", eventType, err)
	}
	return nil
}
