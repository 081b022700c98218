// internal/adapter/events/subscriber.go

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
)

// SubjectRaw is the event type raw batches arrive on
const SubjectRaw = "raw"

// QueueGroup balances raw batches across pipeline instances
const QueueGroup = "brandpulse-pipeline"

// ErrEmptyBatch is returned for payloads without records
var ErrEmptyBatch = errors.New("empty raw batch")

// BatchRunner runs one ingestion batch
type BatchRunner interface {
	RunBatch(ctx context.Context, raws []signal.RawPost) (*signal.BatchReport, error)
}

// Subscriber feeds raw batches received on NATS into the pipeline
type Subscriber struct {
	conn   *nats.Conn
	prefix string
	runner BatchRunner
	logger logging.Logger
	sub    *nats.Subscription
	ctx    context.Context
}

// NewSubscriber creates a new raw batch subscriber
func NewSubscriber(conn *nats.Conn, prefix string, runner BatchRunner, logger logging.Logger) *Subscriber {
	return &Subscriber{
		conn:   conn,
		prefix: prefix,
		runner: runner,
		logger: logger,
	}
}

// Start subscribes to the raw subject. Batches run under ctx.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx
	subject := Subject(s.prefix, SubjectRaw)
	sub, err := s.conn.QueueSubscribe(subject, QueueGroup, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.sub = sub
	s.logger.WithField("subject", subject).Info("Listening for raw batches")
	return nil
}

// Stop drains the subscription
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Subscriber) handle(msg *nats.Msg) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := s.process(ctx, msg.Data)
	if err != nil {
		s.logger.WithError(err).WithField("subject", msg.Subject).Warn("Raw batch rejected")
	}
	if msg.Reply == "" {
		return
	}

	var reply []byte
	if err != nil {
		reply, _ = json.Marshal(map[string]string{"error": err.Error()})
	} else {
		reply, _ = json.Marshal(report)
	}
	if err := msg.Respond(reply); err != nil {
		s.logger.WithError(err).Warn("Failed to reply to raw batch")
	}
}

func (s *Subscriber) process(ctx context.Context, data []byte) (*signal.BatchReport, error) {
	raws, err := DecodeRawBatch(data)
	if err != nil {
		return nil, err
	}
	return s.runner.RunBatch(ctx, raws)
}

// DecodeRawBatch decodes a JSON array of raw posts, or a single raw post
func DecodeRawBatch(data []byte) ([]signal.RawPost, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBatch
	}

	var raws []signal.RawPost
	if trimmed[0] == '{' {
		var raw signal.RawPost
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("error decoding raw post: %w", err)
		}
		raws = append(raws, raw)
	} else if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("error decoding raw batch: %w", err)
	}

	if len(raws) == 0 {
		return nil, ErrEmptyBatch
	}
	return raws, nil
}
