package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestPublisherEnvelopes(t *testing.T) {
	conn := &recordingConn{}
	publisher := NewPublisher(conn, "brandpulse")
	fixed := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	ctx := context.Background()
	require.NoError(t, publisher.PublishBatchCompleted(ctx, signal.BatchReport{BatchID: "b1", Processed: 4}))
	require.NoError(t, publisher.PublishTopicsRefreshed(ctx, signal.TopicSnapshot{
		Version:     "v9",
		Docs:        30,
		Topics:      []signal.Theme{{ID: "topic_v9_0", Name: "payroll, taxes"}},
		TermWeights: [][]float64{{0.5, 0.5}},
	}))

	assert.Equal(t, []string{"brandpulse.batch.completed", "brandpulse.topics.refreshed"}, conn.subjects)

	var env Envelope
	require.NoError(t, json.Unmarshal(conn.payloads[0], &env))
	assert.Equal(t, TypeBatchCompleted, env.Type)
	assert.Equal(t, fixed, env.Time)
	var report signal.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "b1", report.BatchID)
	assert.Equal(t, 4, report.Processed)

	require.NoError(t, json.Unmarshal(conn.payloads[1], &env))
	assert.Equal(t, TypeTopicsRefreshed, env.Type)
	assert.NotContains(t, string(env.Data), "term_weights")
	var refreshed TopicsRefreshed
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.Equal(t, "v9", refreshed.Version)
	assert.Len(t, refreshed.Topics, 1)
}

func TestDecodeRawBatch(t *testing.T) {
	raws, err := DecodeRawBatch([]byte(`[{"platform":"reddit","source_id":"a","text":"hi","created_at":"2024-06-03T10:00:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "reddit", raws[0].Platform)
	assert.Equal(t, time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), raws[0].CreatedAt.UTC())

	raws, err = DecodeRawBatch([]byte(`  {"platform":"twitter","source_id":"b","text":"yo"}`))
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "twitter", raws[0].Platform)

	_, err = DecodeRawBatch([]byte(`[]`))
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = DecodeRawBatch(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = DecodeRawBatch([]byte(`[{"platform":`))
	assert.Error(t, err)
}

type stubRunner struct {
	got []signal.RawPost
}

func (r *stubRunner) RunBatch(_ context.Context, raws []signal.RawPost) (*signal.BatchReport, error) {
	r.got = raws
	return &signal.BatchReport{Received: len(raws)}, nil
}

func TestSubscriberHandleRunsBatch(t *testing.T) {
	runner := &stubRunner{}
	sub := NewSubscriber(nil, "brandpulse", runner, logging.NewTestLogger())

	sub.handle(&nats.Msg{
		Subject: "brandpulse.raw",
		Data:    []byte(`[{"platform":"reddit","source_id":"a","text":"hi"},{"platform":"reddit","source_id":"b","text":"yo"}]`),
	})
	assert.Len(t, runner.got, 2)

	runner.got = nil
	sub.handle(&nats.Msg{Subject: "brandpulse.raw", Data: []byte(`not json`)})
	assert.Nil(t, runner.got)
}
