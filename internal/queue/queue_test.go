package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinshake/internal/config"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *fakeAck) Reject(uint64, bool) error { return nil }

func TestHandleFailure_Retry(t *testing.T) {
	p := &fakePublisher{}
	ack := &fakeAck{}
	msg := amqp091.Delivery{Acknowledger: ack, Body: []byte("{}"), Headers: amqp091.Table{retriesHeader: int32(2)}}

	HandleFailure(p, msg, BuildQueue, MaxRetries)

	require.Len(t, p.sent, 1)
	assert.Equal(t, BuildQueue+"_retry", p.sent[0].key)
	assert.Equal(t, int32(3), p.sent[0].msg.Headers[retriesHeader])
	assert.True(t, ack.acked)
	assert.Equal(t, int32(2), msg.Headers[retriesHeader])
}

func TestHandleFailure_DeadLetter(t *testing.T) {
	p := &fakePublisher{}
	ack := &fakeAck{}
	msg := amqp091.Delivery{Acknowledger: ack, Headers: amqp091.Table{retriesHeader: int32(MaxRetries)}}

	HandleFailure(p, msg, BuildQueue, MaxRetries)

	require.Len(t, p.sent, 1)
	assert.Equal(t, BuildQueue+"_dlq", p.sent[0].key)
	assert.True(t, ack.acked)
}

func TestHandleFailure_PublishFails(t *testing.T) {
	p := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAck{}

	HandleFailure(p, amqp091.Delivery{Acknowledger: ack}, BuildQueue, MaxRetries)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestBuildMsg(t *testing.T) {
	msg, err := NewBuildMsg(config.Build{Kind: "scop", Limit: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.BuildID)

	body := []byte(`{"build_id":"abc","build":{"kind":"scop","limit":5}}`)
	parsed, err := ParseBuildMsg(body)
	require.NoError(t, err)
	assert.Equal(t, "abc", parsed.BuildID)
	assert.Equal(t, 5, parsed.Build.Limit)

	_, err = ParseBuildMsg([]byte(`{"build":{"kind":"scop"}}`))
	assert.Error(t, err)
	_, err = ParseBuildMsg([]byte(`nope`))
	assert.Error(t, err)
}

func TestProgressTopic(t *testing.T) {
	assert.Equal(t, "build.abc.progress", ProgressTopic("abc"))
}
