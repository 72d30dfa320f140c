package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	declareErr error
	published  []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	if kind == amqp.ExchangeTopic && durable {
		f.declared = append(f.declared, name)
	}
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisherRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	publisher, err := NewAMQPPublisher(ch, "crm.events")
	require.NoError(t, err)
	assert.Equal(t, []string{"crm.events"}, ch.declared)

	event := Event{
		ID:        "evt-1",
		Type:      EventLeadUnqualified,
		LeadID:    "lead-1",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:   LeadUnqualifiedPayload{OldStatus: "active", Reason: "no budget"},
	}
	require.NoError(t, publisher.Forward(context.Background(), event))

	require.Len(t, ch.published, 1)
	out := ch.published[0]
	assert.Equal(t, "crm.events", out.exchange)
	assert.Equal(t, "lead.unqualified", out.key)
	assert.Equal(t, amqp.Persistent, out.msg.DeliveryMode)
	assert.Equal(t, "evt-1", out.msg.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.msg.Body, &decoded))
	assert.Equal(t, "lead-1", decoded["lead_id"])

	require.NoError(t, publisher.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisherDeclareFailure(t *testing.T) {
	_, err := NewAMQPPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "crm.events")
	assert.ErrorContains(t, err, "declare exchange crm.events")
}
