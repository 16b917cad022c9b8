package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palmera/payments/internal/core"
)

// recordingAck captures how a delivery was settled
type recordingAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *recordingAck) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *recordingAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *recordingAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, body []byte) (amqp.Delivery, *recordingAck) {
	t.Helper()
	ack := &recordingAck{}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}, ack
}

// rejected records count earlier rejections from the consumer queue
func rejected(count int64) amqp.Table {
	return amqp.Table{"x-death": []interface{}{
		amqp.Table{"queue": RetryQueueName, "reason": "expired", "count": count},
		amqp.Table{"queue": QueueName, "reason": "rejected", "count": count},
	}}
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(core.PaymentEvent{
		Type:      core.EventPaymentConfirmed,
		Reference: "palmera_1_a",
		Provider:  core.ProviderPaystack,
		Status:    core.PaymentStatusConfirmed,
		Amount:    "5000",
		Currency:  core.CurrencyXOF,
	})
	require.NoError(t, err)
	return body
}

func TestDispatch(t *testing.T) {
	client := &RabbitMQClient{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		name        string
		body        func(*testing.T) []byte
		headers     amqp.Table
		handlerErr  error
		wantAck     bool
		wantHandled bool
	}{
		{"handled", eventBody, nil, nil, true, true},
		{"terminal error", eventBody, nil, fmt.Errorf("lookup: %w", core.ErrPaymentNotFound), true, true},
		{"transient error is delayed", eventBody, nil, errors.New("connection refused"), false, true},
		{"transient error after retries", eventBody, rejected(2), errors.New("connection refused"), false, true},
		{"transient error at the cap", eventBody, rejected(MaxDeliveries - 1), errors.New("connection refused"), true, true},
		{"malformed", func(*testing.T) []byte { return []byte("{") }, nil, nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ack := delivery(t, tt.body(t))
			msg.Headers = tt.headers
			var got core.PaymentEvent
			client.dispatch(context.Background(), msg, func(ctx context.Context, event core.PaymentEvent) error {
				got = event
				return tt.handlerErr
			})

			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, !tt.wantAck, ack.nacked)
			assert.False(t, ack.requeue, "rejected events go through the retry queue, never straight back")
			if tt.wantHandled {
				assert.Equal(t, "palmera_1_a", got.Reference)
			}
		})
	}
}

func TestDeliveries(t *testing.T) {
	assert.Equal(t, int64(1), deliveries(amqp.Delivery{}))
	assert.Equal(t, int64(4), deliveries(amqp.Delivery{Headers: rejected(3)}))
	assert.Equal(t, int64(1), deliveries(amqp.Delivery{Headers: amqp.Table{"x-death": "garbage"}}))
}

func TestIsTerminalError(t *testing.T) {
	assert.True(t, isTerminalError(core.ErrPaymentNotFound))
	assert.True(t, isTerminalError(&core.TransitionError{From: core.PaymentStatusConfirmed, To: core.PaymentStatusFailed}))
	assert.True(t, isTerminalError(fmt.Errorf("%w: bad", core.ErrInvalidRequest)))
	assert.False(t, isTerminalError(&core.TransportError{Provider: core.ProviderPaystack, Op: "notify", Err: io.EOF}))
}

func TestMessageID(t *testing.T) {
	at := time.Unix(0, 42)
	id := messageID(core.PaymentEvent{Type: core.EventRefundCreated, Reference: "palmera_1_a", Timestamp: at})
	assert.Equal(t, "refund.created:palmera_1_a:42", id)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, p.PublishPaymentEvent(context.Background(), core.PaymentEvent{Type: core.EventPaymentInitiated}))
	assert.NoError(t, p.Close())
}
