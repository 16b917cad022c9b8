package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

const (
	ExchangeName  = "payments"
	QueueName     = "payment_events"
	PrefetchCount = 10

	// Rejected events wait in the retry queue for RetryDelay, then the
	// broker routes them back to ExchangeName under their original key.
	RetryExchangeName = "payments.retry"
	RetryQueueName    = "payment_events.retry"
	RetryDelay        = 30 * time.Second

	// MaxDeliveries caps how often one event reaches the handler.
	MaxDeliveries = 5
)

// BindingKeys route every payment, refund and payout notification to the
// worker queue.
var BindingKeys = []string{"payment.*", "refund.*", "payout.*"}

// EventHandler processes one consumed notification
type EventHandler func(ctx context.Context, event core.PaymentEvent) error

// RabbitMQClient is a secondary adapter that implements PaymentMessaging output port
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

var _ output.PaymentMessaging = (*RabbitMQClient)(nil)

// NewRabbitMQClient connects and declares the topology
func NewRabbitMQClient(amqpURL string, logger *slog.Logger) (*RabbitMQClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
		logger:  logger.With("component", "rabbitmq"),
	}, nil
}

func declareTopology(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = channel.ExchangeDeclare(
		RetryExchangeName,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		RetryQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl":          RetryDelay.Milliseconds(),
			"x-dead-letter-exchange": ExchangeName,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}
	if err := channel.QueueBind(RetryQueueName, "", RetryExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind retry queue: %w", err)
	}

	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": RetryExchangeName},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range BindingKeys {
		if err := channel.QueueBind(QueueName, key, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}
	return nil
}

// PublishPaymentEvent publishes a notification routed by its event type
func (c *RabbitMQClient) PublishPaymentEvent(ctx context.Context, event core.PaymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = c.channel.PublishWithContext(ctx,
		ExchangeName,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID(event),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("published payment event", "type", event.Type, "reference", event.Reference)
	return nil
}

// ConsumePaymentEvents delivers notifications to handler until ctx is done
func (c *RabbitMQClient) ConsumePaymentEvents(ctx context.Context, handler EventHandler) error {
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.ConsumeWithContext(ctx,
		QueueName,
		"",    // consumer tag
		false, // auto-ack (we'll manually ack after processing)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("started consuming payment events", "queue", QueueName)

	go func() {
		for msg := range msgs {
			c.dispatch(ctx, msg, handler)
		}
		c.logger.Info("payment event consumer stopped")
	}()

	return nil
}

func (c *RabbitMQClient) dispatch(ctx context.Context, msg amqp.Delivery, handler EventHandler) {
	var event core.PaymentEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.logger.Error("dropping malformed event", "message_id", msg.MessageId, "error", err)
		msg.Ack(false)
		return
	}

	if err := handler(ctx, event); err != nil {
		attempt := deliveries(msg)
		log := c.logger.With("type", event.Type, "reference", event.Reference, "attempt", attempt, "error", err)
		switch {
		// Terminal errors will never succeed on redelivery
		case isTerminalError(err):
			log.Error("failed to handle event")
			msg.Ack(false)
		case attempt >= MaxDeliveries:
			log.Error("dropping event after repeated failures")
			msg.Ack(false)
		default:
			log.Warn("failed to handle event, retrying later", "delay", RetryDelay)
			msg.Nack(false, false)
		}
		return
	}

	msg.Ack(false)
}

// deliveries counts how often msg reached this queue's consumer, using the
// x-death history the broker appends each time it is dead-lettered from
// QueueName.
func deliveries(msg amqp.Delivery) int64 {
	n := int64(1)
	deaths, _ := msg.Headers["x-death"].([]interface{})
	for _, d := range deaths {
		death, ok := d.(amqp.Table)
		if !ok || death["queue"] != QueueName {
			continue
		}
		switch count := death["count"].(type) {
		case int64:
			n += count
		case int32:
			n += int64(count)
		case int:
			n += int64(count)
		}
	}
	return n
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func messageID(event core.PaymentEvent) string {
	return fmt.Sprintf("%s:%s:%d", event.Type, event.Reference, event.Timestamp.UnixNano())
}

// isTerminalError checks if an error can never be fixed by redelivery
func isTerminalError(err error) bool {
	return errors.Is(err, core.ErrPaymentNotFound) ||
		errors.Is(err, core.ErrInvalidTransition) ||
		errors.Is(err, core.ErrInvalidRequest)
}
