package messaging

import (
	"context"
	"log/slog"

	"github.com/palmera/payments/internal/core"
	"github.com/palmera/payments/internal/port/output"
)

// LogPublisher stands in for RabbitMQ when RABBITMQ_URL is unset; events are
// written to the log and dropped.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

var _ output.PaymentMessaging = (*LogPublisher)(nil)

func (p *LogPublisher) PublishPaymentEvent(ctx context.Context, event core.PaymentEvent) error {
	p.logger.InfoContext(ctx, "payment event (not published)", "type", event.Type, "reference", event.Reference, "status", event.Status)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
