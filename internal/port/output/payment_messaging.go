package output

import (
	"context"

	"github.com/palmera/payments/internal/core"
)

// PaymentMessaging is an output port (secondary port) for payment notifications
// Secondary adapters (RabbitMQ implementations) will implement this
type PaymentMessaging interface {
	// PublishPaymentEvent publishes a payment or refund notification
	PublishPaymentEvent(ctx context.Context, event core.PaymentEvent) error
	// Close closes the messaging connection
	Close() error
}
