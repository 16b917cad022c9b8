package output

import (
	"context"

	"github.com/palmera/payments/internal/core"
)

// Notifier forwards consumed payment events to the booking and notification
// collaborators
type Notifier interface {
	Notify(ctx context.Context, event core.PaymentEvent) error
}
