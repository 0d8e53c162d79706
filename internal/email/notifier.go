package email

import (
	"context"

	"github.com/commercebridge/reconciler/internal/domain"
	"go.uber.org/zap"
)

// Result reports the outcome of a confirmation attempt. Callers inspect it
// but never treat a failed send as a workflow error.
type Result struct {
	Success bool
	Message string
}

// Notifier sends a payment confirmation for an order that was just marked paid.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, order domain.Order) Result
}

var _ Notifier = (*ShopifyAutoNotifier)(nil)

// ShopifyAutoNotifier relies on Shopify's built-in behavior: marking an order
// paid triggers the store's own order confirmation mail. There is nothing to
// send from here, so this implementation only logs what happened. A real
// transactional provider can replace it behind the same interface.
type ShopifyAutoNotifier struct {
	logger *zap.Logger
}

func NewShopifyAutoNotifier(logger *zap.Logger) *ShopifyAutoNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopifyAutoNotifier{logger: logger}
}

func (n *ShopifyAutoNotifier) SendPaymentConfirmation(ctx context.Context, order domain.Order) Result {
	n.logger.Info("payment confirmation delegated to shopify order mail",
		zap.String("orderId", order.ID),
		zap.String("orderName", order.Name),
		zap.String("customerEmail", order.Email),
	)

	return Result{
		Success: true,
		Message: "confirmation email triggered automatically by shopify order status change",
	}
}
