package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/commercebridge/reconciler/internal/email"
	"github.com/commercebridge/reconciler/internal/observability"
	"github.com/commercebridge/reconciler/internal/repository"
	"github.com/commercebridge/reconciler/internal/shopify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const skippedNoReferenceMessage = "No Shopify order number in invoice header (may be cancellation or manual invoice)"

// Processor reconciles one paid sevDesk invoice against Shopify: resolve the
// order referenced by the invoice header, mark it paid exactly once, and leave
// exactly one notification_history row describing the outcome.
type Processor struct {
	records  repository.RecordRepository
	orders   shopify.OrderDirectory
	notifier email.Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger

	// dryRun is evaluated on every invocation so the flag can be flipped
	// without restarting an in-flight poll loop.
	dryRun func() bool
}

func NewProcessor(
	records repository.RecordRepository,
	orders shopify.OrderDirectory,
	notifier email.Notifier,
	dryRun func() bool,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Processor, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order directory is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if dryRun == nil {
		dryRun = func() bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		records:  records,
		orders:   orders,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		dryRun:   dryRun,
	}, nil
}

// ProcessPaidInvoice runs the reconciliation workflow for a single invoice.
// Adapter failures are absorbed into a failed history row; the returned error
// is non-nil only when even that row could not be written, which the caller
// should surface in its operational log for manual follow-up.
func (p *Processor) ProcessPaidInvoice(ctx context.Context, invoice domain.Invoice) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = observability.WithInvoiceID(ctx, invoice.ID)
	logger := observability.WithContextLogger(p.logger, ctx)

	existing, err := p.records.FindSent(ctx, invoice.ID, domain.NotificationTypePaymentReceived)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Error("reconciliation log lookup failed", zap.Error(err))
		return p.appendRecord(ctx, logger, invoice, "", nil, domain.OutcomeFailed,
			fmt.Sprintf("reconciliation log lookup failed: %v", err))
	}
	if existing != nil {
		logger.Debug("invoice already reconciled", zap.String("recordId", existing.ID))
		return nil
	}

	reference, ok := domain.ExtractOrderReference(invoice.Header)
	if !ok {
		logger.Info("no order reference in invoice header",
			zap.String("invoiceNumber", invoice.Number),
			zap.String("header", invoice.Header),
		)
		return p.appendRecord(ctx, logger, invoice, "", nil, domain.OutcomeSkipped, skippedNoReferenceMessage)
	}

	lookupStart := time.Now()
	order, err := p.orders.FindOrderByReference(ctx, reference)
	p.metrics.ObservePlatformCallDuration("shopify", "find_order", time.Since(lookupStart))
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("no matching shopify order", zap.String("reference", reference))
		return p.appendRecord(ctx, logger, invoice, "", nil, domain.OutcomeFailed,
			fmt.Sprintf("No matching Shopify order found for order number %s", reference))
	}
	if err != nil {
		logger.Error("order lookup failed", zap.String("reference", reference), zap.Error(err))
		return p.appendRecord(ctx, logger, invoice, "", nil, domain.OutcomeFailed, err.Error())
	}

	if p.dryRun() {
		logger.Info("dry run, skipping order mutation",
			zap.String("orderId", order.ID),
			zap.String("orderName", order.Name),
		)
		return p.appendRecord(ctx, logger, invoice, order.Email, &order.ID, domain.OutcomeDryRun,
			fmt.Sprintf("dry run: order %s would have been marked as paid", order.Name))
	}

	markStart := time.Now()
	err = p.orders.MarkOrderPaid(ctx, order.ID)
	p.metrics.ObservePlatformCallDuration("shopify", "mark_order_paid", time.Since(markStart))
	if err != nil {
		logger.Error("failed to mark order as paid",
			zap.String("orderId", order.ID),
			zap.Error(err),
		)
		// No sent row exists, so the next poll window retries this invoice.
		return p.appendRecord(ctx, logger, invoice, order.Email, &order.ID, domain.OutcomeFailed, err.Error())
	}

	logger.Info("order marked as paid",
		zap.String("orderId", order.ID),
		zap.String("orderName", order.Name),
	)

	// Best effort: the order mutation already succeeded and is not undone,
	// so a failed confirmation must not downgrade the recorded outcome.
	if result := p.notifier.SendPaymentConfirmation(ctx, *order); !result.Success {
		logger.Warn("payment confirmation failed",
			zap.String("orderId", order.ID),
			zap.String("detail", result.Message),
		)
	}

	return p.appendRecord(ctx, logger, invoice, order.Email, &order.ID, domain.OutcomeSent, "")
}

func (p *Processor) appendRecord(
	ctx context.Context,
	logger *zap.Logger,
	invoice domain.Invoice,
	customerEmail string,
	orderID *string,
	outcome domain.Outcome,
	message string,
) error {
	record := domain.NotificationRecord{
		ID:            uuid.NewString(),
		InvoiceID:     invoice.ID,
		Type:          domain.NotificationTypePaymentReceived,
		CustomerEmail: customerEmail,
		OrderID:       orderID,
		Status:        outcome,
	}
	if message != "" {
		record.Message = &message
	}

	if err := record.Validate(); err != nil {
		return err
	}

	if err := p.records.Append(ctx, &record); err != nil {
		logger.Error("failed to append reconciliation record",
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to append reconciliation record for invoice %s: %w", invoice.ID, err)
	}

	p.metrics.IncInvoiceProcessed(outcome.String())
	return nil
}
