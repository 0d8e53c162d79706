package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/commercebridge/reconciler/internal/email"
	"github.com/commercebridge/reconciler/internal/repository"
)

type fakeRecordRepo struct {
	findSentFn func(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error)
	appendFn   func(ctx context.Context, record *domain.NotificationRecord) error

	appended []domain.NotificationRecord
}

func (f *fakeRecordRepo) Append(ctx context.Context, record *domain.NotificationRecord) error {
	if f.appendFn != nil {
		if err := f.appendFn(ctx, record); err != nil {
			return err
		}
	}
	f.appended = append(f.appended, *record)
	return nil
}

func (f *fakeRecordRepo) FindSent(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error) {
	if f.findSentFn != nil {
		return f.findSentFn(ctx, invoiceID, notificationType)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) GetByInvoiceID(ctx context.Context, invoiceID string) ([]domain.NotificationRecord, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRecordRepo) List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error) {
	return nil, 0, nil
}

type fakeOrderDirectory struct {
	findFn func(ctx context.Context, reference string) (*domain.Order, error)
	markFn func(ctx context.Context, orderID string) error

	findCalls []string
	markCalls []string
}

func (f *fakeOrderDirectory) FindOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	f.findCalls = append(f.findCalls, reference)
	if f.findFn != nil {
		return f.findFn(ctx, reference)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeOrderDirectory) MarkOrderPaid(ctx context.Context, orderID string) error {
	f.markCalls = append(f.markCalls, orderID)
	if f.markFn != nil {
		return f.markFn(ctx, orderID)
	}
	return nil
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, order domain.Order) email.Result

	calls int
}

func (f *fakeNotifier) SendPaymentConfirmation(ctx context.Context, order domain.Order) email.Result {
	f.calls++
	if f.sendFn != nil {
		return f.sendFn(ctx, order)
	}
	return email.Result{Success: true}
}

func paidInvoice() domain.Invoice {
	return domain.Invoice{
		ID:     "INV-001",
		Number: "RE-2024-001",
		Status: domain.InvoiceStatusPaid,
		Header: "Rechnung zu Bestellung #PE4994",
	}
}

func shopOrder() *domain.Order {
	return &domain.Order{
		ID:              "gid://shopify/Order/123",
		Name:            "#PE4994",
		Email:           "customer@example.com",
		FinancialStatus: domain.OrderStatusPending,
	}
}

func newTestProcessor(t *testing.T, records *fakeRecordRepo, orders *fakeOrderDirectory, notifier *fakeNotifier, dryRun func() bool) *Processor {
	t.Helper()

	p, err := NewProcessor(records, orders, notifier, dryRun, nil, nil)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func requireSingleRecord(t *testing.T, records *fakeRecordRepo, outcome domain.Outcome) domain.NotificationRecord {
	t.Helper()

	if len(records.appended) != 1 {
		t.Fatalf("appended %d records, want 1", len(records.appended))
	}
	record := records.appended[0]
	if record.Status != outcome {
		t.Fatalf("record outcome = %q, want %q", record.Status, outcome)
	}
	if record.ID == "" {
		t.Error("record id is empty")
	}
	if record.InvoiceID != "INV-001" {
		t.Errorf("record invoice id = %q, want %q", record.InvoiceID, "INV-001")
	}
	if record.Type != domain.NotificationTypePaymentReceived {
		t.Errorf("record type = %q, want %q", record.Type, domain.NotificationTypePaymentReceived)
	}
	return record
}

func TestProcessorMarksOrderPaid(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			if reference != "PE4994" {
				return nil, fmt.Errorf("unexpected reference %q", reference)
			}
			return shopOrder(), nil
		},
	}
	notifier := &fakeNotifier{}
	p := newTestProcessor(t, records, orders, notifier, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	if got := len(orders.markCalls); got != 1 {
		t.Fatalf("MarkOrderPaid called %d times, want 1", got)
	}
	if orders.markCalls[0] != "gid://shopify/Order/123" {
		t.Errorf("marked order %q, want %q", orders.markCalls[0], "gid://shopify/Order/123")
	}
	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}

	record := requireSingleRecord(t, records, domain.OutcomeSent)
	if record.CustomerEmail != "customer@example.com" {
		t.Errorf("record email = %q, want %q", record.CustomerEmail, "customer@example.com")
	}
	if record.OrderID == nil || *record.OrderID != "gid://shopify/Order/123" {
		t.Errorf("record order id = %v, want gid://shopify/Order/123", record.OrderID)
	}
	if record.Message != nil {
		t.Errorf("record message = %q, want none", *record.Message)
	}
}

func TestProcessorSkipsAlreadyReconciled(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		findSentFn: func(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error) {
			if invoiceID != "INV-001" || notificationType != domain.NotificationTypePaymentReceived {
				t.Errorf("FindSent(%q, %q), want (INV-001, payment_received)", invoiceID, notificationType)
			}
			return &domain.NotificationRecord{
				ID:        "existing",
				InvoiceID: invoiceID,
				Type:      notificationType,
				Status:    domain.OutcomeSent,
			}, nil
		},
	}
	orders := &fakeOrderDirectory{}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	if len(orders.findCalls) != 0 || len(orders.markCalls) != 0 {
		t.Errorf("order directory called (%d finds, %d marks), want none",
			len(orders.findCalls), len(orders.markCalls))
	}
	if len(records.appended) != 0 {
		t.Errorf("appended %d records, want 0", len(records.appended))
	}
}

func TestProcessorSkipsHeaderWithoutReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{name: "cancellation", header: "Stornorechnung zu #PE4994"},
		{name: "no hash reference", header: "Manuelle Rechnung ohne Bestellung"},
		{name: "empty header", header: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records := &fakeRecordRepo{}
			orders := &fakeOrderDirectory{}
			p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

			invoice := paidInvoice()
			invoice.Header = tt.header
			if err := p.ProcessPaidInvoice(context.Background(), invoice); err != nil {
				t.Fatalf("ProcessPaidInvoice() error = %v", err)
			}

			if len(orders.findCalls) != 0 {
				t.Errorf("order lookup called %d times, want 0", len(orders.findCalls))
			}

			record := requireSingleRecord(t, records, domain.OutcomeSkipped)
			if record.Message == nil || *record.Message != skippedNoReferenceMessage {
				t.Errorf("record message = %v, want %q", record.Message, skippedNoReferenceMessage)
			}
			if record.CustomerEmail != "" || record.OrderID != nil {
				t.Errorf("skipped record carries order data: email=%q orderID=%v", record.CustomerEmail, record.OrderID)
			}
		})
	}
}

func TestProcessorRecordsMissingOrder(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return nil, domain.ErrNotFound
		},
	}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	if len(orders.markCalls) != 0 {
		t.Errorf("MarkOrderPaid called %d times, want 0", len(orders.markCalls))
	}

	record := requireSingleRecord(t, records, domain.OutcomeFailed)
	want := "No matching Shopify order found for order number PE4994"
	if record.Message == nil || *record.Message != want {
		t.Errorf("record message = %v, want %q", record.Message, want)
	}
}

func TestProcessorRecordsLookupFailure(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return nil, errors.New("shopify api error: throttled")
		},
	}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	record := requireSingleRecord(t, records, domain.OutcomeFailed)
	if record.Message == nil || *record.Message != "shopify api error: throttled" {
		t.Errorf("record message = %v, want lookup error text", record.Message)
	}
	if record.CustomerEmail != "" || record.OrderID != nil {
		t.Errorf("failed lookup record carries order data: email=%q orderID=%v", record.CustomerEmail, record.OrderID)
	}
}

func TestProcessorRecordsMarkPaidFailure(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
		markFn: func(ctx context.Context, orderID string) error {
			return errors.New("order cannot transition to paid")
		},
	}
	notifier := &fakeNotifier{}
	p := newTestProcessor(t, records, orders, notifier, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	if notifier.calls != 0 {
		t.Errorf("notifier called %d times, want 0", notifier.calls)
	}

	record := requireSingleRecord(t, records, domain.OutcomeFailed)
	if record.Message == nil || *record.Message != "order cannot transition to paid" {
		t.Errorf("record message = %v, want mutation error text", record.Message)
	}
	if record.OrderID == nil || *record.OrderID != "gid://shopify/Order/123" {
		t.Errorf("record order id = %v, want the resolved order", record.OrderID)
	}
}

func TestProcessorRetriesAfterFailedAttempt(t *testing.T) {
	t.Parallel()

	// Failed rows do not satisfy the idempotency lookup, so the next cycle
	// runs the full workflow again and produces a sent row.
	records := &fakeRecordRepo{
		findSentFn: func(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error) {
			return nil, domain.ErrNotFound
		},
	}
	markAttempts := 0
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
		markFn: func(ctx context.Context, orderID string) error {
			markAttempts++
			if markAttempts == 1 {
				return errors.New("shopify api error: status 502")
			}
			return nil
		},
	}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("first ProcessPaidInvoice() error = %v", err)
	}
	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("second ProcessPaidInvoice() error = %v", err)
	}

	if len(records.appended) != 2 {
		t.Fatalf("appended %d records, want 2", len(records.appended))
	}
	if records.appended[0].Status != domain.OutcomeFailed || records.appended[1].Status != domain.OutcomeSent {
		t.Errorf("outcomes = %q, %q, want failed then sent",
			records.appended[0].Status, records.appended[1].Status)
	}
}

func TestProcessorDryRun(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
	}
	notifier := &fakeNotifier{}
	p := newTestProcessor(t, records, orders, notifier, func() bool { return true })

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	if len(orders.markCalls) != 0 {
		t.Errorf("MarkOrderPaid called %d times in dry run, want 0", len(orders.markCalls))
	}
	if notifier.calls != 0 {
		t.Errorf("notifier called %d times in dry run, want 0", notifier.calls)
	}

	record := requireSingleRecord(t, records, domain.OutcomeDryRun)
	if record.OrderID == nil || *record.OrderID != "gid://shopify/Order/123" {
		t.Errorf("record order id = %v, want the resolved order", record.OrderID)
	}
}

func TestProcessorDryRunFlagReadPerInvocation(t *testing.T) {
	t.Parallel()

	dry := true
	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
	}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, func() bool { return dry })

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("dry ProcessPaidInvoice() error = %v", err)
	}
	dry = false
	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("live ProcessPaidInvoice() error = %v", err)
	}

	if len(orders.markCalls) != 1 {
		t.Fatalf("MarkOrderPaid called %d times, want 1", len(orders.markCalls))
	}
	if len(records.appended) != 2 {
		t.Fatalf("appended %d records, want 2", len(records.appended))
	}
	if records.appended[0].Status != domain.OutcomeDryRun || records.appended[1].Status != domain.OutcomeSent {
		t.Errorf("outcomes = %q, %q, want dry-run then sent",
			records.appended[0].Status, records.appended[1].Status)
	}
}

func TestProcessorEmailFailureDoesNotDowngradeOutcome(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
	}
	notifier := &fakeNotifier{
		sendFn: func(ctx context.Context, order domain.Order) email.Result {
			return email.Result{Success: false, Message: "smtp unavailable"}
		},
	}
	p := newTestProcessor(t, records, orders, notifier, nil)

	if err := p.ProcessPaidInvoice(context.Background(), paidInvoice()); err != nil {
		t.Fatalf("ProcessPaidInvoice() error = %v", err)
	}

	requireSingleRecord(t, records, domain.OutcomeSent)
}

func TestProcessorAppendFailureIsTerminal(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{
		appendFn: func(ctx context.Context, record *domain.NotificationRecord) error {
			return errors.New("connection refused")
		},
	}
	orders := &fakeOrderDirectory{
		findFn: func(ctx context.Context, reference string) (*domain.Order, error) {
			return shopOrder(), nil
		},
	}
	p := newTestProcessor(t, records, orders, &fakeNotifier{}, nil)

	err := p.ProcessPaidInvoice(context.Background(), paidInvoice())
	if err == nil {
		t.Fatal("ProcessPaidInvoice() error = nil, want append failure")
	}
	if len(records.appended) != 0 {
		t.Errorf("appended %d records, want 0", len(records.appended))
	}
}

func TestNewProcessorValidation(t *testing.T) {
	t.Parallel()

	records := &fakeRecordRepo{}
	orders := &fakeOrderDirectory{}
	notifier := &fakeNotifier{}

	if _, err := NewProcessor(nil, orders, notifier, nil, nil, nil); err == nil {
		t.Error("NewProcessor(nil records) error = nil, want error")
	}
	if _, err := NewProcessor(records, nil, notifier, nil, nil, nil); err == nil {
		t.Error("NewProcessor(nil orders) error = nil, want error")
	}
	if _, err := NewProcessor(records, orders, nil, nil, nil, nil); err == nil {
		t.Error("NewProcessor(nil notifier) error = nil, want error")
	}
	if _, err := NewProcessor(records, orders, notifier, nil, nil, nil); err != nil {
		t.Errorf("NewProcessor() with nil optionals error = %v", err)
	}
}
