package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationTypePaymentReceived tags history rows written by the paid-invoice
// workflow. The (invoice id, notification type) pair is the log's logical key.
const NotificationTypePaymentReceived = "payment_received"

// Outcome is the recorded result of one workflow invocation.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDryRun  Outcome = "dry-run"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSent, OutcomeFailed, OutcomeSkipped, OutcomeDryRun:
		return true
	}
	return false
}

func ParseOutcomeFromString(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("%w: invalid outcome %q", ErrValidation, s)
	}
	return o, nil
}

// NotificationRecord is one append-only row of the reconciliation log.
// Rows are inserted exactly once per workflow invocation and never updated.
// Once a sent row exists for an (invoice id, type) pair the invoice is done;
// multiple failed or skipped rows for the same pair are expected across retries.
type NotificationRecord struct {
	ID            string
	InvoiceID     string
	Type          string
	CustomerEmail string
	OrderID       *string
	Status        Outcome
	Message       *string
	CreatedAt     time.Time
}

func (r *NotificationRecord) Validate() error {
	if r.InvoiceID == "" {
		return fmt.Errorf("%w: invoice id is required", ErrValidation)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: notification type is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid outcome %q", ErrValidation, r.Status)
	}
	return nil
}
