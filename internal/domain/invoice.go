package domain

import "time"

// InvoiceStatus is a sevDesk invoice status code.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "100"
	InvoiceStatusSent      InvoiceStatus = "200"
	InvoiceStatusPartial   InvoiceStatus = "300"
	InvoiceStatusCancelled InvoiceStatus = "400"
	InvoiceStatusOverdue   InvoiceStatus = "500"
	InvoiceStatusPaid      InvoiceStatus = "1000"
)

func (s InvoiceStatus) String() string { return string(s) }

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartial,
		InvoiceStatusCancelled, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	}
	return false
}

// Invoice is a sevDesk billing document. It is read-only to this system;
// only invoices in the paid status are candidates for reconciliation.
type Invoice struct {
	ID        string
	Number    string
	Status    InvoiceStatus
	Total     float64
	Currency  string
	Header    string
	UpdatedAt time.Time
}

func (i Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
