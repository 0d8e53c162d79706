package domain

// OrderFinancialStatus is a Shopify order payment status.
type OrderFinancialStatus string

const (
	OrderStatusPending           OrderFinancialStatus = "PENDING"
	OrderStatusAuthorized        OrderFinancialStatus = "AUTHORIZED"
	OrderStatusPaid              OrderFinancialStatus = "PAID"
	OrderStatusPartiallyPaid     OrderFinancialStatus = "PARTIALLY_PAID"
	OrderStatusRefunded          OrderFinancialStatus = "REFUNDED"
	OrderStatusPartiallyRefunded OrderFinancialStatus = "PARTIALLY_REFUNDED"
	OrderStatusVoided            OrderFinancialStatus = "VOIDED"
)

func (s OrderFinancialStatus) String() string { return string(s) }

// Order is a Shopify commerce transaction. The workflow only ever moves an
// order toward paid; a paid order is never reverted.
type Order struct {
	ID              string
	Name            string
	Email           string
	FinancialStatus OrderFinancialStatus
	TotalAmount     string
	Currency        string
}

func (o Order) IsPaid() bool {
	return o.FinancialStatus == OrderStatusPaid
}
