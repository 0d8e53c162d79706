package sevdesk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 10 * time.Second

	// sevDesk status code for paid invoices, applied server-side. The update
	// timestamp is filtered in memory because invoiceDateFrom filters by
	// creation date, not by when the status last changed.
	paidStatusCode = "1000"
	pageLimit      = "100"
)

// InvoiceSource lists invoices that reached the paid status.
type InvoiceSource interface {
	ListPaidInvoices(ctx context.Context, since time.Time) ([]domain.Invoice, error)
}

type invoiceObject struct {
	ID            string  `json:"id"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Status        string  `json:"status"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	Header        string  `json:"header"`
	Update        string  `json:"update"`
}

type invoiceListResponse struct {
	Objects []invoiceObject `json:"objects"`
	Total   int             `json:"total"`
}

var _ InvoiceSource = (*Client)(nil)

// Client talks to the sevDesk REST API.
type Client struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL string, apiKey string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewClientWithClient(baseURL, apiKey, client)
}

func NewClientWithClient(baseURL string, apiKey string, client *resty.Client) (*Client, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBaseURL == "" {
		return nil, fmt.Errorf("sevdesk base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBaseURL); err != nil {
		return nil, fmt.Errorf("invalid sevdesk base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sevdesk api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &Client{
		client:  client,
		baseURL: trimmedBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
	}, nil
}

// ListPaidInvoices returns invoices in the paid status whose update timestamp
// is at or after since. A zero since disables the time filter. Invoices
// without a parseable update timestamp are always included.
func (c *Client) ListPaidInvoices(ctx context.Context, since time.Time) ([]domain.Invoice, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("sevdesk client is not initialized")
	}

	var parsed invoiceListResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", c.apiKey).
		SetQueryParam("status", paidStatusCode).
		SetQueryParam("limit", pageLimit).
		SetResult(&parsed).
		Get(c.baseURL + "/Invoice")
	if err != nil {
		return nil, &APIError{
			Message: "sevdesk request failed",
			Cause:   err,
		}
	}
	if response.IsError() {
		return nil, &APIError{
			StatusCode: response.StatusCode(),
			Message:    strings.TrimSpace(response.String()),
		}
	}

	invoices := make([]domain.Invoice, 0, len(parsed.Objects))
	for _, obj := range parsed.Objects {
		invoice := invoiceFromObject(obj)
		if !since.IsZero() && !invoice.UpdatedAt.IsZero() && invoice.UpdatedAt.Before(since) {
			continue
		}
		invoices = append(invoices, invoice)
	}

	return invoices, nil
}

func invoiceFromObject(obj invoiceObject) domain.Invoice {
	return domain.Invoice{
		ID:        obj.ID,
		Number:    obj.InvoiceNumber,
		Status:    domain.InvoiceStatus(obj.Status),
		Total:     obj.Total,
		Currency:  obj.Currency,
		Header:    obj.Header,
		UpdatedAt: parseUpdateTime(obj.Update),
	}
}

// sevDesk reports timestamps in more than one shape depending on the endpoint.
func parseUpdateTime(value string) time.Time {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t
		}
	}

	return time.Time{}
}
