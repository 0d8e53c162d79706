package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"github.com/commercebridge/reconciler/internal/repository"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// HistoryReader is the read-side slice of the reconciliation log used by the
// HTTP API.
type HistoryReader interface {
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]domain.NotificationRecord, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.NotificationRecord, int64, error)
}

type HistoryHandler struct {
	records HistoryReader
}

func NewHistoryHandler(records HistoryReader) (*HistoryHandler, error) {
	if records == nil {
		return nil, fmt.Errorf("history reader is required")
	}
	return &HistoryHandler{records: records}, nil
}

func RegisterHistoryRoutes(router fiber.Router, records HistoryReader) error {
	h, err := NewHistoryHandler(records)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/reconciliations", h.ListReconciliations)
	v1.Get("/reconciliations/:invoiceId", h.GetInvoiceHistory)

	return nil
}

type recordResponse struct {
	ID            string    `json:"id"`
	InvoiceID     string    `json:"invoiceId"`
	Type          string    `json:"type"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	OrderID       *string   `json:"orderId,omitempty"`
	Status        string    `json:"status"`
	Message       *string   `json:"message,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type listRecordsResponse struct {
	Data []recordResponse `json:"data"`
	Meta listMeta         `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type invoiceHistoryResponse struct {
	InvoiceID string           `json:"invoiceId"`
	Records   []recordResponse `json:"records"`
}

func (h *HistoryHandler) ListReconciliations(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.records.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listRecordsResponse{
		Data: toRecordResponses(records),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *HistoryHandler) GetInvoiceHistory(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("invoiceId"))
	if invoiceID == "" {
		return toHTTPError(fmt.Errorf("%w: invoice id is required", domain.ErrValidation))
	}

	records, err := h.records.GetByInvoiceID(c.Context(), invoiceID)
	if err != nil {
		return toHTTPError(err)
	}
	if len(records) == 0 {
		return toHTTPError(fmt.Errorf("%w: no reconciliation history for invoice %s", domain.ErrNotFound, invoiceID))
	}

	return c.Status(fiber.StatusOK).JSON(invoiceHistoryResponse{
		InvoiceID: invoiceID,
		Records:   toRecordResponses(records),
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:      c.QueryInt("page", defaultPage),
		PageSize:  c.QueryInt("pageSize", defaultPageSize),
		InvoiceID: strings.TrimSpace(c.Query("invoiceId")),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		outcome, err := domain.ParseOutcomeFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &outcome
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toRecordResponses(records []domain.NotificationRecord) []recordResponse {
	responses := make([]recordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, recordResponse{
			ID:            record.ID,
			InvoiceID:     record.InvoiceID,
			Type:          record.Type,
			CustomerEmail: record.CustomerEmail,
			OrderID:       record.OrderID,
			Status:        record.Status.String(),
			Message:       record.Message,
			CreatedAt:     record.CreatedAt,
		})
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
