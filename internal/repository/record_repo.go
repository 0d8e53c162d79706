package repository

import (
	"context"
	"errors"
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status    *domain.Outcome
	InvoiceID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// RecordRepository is the reconciliation log port. Append is the only write;
// rows are never updated or deleted.
type RecordRepository interface {
	Append(ctx context.Context, r *domain.NotificationRecord) error
	FindSent(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) ([]domain.NotificationRecord, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error)
}

type GormRecordRepo struct {
	db *gorm.DB
}

func NewGormRecordRepo(db *gorm.DB) *GormRecordRepo {
	return &GormRecordRepo{db: db}
}

func (r *GormRecordRepo) Append(ctx context.Context, record *domain.NotificationRecord) error {
	model := recordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *recordModelToDomain(model)
	}
	return nil
}

func (r *GormRecordRepo) FindSent(ctx context.Context, invoiceID string, notificationType string) (*domain.NotificationRecord, error) {
	var model NotificationRecordModel
	err := r.db.WithContext(ctx).
		Where("sevdesk_invoice_id = ? AND notification_type = ? AND status = ?",
			invoiceID, notificationType, domain.OutcomeSent).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormRecordRepo) GetByInvoiceID(ctx context.Context, invoiceID string) ([]domain.NotificationRecord, error) {
	var models []NotificationRecordModel
	err := r.db.WithContext(ctx).
		Where("sevdesk_invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormRecordRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationRecordModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.InvoiceID != "" {
		query = query.Where("sevdesk_invoice_id = ?", params.InvoiceID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationRecordModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.NotificationRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, total, nil
}
