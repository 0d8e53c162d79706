package repository

import (
	"time"

	"github.com/commercebridge/reconciler/internal/domain"
)

// NotificationRecordModel is the persistence model for notification_history.
// The table is append-only; there is no update path.
type NotificationRecordModel struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	SevdeskInvoiceID string         `gorm:"column:sevdesk_invoice_id;type:varchar(64);not null"`
	NotificationType string         `gorm:"type:varchar(64);not null"`
	CustomerEmail    string         `gorm:"type:varchar(255);not null;default:''"`
	ShopifyOrderID   *string        `gorm:"column:shopify_order_id;type:varchar(255)"`
	Status           domain.Outcome `gorm:"type:varchar(20);not null"`
	ErrorMessage     *string        `gorm:"type:text"`
	CreatedAt        time.Time
}

func (NotificationRecordModel) TableName() string {
	return "notification_history"
}

func recordModelFromDomain(r *domain.NotificationRecord) *NotificationRecordModel {
	if r == nil {
		return nil
	}

	return &NotificationRecordModel{
		ID:               r.ID,
		SevdeskInvoiceID: r.InvoiceID,
		NotificationType: r.Type,
		CustomerEmail:    r.CustomerEmail,
		ShopifyOrderID:   r.OrderID,
		Status:           r.Status,
		ErrorMessage:     r.Message,
		CreatedAt:        r.CreatedAt,
	}
}

func recordModelToDomain(m *NotificationRecordModel) *domain.NotificationRecord {
	if m == nil {
		return nil
	}

	return &domain.NotificationRecord{
		ID:            m.ID,
		InvoiceID:     m.SevdeskInvoiceID,
		Type:          m.NotificationType,
		CustomerEmail: m.CustomerEmail,
		OrderID:       m.ShopifyOrderID,
		Status:        m.Status,
		Message:       m.ErrorMessage,
		CreatedAt:     m.CreatedAt,
	}
}
