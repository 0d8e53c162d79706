package migrations

import (
	"github.com/commercebridge/reconciler/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationHistoryTable(),
	})

	return m.Migrate()
}

func createNotificationHistoryTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_history",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationRecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_history_invoice_type ON notification_history (sevdesk_invoice_id, notification_type)`,
				`CREATE INDEX IF NOT EXISTS idx_history_status_created ON notification_history (status, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationRecordModel{})
		},
	}
}
