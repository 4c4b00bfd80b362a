package gorm

import (
	"context"

	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"gorm.io/gorm"
)

// GormDispatchRepository ведёт журнал аудита исходящих вызовов.
type GormDispatchRepository struct {
	db *gorm.DB
}

func NewGormDispatchRepository(db *gorm.DB) service.DispatchRepository {
	return &GormDispatchRepository{db: db}
}

func (r *GormDispatchRepository) Create(ctx context.Context, record *models.DispatchRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormDispatchRepository) ListByConnector(ctx context.Context, connectorID string, limit int) ([]*models.DispatchRecord, error) {
	var records []*models.DispatchRecord
	err := r.db.WithContext(ctx).
		Where("connector_id = ?", connectorID).
		Order("timestamp desc").
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}
