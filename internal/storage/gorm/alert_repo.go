package gorm

import (
	"context"

	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"gorm.io/gorm"
)

// GormAlertRepository хранит канонические алерты в SQL.
type GormAlertRepository struct {
	db *gorm.DB
}

func NewGormAlertRepository(db *gorm.DB) service.AlertRepository {
	return &GormAlertRepository{db: db}
}

func (r *GormAlertRepository) Create(ctx context.Context, alert *models.AlertRecord) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *GormAlertRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.AlertRecord, error) {
	var alert models.AlertRecord
	err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *GormAlertRepository) Update(ctx context.Context, alert *models.AlertRecord) error {
	return r.db.WithContext(ctx).Save(alert).Error
}

// List возвращает алерты с пагинацией, последние первыми.
func (r *GormAlertRepository) List(ctx context.Context, limit int, offset int) ([]*models.AlertRecord, error) {
	var alerts []*models.AlertRecord
	err := r.db.WithContext(ctx).
		Order("last_seen desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&alerts).Error
	return alerts, err
}
