package gorm

import (
	"context"

	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"gorm.io/gorm"
)

// GormConnectorRepository - это реализация ConnectorRepository с использованием GORM.
type GormConnectorRepository struct {
	db *gorm.DB
}

// NewGormConnectorRepository создает новый экземпляр репозитория коннекторов.
func NewGormConnectorRepository(db *gorm.DB) service.ConnectorRepository {
	return &GormConnectorRepository{db: db}
}

func (r *GormConnectorRepository) Create(ctx context.Context, instance *models.ConnectorInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *GormConnectorRepository) FindByID(ctx context.Context, id string) (*models.ConnectorInstance, error) {
	var instance models.ConnectorInstance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *GormConnectorRepository) FindByName(ctx context.Context, name string) (*models.ConnectorInstance, error) {
	var instance models.ConnectorInstance
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&instance).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *GormConnectorRepository) Update(ctx context.Context, instance *models.ConnectorInstance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

func (r *GormConnectorRepository) List(ctx context.Context) ([]*models.ConnectorInstance, error) {
	var instances []*models.ConnectorInstance
	err := r.db.WithContext(ctx).Order("name asc").Find(&instances).Error
	return instances, err
}

// Delete возвращает gorm.ErrRecordNotFound, если коннектора нет.
func (r *GormConnectorRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ConnectorInstance{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
