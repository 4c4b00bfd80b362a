package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"gorm.io/gorm"
)

// MockAlertRepository - это in-memory реализация AlertRepository для тестов.
type MockAlertRepository struct {
	mu     sync.RWMutex
	alerts map[uint]models.AlertRecord
	nextID uint
}

func NewMockAlertRepository() service.AlertRepository {
	return &MockAlertRepository{alerts: make(map[uint]models.AlertRecord), nextID: 1}
}

func (m *MockAlertRepository) Create(ctx context.Context, alert *models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.alerts {
		if a.Fingerprint == alert.Fingerprint {
			return fmt.Errorf("alert with fingerprint %s: %w", alert.Fingerprint, gorm.ErrDuplicatedKey)
		}
	}
	alert.ID = m.nextID
	m.alerts[alert.ID] = *alert
	m.nextID++
	return nil
}

func (m *MockAlertRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*models.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.alerts {
		if a.Fingerprint == fingerprint {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("alert with fingerprint %s: %w", fingerprint, gorm.ErrRecordNotFound)
}

func (m *MockAlertRepository) Update(ctx context.Context, alert *models.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.alerts[alert.ID]; !exists {
		return fmt.Errorf("alert with ID %d: %w", alert.ID, gorm.ErrRecordNotFound)
	}
	m.alerts[alert.ID] = *alert
	return nil
}

func (m *MockAlertRepository) List(ctx context.Context, limit int, offset int) ([]*models.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AlertRecord, 0, len(m.alerts))
	for _, a := range m.alerts {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
