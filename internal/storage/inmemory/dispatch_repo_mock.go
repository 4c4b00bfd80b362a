package inmemory

import (
	"context"
	"sort"
	"sync"

	"alertbridge/internal/models"
	"alertbridge/internal/service"
)

// MockDispatchRepository - это in-memory журнал аудита для тестов.
type MockDispatchRepository struct {
	mu      sync.RWMutex
	records []models.DispatchRecord
}

func NewMockDispatchRepository() *MockDispatchRepository {
	return &MockDispatchRepository{}
}

var _ service.DispatchRepository = (*MockDispatchRepository)(nil)

func (m *MockDispatchRepository) Create(ctx context.Context, record *models.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = uint(len(m.records) + 1)
	m.records = append(m.records, *record)
	return nil
}

func (m *MockDispatchRepository) ListByConnector(ctx context.Context, connectorID string, limit int) ([]*models.DispatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.DispatchRecord
	for _, r := range m.records {
		if r.ConnectorID == connectorID {
			r := r
			out = append(out, &r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, limit, 0), nil
}

// All возвращает все записи в порядке создания.
func (m *MockDispatchRepository) All() []models.DispatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.DispatchRecord(nil), m.records...)
}
