package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"gorm.io/gorm"
)

// MockConnectorRepository - это in-memory реализация ConnectorRepository для тестов.
// Как и GORM, возвращает gorm.ErrRecordNotFound для отсутствующих записей.
type MockConnectorRepository struct {
	mu         sync.RWMutex
	connectors map[string]models.ConnectorInstance
}

// NewMockConnectorRepository создает новый экземпляр мок-репозитория.
func NewMockConnectorRepository() service.ConnectorRepository {
	return &MockConnectorRepository{connectors: make(map[string]models.ConnectorInstance)}
}

func (m *MockConnectorRepository) Create(ctx context.Context, instance *models.ConnectorInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connectors[instance.ID]; exists {
		return fmt.Errorf("connector with ID %s already exists", instance.ID)
	}
	for _, c := range m.connectors {
		if c.Name == instance.Name {
			return fmt.Errorf("connector with name %s already exists", instance.Name)
		}
	}
	now := time.Now()
	instance.CreatedAt, instance.UpdatedAt = now, now
	m.connectors[instance.ID] = *instance
	return nil
}

func (m *MockConnectorRepository) FindByID(ctx context.Context, id string) (*models.ConnectorInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.connectors[id]
	if !exists {
		return nil, fmt.Errorf("connector with ID %s: %w", id, gorm.ErrRecordNotFound)
	}
	return &c, nil
}

func (m *MockConnectorRepository) FindByName(ctx context.Context, name string) (*models.ConnectorInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.connectors {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("connector with name %s: %w", name, gorm.ErrRecordNotFound)
}

func (m *MockConnectorRepository) Update(ctx context.Context, instance *models.ConnectorInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connectors[instance.ID]; !exists {
		return fmt.Errorf("connector with ID %s: %w", instance.ID, gorm.ErrRecordNotFound)
	}
	instance.UpdatedAt = time.Now()
	m.connectors[instance.ID] = *instance
	return nil
}

func (m *MockConnectorRepository) List(ctx context.Context) ([]*models.ConnectorInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ConnectorInstance, 0, len(m.connectors))
	for _, c := range m.connectors {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockConnectorRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.connectors[id]; !exists {
		return fmt.Errorf("connector with ID %s: %w", id, gorm.ErrRecordNotFound)
	}
	delete(m.connectors, id)
	return nil
}
