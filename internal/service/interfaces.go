package service

import (
	"context"
	"time"

	"alertbridge/internal/models"
)

// ConnectorRepository определяет интерфейс для хранения активированных коннекторов.
type ConnectorRepository interface {
	Create(ctx context.Context, instance *models.ConnectorInstance) error
	FindByID(ctx context.Context, id string) (*models.ConnectorInstance, error)
	FindByName(ctx context.Context, name string) (*models.ConnectorInstance, error)
	Update(ctx context.Context, instance *models.ConnectorInstance) error
	List(ctx context.Context) ([]*models.ConnectorInstance, error)
	Delete(ctx context.Context, id string) error
}

// AlertRepository хранит канонические алерты, дедуплицированные по fingerprint.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.AlertRecord) error
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.AlertRecord, error)
	Update(ctx context.Context, alert *models.AlertRecord) error
	List(ctx context.Context, limit int, offset int) ([]*models.AlertRecord, error)
}

// DispatchRepository хранит журнал аудита исходящих вызовов.
type DispatchRepository interface {
	Create(ctx context.Context, record *models.DispatchRecord) error
	ListByConnector(ctx context.Context, connectorID string, limit int) ([]*models.DispatchRecord, error)
}

// Recorder receives operational events for metrics.
type Recorder interface {
	AlertIngested(connectorType string, severity models.Severity, duplicate bool)
	Dispatched(connectorType string, path models.DispatchPath, outcome string, elapsed time.Duration)
	Probed(connectorType string, scope string, granted bool)
}

type noopRecorder struct{}

func (noopRecorder) AlertIngested(string, models.Severity, bool) {}

func (noopRecorder) Dispatched(string, models.DispatchPath, string, time.Duration) {}

func (noopRecorder) Probed(string, string, bool) {}
