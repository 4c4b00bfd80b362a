package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertbridge/internal/connector"
	executor "alertbridge/internal/executor/http"
	"alertbridge/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownType    = errors.New("unknown connector type")
	ErrNameTaken      = errors.New("connector name already in use")
	ErrDisabled       = errors.New("connector is disabled")
	ErrInvalidPayload = errors.New("invalid alert payload")
)

const defaultProbeConcurrency = 4

// ConnectorService предоставляет бизнес-логику активации коннекторов,
// приёма алертов и исходящих вызовов.
type ConnectorService struct {
	registry         *connector.Registry
	engine           *connector.Engine
	connectors       ConnectorRepository
	alerts           AlertRepository
	dispatches       DispatchRepository
	recorder         Recorder
	notificationChan chan<- *models.AlertRecord // Канал для отправки уведомлений
	probeConcurrency int
	logger           *slog.Logger
	now              func() time.Time

	upsertMu sync.Mutex // find-then-write of alert records
}

type Options struct {
	Registry         *connector.Registry
	Engine           *connector.Engine
	Connectors       ConnectorRepository
	Alerts           AlertRepository
	Dispatches       DispatchRepository
	Recorder         Recorder
	Notifications    chan<- *models.AlertRecord
	ProbeConcurrency int
	Logger           *slog.Logger
}

// NewConnectorService создает новый экземпляр ConnectorService.
func NewConnectorService(opts Options) *ConnectorService {
	s := &ConnectorService{
		registry:         opts.Registry,
		engine:           opts.Engine,
		connectors:       opts.Connectors,
		alerts:           opts.Alerts,
		dispatches:       opts.Dispatches,
		recorder:         opts.Recorder,
		notificationChan: opts.Notifications,
		probeConcurrency: opts.ProbeConcurrency,
		logger:           opts.Logger,
		now:              time.Now,
	}
	if s.engine == nil {
		s.engine = connector.NewEngine(nil, nil)
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	if s.probeConcurrency <= 0 {
		s.probeConcurrency = defaultProbeConcurrency
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "connector_service")
	return s
}

// ActivateRequest carries operator-supplied credentials for a new connector.
type ActivateRequest struct {
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Credentials map[string]string `json:"credentials"`
}

// ListTypes returns the registered connector definitions.
func (s *ConnectorService) ListTypes() []*connector.Definition {
	return s.registry.List()
}

// Activate validates the credentials, probes scopes and stores the connector.
// A *connector.ConfigError is returned unchanged.
func (s *ConnectorService) Activate(ctx context.Context, req ActivateRequest) (*models.ConnectorInstance, error) {
	def, ok := s.registry.Get(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = def.Type + "-" + uuid.NewString()[:8]
	}
	if _, err := s.connectors.FindByName(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conn, err := s.engine.Activate(def, req.Credentials)
	if err != nil {
		return nil, err
	}

	scopes := conn.Probe(ctx)
	probedAt := s.now()
	instance := &models.ConnectorInstance{
		ID:          uuid.NewString(),
		Type:        def.Type,
		Name:        name,
		Credentials: models.JSONBMap(conn.Config().Values()),
		AuthMode:    conn.Config().Mode(),
		State:       stateFor(def, scopes),
		Scopes:      scopes,
		ProbedAt:    &probedAt,
	}
	if err := s.connectors.Create(ctx, instance); err != nil {
		return nil, err
	}
	s.recordProbe(def.Type, scopes)

	s.logger.Info("connector activated",
		"id", instance.ID, "type", instance.Type, "name", instance.Name,
		"mode", instance.AuthMode, "state", instance.State)
	return instance, nil
}

// Get находит коннектор по ID.
func (s *ConnectorService) Get(ctx context.Context, id string) (*models.ConnectorInstance, error) {
	instance, err := s.connectors.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "connector %q", id)
	}
	return instance, nil
}

// List возвращает все активированные коннекторы.
func (s *ConnectorService) List(ctx context.Context) ([]*models.ConnectorInstance, error) {
	return s.connectors.List(ctx)
}

// Delete removes a connector. Its alerts and audit records are kept.
func (s *ConnectorService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.connectors.Delete(ctx, id)
}

// SetEnabled disables or re-enables a connector. Re-enabling probes again.
func (s *ConnectorService) SetEnabled(ctx context.Context, id string, enabled bool) (*models.ConnectorInstance, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !enabled {
		instance.State = models.ConnectorDisabled
		if err := s.connectors.Update(ctx, instance); err != nil {
			return nil, err
		}
		return instance, nil
	}
	instance.State = models.ConnectorActive
	if err := s.connectors.Update(ctx, instance); err != nil {
		return nil, err
	}
	if _, err := s.Probe(ctx, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Probe runs a fresh scope check and stores the snapshot for display.
func (s *ConnectorService) Probe(ctx context.Context, id string) (models.ScopeResult, error) {
	instance, conn, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}

	scopes := conn.Probe(ctx)
	probedAt := s.now()
	instance.Scopes = scopes
	instance.ProbedAt = &probedAt
	if instance.State != models.ConnectorDisabled {
		instance.State = stateFor(conn.Config().Definition(), scopes)
	}
	if err := s.connectors.Update(ctx, instance); err != nil {
		return scopes, err
	}
	s.recordProbe(instance.Type, scopes)
	return scopes, nil
}

// ProbeAll probes every enabled connector with bounded concurrency. Failures
// of individual connectors are logged and skipped.
func (s *ConnectorService) ProbeAll(ctx context.Context) (map[string]models.ScopeResult, error) {
	instances, err := s.connectors.List(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]models.ScopeResult, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.probeConcurrency)
	for _, instance := range instances {
		if instance.State == models.ConnectorDisabled {
			continue
		}
		id := instance.ID
		g.Go(func() error {
			scopes, err := s.Probe(gctx, id)
			if err != nil {
				s.logger.Warn("probe failed", "id", id, "error", err)
				return nil
			}
			mu.Lock()
			results[id] = scopes
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ingest normalizes an inbound webhook body and stores the resulting alerts.
// The body may be one alert object, an array of them, or {"alerts": [...]}.
func (s *ConnectorService) Ingest(ctx context.Context, id string, body []byte) ([]*models.AlertRecord, error) {
	instance, conn, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.State == models.ConnectorDisabled {
		return nil, ErrDisabled
	}

	events, err := splitEvents(body)
	if err != nil {
		return nil, err
	}

	records := make([]*models.AlertRecord, 0, len(events))
	for _, event := range events {
		alert, err := conn.Normalize(event)
		if err != nil {
			return records, err
		}
		record, notify, err := s.upsertAlert(ctx, instance, alert)
		if err != nil {
			return records, err
		}
		records = append(records, record)
		if notify {
			s.notify(record)
		}
	}
	return records, nil
}

func (s *ConnectorService) upsertAlert(ctx context.Context, instance *models.ConnectorInstance, alert models.CanonicalAlert) (*models.AlertRecord, bool, error) {
	s.upsertMu.Lock()
	defer s.upsertMu.Unlock()

	seenAt := s.now()
	existing, err := s.alerts.FindByFingerprint(ctx, alert.Fingerprint)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if err != nil {
		record := &models.AlertRecord{ConnectorID: instance.ID, FirstSeen: seenAt, Occurrences: 1}
		record.Apply(alert, seenAt)
		err := s.alerts.Create(ctx, record)
		if err == nil {
			s.recorder.AlertIngested(instance.Type, alert.Severity, false)
			return record, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		// запись создана параллельно другим процессом
		if existing, err = s.alerts.FindByFingerprint(ctx, alert.Fingerprint); err != nil {
			return nil, false, err
		}
	}

	statusChanged := existing.Status != alert.Status
	existing.Apply(alert, seenAt)
	existing.ConnectorID = instance.ID
	existing.Occurrences++
	if err := s.alerts.Update(ctx, existing); err != nil {
		return nil, false, err
	}
	s.recorder.AlertIngested(instance.Type, alert.Severity, true)
	return existing, statusChanged, nil
}

func (s *ConnectorService) notify(record *models.AlertRecord) {
	if s.notificationChan == nil {
		return
	}
	snapshot := *record
	select {
	case s.notificationChan <- &snapshot:
	default:
		s.logger.Warn("notification queue full, dropping alert", "fingerprint", record.Fingerprint)
	}
}

// Dispatch sends an outbound action and records an audit entry. Dispatch
// failures are returned as *connector.DispatchError and are never retried.
func (s *ConnectorService) Dispatch(ctx context.Context, id string, req models.DispatchRequest) (models.DispatchResult, error) {
	instance, conn, err := s.open(ctx, id)
	if err != nil {
		return models.DispatchResult{Error: err.Error()}, err
	}
	if instance.State == models.ConnectorDisabled {
		return models.DispatchResult{Error: ErrDisabled.Error()}, ErrDisabled
	}

	start := s.now()
	result, dispatchErr := conn.Dispatch(ctx, req)
	elapsed := s.now().Sub(start)

	record := &models.DispatchRecord{
		RequestID:   uuid.NewString(),
		ConnectorID: instance.ID,
		Path:        result.Path,
		Target:      auditTarget(conn.Config(), req),
		Method:      auditMethod(conn.Config(), result.Path, req.Method),
		Success:     result.Success,
		StatusCode:  result.StatusCode,
		ExecutionID: result.ExecutionID,
		Error:       result.Error,
		Timestamp:   start,
	}

	outcome := "success"
	var derr *connector.DispatchError
	if errors.As(dispatchErr, &derr) {
		outcome = string(derr.Kind)
	}
	s.recorder.Dispatched(instance.Type, result.Path, outcome, elapsed)

	if err := s.dispatches.Create(ctx, record); err != nil {
		s.logger.Error("failed to store dispatch audit record", "id", instance.ID, "error", err)
		if dispatchErr == nil {
			return result, err // Возвращаем результат действия, но и ошибку сохранения
		}
	}
	return result, dispatchErr
}

// ListWorkflows lists vendor workflows that can be dispatched by ID.
func (s *ConnectorService) ListWorkflows(ctx context.Context, id string) ([]models.Workflow, error) {
	_, conn, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}
	return conn.ListWorkflows(ctx)
}

// ListDispatches returns the most recent audit records of a connector.
func (s *ConnectorService) ListDispatches(ctx context.Context, id string, limit int) ([]*models.DispatchRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.dispatches.ListByConnector(ctx, id, limit)
}

// GetAlert находит алерт по fingerprint.
func (s *ConnectorService) GetAlert(ctx context.Context, fingerprint string) (*models.AlertRecord, error) {
	record, err := s.alerts.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, notFound(err, "alert %q", fingerprint)
	}
	return record, nil
}

// ListAlerts возвращает алерты с пагинацией, последние первыми.
func (s *ConnectorService) ListAlerts(ctx context.Context, limit int, offset int) ([]*models.AlertRecord, error) {
	return s.alerts.List(ctx, limit, offset)
}

// open loads a stored connector and rebuilds its validated configuration.
func (s *ConnectorService) open(ctx context.Context, id string) (*models.ConnectorInstance, *connector.Connector, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	def, ok := s.registry.Get(instance.Type)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownType, instance.Type)
	}
	conn, err := s.engine.Activate(def, instance.Credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("stored configuration of %q is no longer valid: %w", instance.Name, err)
	}
	return instance, conn, nil
}

func (s *ConnectorService) recordProbe(connectorType string, scopes models.ScopeResult) {
	for _, name := range scopes.Names() {
		s.recorder.Probed(connectorType, name, scopes[name].Granted)
	}
}

func stateFor(def *connector.Definition, scopes models.ScopeResult) models.ConnectorState {
	if scopes.AllGranted(def.MandatoryScopes()...) {
		return models.ConnectorActive
	}
	return models.ConnectorDegraded
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return err
}

func splitEvents(body []byte) ([]*models.Attributes, error) {
	doc, err := models.ParseValue(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	items := []models.Value{doc}
	if attrs, ok := doc.Attributes(); ok {
		if wrapped, ok := attrs.Get("alerts"); ok {
			if list, ok := wrapped.Items(); ok {
				items = list
			}
		}
	} else if list, ok := doc.Items(); ok {
		items = list
	}

	events := make([]*models.Attributes, 0, len(items))
	for i, item := range items {
		attrs, ok := item.Attributes()
		if !ok {
			return nil, fmt.Errorf("%w: item %d is a %s, not an object", ErrInvalidPayload, i, item.Kind())
		}
		events = append(events, attrs)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no alerts in payload", ErrInvalidPayload)
	}
	return events, nil
}

// auditTarget never stores webhook paths or queries; the URL itself is the
// credential.
func auditTarget(cfg connector.ValidatedConfig, req models.DispatchRequest) string {
	path, target, err := connector.Route(cfg, req)
	if err != nil {
		return ""
	}
	if path == models.PathAPI {
		return target
	}
	return executor.RedactURL(target)
}

func auditMethod(cfg connector.ValidatedConfig, path models.DispatchPath, method string) string {
	if path == models.PathAPI {
		if spec := cfg.Definition().Dispatch; spec != nil && spec.Execute != nil {
			return strings.ToUpper(spec.Execute.Method)
		}
	}
	if method == "" {
		return "POST"
	}
	return strings.ToUpper(method)
}
