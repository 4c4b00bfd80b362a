package connector

import (
	"context"
	"errors"
	"fmt"

	"alertbridge/internal/models"
)

// ErrNoMapping is returned when a connector type does not accept inbound alerts.
var ErrNoMapping = errors.New("connector type does not accept inbound alerts")

// Engine runs the connector contract for every definition. It holds no
// per-connector state and is safe for concurrent use.
type Engine struct {
	prober     *Prober
	dispatcher *Dispatcher
}

func NewEngine(prober *Prober, dispatcher *Dispatcher) *Engine {
	if prober == nil {
		prober = NewProber(ProberOptions{})
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(DispatcherOptions{})
	}
	return &Engine{prober: prober, dispatcher: dispatcher}
}

// Connector is a validated configuration bound to the engine.
type Connector struct {
	cfg    ValidatedConfig
	engine *Engine
}

// Activate validates raw against def and returns a usable connector.
func (e *Engine) Activate(def *Definition, raw map[string]string) (*Connector, error) {
	cfg, err := Validate(def, raw)
	if err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, engine: e}, nil
}

func (c *Connector) Config() ValidatedConfig { return c.cfg }

func (c *Connector) Type() string { return c.cfg.Definition().Type }

func (c *Connector) Probe(ctx context.Context) models.ScopeResult {
	return c.engine.prober.Probe(ctx, c.cfg)
}

func (c *Connector) Normalize(raw *models.Attributes) (models.CanonicalAlert, error) {
	m := c.cfg.Definition().Mapping
	if m == nil {
		return models.CanonicalAlert{}, fmt.Errorf("%s: %w", c.Type(), ErrNoMapping)
	}
	return Normalize(raw, m), nil
}

func (c *Connector) Dispatch(ctx context.Context, req models.DispatchRequest) (models.DispatchResult, error) {
	return c.engine.dispatcher.Dispatch(ctx, c.cfg, req)
}

func (c *Connector) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	return c.engine.dispatcher.ListWorkflows(ctx, c.cfg)
}
