package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	executor "alertbridge/internal/executor/http"
	"alertbridge/internal/models"
)

const defaultProbeTimeout = 10 * time.Second

// Prober checks configured credentials against the vendor control plane.
type Prober struct {
	client  *executor.Client
	timeout time.Duration
	logger  *slog.Logger
}

type ProberOptions struct {
	Client  *executor.Client
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewProber(opts ProberOptions) *Prober {
	p := &Prober{client: opts.Client, timeout: opts.Timeout, logger: opts.Logger}
	if p.client == nil {
		p.client = executor.NewClient()
	}
	if p.timeout <= 0 {
		p.timeout = defaultProbeTimeout
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	p.logger = p.logger.With("component", "scope_probe")
	return p
}

// Probe returns a fresh verdict for every declared scope. It performs at most
// one request and never fails: transport and status problems become per-scope
// diagnostics.
func (p *Prober) Probe(ctx context.Context, cfg ValidatedConfig) models.ScopeResult {
	def := cfg.Definition()
	result := make(models.ScopeResult, len(def.Scopes))

	ep := def.Probes[cfg.Mode()]
	if ep == nil {
		for _, s := range def.Scopes {
			result[s.Name] = models.Granted()
		}
		return result
	}

	req, err := endpointRequest(cfg, ep, "", nil)
	if err != nil {
		p.fillPrimary(def, result, models.Denied("connection error: %v", err))
		return result
	}
	req.Timeout = p.timeout
	req.Accept = acceptFor(ep)

	_, err = p.client.Do(ctx, req)
	outcome := classifyProbe(err)
	if !outcome.Granted {
		p.logger.Warn("scope probe failed",
			"type", def.Type, "mode", cfg.Mode(), "url", req.URL, "reason", outcome.Reason)
	}

	var statusErr *executor.StatusError
	var transportErr *executor.TransportError
	switch {
	case err == nil:
		for _, s := range def.Scopes {
			result[s.Name] = models.Granted()
		}
	case errors.As(err, &statusErr) && isAuthStatus(statusErr.StatusCode):
		for _, s := range def.Scopes {
			result[s.Name] = outcome
		}
	case errors.As(err, &transportErr) && transportErr.Cancelled:
		for _, s := range def.Scopes {
			result[s.Name] = outcome
		}
	default:
		p.fillPrimary(def, result, outcome)
	}
	return result
}

// fillPrimary records outcome on scopes without prerequisites and marks the
// dependents as not validated.
func (p *Prober) fillPrimary(def *Definition, result models.ScopeResult, outcome models.ScopeOutcome) {
	for _, s := range def.Scopes {
		if s.Requires == "" {
			result[s.Name] = outcome
		}
	}
	for _, s := range def.Scopes {
		if s.Requires == "" {
			continue
		}
		if prereq := result[s.Requires]; prereq.Granted {
			result[s.Name] = outcome
			continue
		}
		result[s.Name] = models.Denied("not validated: prerequisite scope %q failed", s.Requires)
	}
}

func classifyProbe(err error) models.ScopeOutcome {
	if err == nil {
		return models.Granted()
	}
	var statusErr *executor.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized:
			return models.Denied("authentication failed: invalid credentials (status 401)")
		case http.StatusForbidden:
			return models.Denied("authentication failed: access forbidden (status 403)")
		default:
			return models.Denied("unexpected status code %d", statusErr.StatusCode)
		}
	}
	var transportErr *executor.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Cancelled {
			return models.Denied("probe cancelled: %v", transportErr.Err)
		}
		if transportErr.Timeout {
			return models.Denied("connection error: timed out: %v", transportErr.Err)
		}
		return models.Denied("connection error: %v", transportErr.Err)
	}
	return models.Denied("connection error: %v", err)
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func acceptFor(ep *Endpoint) func(int) bool {
	if ep.OKStatus > 0 {
		return executor.Exactly(ep.OKStatus)
	}
	return executor.Is2xx
}

// endpointRequest builds an authenticated request for ep. id replaces the
// "{id}" placeholder in the path.
func endpointRequest(cfg ValidatedConfig, ep *Endpoint, id string, body []byte) (executor.Request, error) {
	base := cfg.Get(ep.BaseURLField)
	if base == "" {
		return executor.Request{}, &DispatchError{
			Kind: MissingCredential,
			Err:  fmt.Errorf("field %q is not configured", ep.BaseURLField),
		}
	}
	path := strings.ReplaceAll(ep.Path, "{id}", id)
	method, err := normalizeMethod(ep.Method, http.MethodGet)
	if err != nil {
		return executor.Request{}, err
	}

	header := map[string]string{"Accept": "application/json"}
	if body != nil {
		header["Content-Type"] = "application/json"
	}
	if ep.Auth != nil {
		cred := cfg.Get(ep.Auth.Field)
		if cred == "" {
			return executor.Request{}, &DispatchError{
				Kind: MissingCredential,
				Err:  fmt.Errorf("field %q is not configured", ep.Auth.Field),
			}
		}
		if ep.Auth.Scheme != "" {
			cred = ep.Auth.Scheme + " " + cred
		}
		header[ep.Auth.Header] = cred
	}

	return executor.Request{
		Method: method,
		URL:    strings.TrimRight(base, "/") + path,
		Header: header,
		Body:   body,
	}, nil
}

func normalizeMethod(method, fallback string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return fallback, nil
	}
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return m, nil
	}
	return "", &DispatchError{Kind: UnsupportedMethod, Method: method}
}
