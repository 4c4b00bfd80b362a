package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	executor "alertbridge/internal/executor/http"
	"alertbridge/internal/models"
)

const (
	defaultDispatchTimeout = 30 * time.Second
	maxBodyExcerpt         = 512
)

// Dispatcher sends outbound actions to a vendor through either a configured
// webhook or the authenticated execute API.
type Dispatcher struct {
	client  *executor.Client
	timeout time.Duration
	logger  *slog.Logger
}

type DispatcherOptions struct {
	Client  *executor.Client
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{client: opts.Client, timeout: opts.Timeout, logger: opts.Logger}
	if d.client == nil {
		d.client = executor.NewClient()
	}
	if d.timeout <= 0 {
		d.timeout = defaultDispatchTimeout
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Route decides the dispatch path for req without performing I/O.
func Route(cfg ValidatedConfig, req models.DispatchRequest) (models.DispatchPath, string, error) {
	spec := cfg.Definition().Dispatch
	if spec == nil {
		return "", "", &DispatchError{
			Kind: MissingDispatchTarget,
			Err:  fmt.Errorf("connector type %q does not support dispatch", cfg.Definition().Type),
		}
	}
	if req.WorkflowID != "" {
		if spec.Execute == nil {
			return "", "", &DispatchError{
				Kind: MissingDispatchTarget,
				Err:  fmt.Errorf("connector type %q cannot execute workflows", cfg.Definition().Type),
			}
		}
		return models.PathAPI, req.WorkflowID, nil
	}
	if req.WebhookURL != "" {
		return models.PathWebhook, req.WebhookURL, nil
	}
	if spec.WebhookField != "" {
		if target := cfg.Get(spec.WebhookField); target != "" {
			return models.PathWebhook, target, nil
		}
	}
	return "", "", &DispatchError{Kind: MissingDispatchTarget}
}

// Dispatch performs exactly one outbound call. On failure the returned result
// carries Success=false and the status code when one was received, and the
// error is a *DispatchError. No retries are attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg ValidatedConfig, req models.DispatchRequest) (models.DispatchResult, error) {
	path, target, err := Route(cfg, req)
	if err != nil {
		return models.DispatchResult{Error: err.Error()}, err
	}

	payload := req.Payload.Clone()
	if req.Message != "" {
		payload.Set("message", models.String(req.Message))
	}

	var httpReq executor.Request
	if path == models.PathAPI {
		httpReq, err = d.apiRequest(cfg, target, payload)
	} else {
		httpReq, err = webhookRequest(target, req, payload)
	}
	if err != nil {
		return models.DispatchResult{Path: path, Error: err.Error()}, err
	}
	httpReq.Timeout = d.timeoutFor(cfg)

	logger := d.logger.With("type", cfg.Definition().Type, "path", path, "method", httpReq.Method)
	logger.Info("dispatching", "payload_keys", payload.Keys())

	resp, err := d.client.Do(ctx, httpReq)
	result := models.DispatchResult{Path: path}
	if resp != nil {
		result.StatusCode = resp.StatusCode
		result.Response, result.RawResponse = parseBody(resp.Body)
	}
	if err != nil {
		derr := classifyDispatch(err)
		result.Error = derr.Error()
		logger.Error("dispatch failed", "error", derr, "status_code", result.StatusCode)
		return result, derr
	}

	result.Success = true
	if path == models.PathAPI {
		result.ExecutionID = extractString(cfg.Definition().Dispatch.ExecutionIDPath, result.Response)
	}
	logger.Info("dispatch succeeded", "status_code", result.StatusCode, "execution_id", result.ExecutionID)
	return result, nil
}

// ListWorkflows enumerates the vendor resources that can be executed through
// the API path.
func (d *Dispatcher) ListWorkflows(ctx context.Context, cfg ValidatedConfig) ([]models.Workflow, error) {
	spec := cfg.Definition().Dispatch
	if spec == nil || spec.List == nil {
		return nil, &DispatchError{
			Kind: MissingDispatchTarget,
			Err:  fmt.Errorf("connector type %q cannot list workflows", cfg.Definition().Type),
		}
	}
	req, err := endpointRequest(cfg, spec.List, "", nil)
	if err != nil {
		return nil, err
	}
	req.Timeout = d.timeoutFor(cfg)

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, classifyDispatch(err)
	}
	doc, raw := parseBody(resp.Body)
	if doc.IsNull() && raw != "" {
		return nil, &DispatchError{Kind: TransportFailure, Err: errors.New("workflow list response is not JSON")}
	}

	found := doc.Interface()
	if spec.ListPath != "" {
		if found, err = jmespath.Search(spec.ListPath, found); err != nil {
			return nil, fmt.Errorf("evaluate list path %q: %w", spec.ListPath, err)
		}
	}
	items, _ := models.FromInterface(found).Items()

	workflows := make([]models.Workflow, 0, len(items))
	for _, item := range items {
		attrs, ok := item.Attributes()
		if !ok {
			continue
		}
		wf := models.Workflow{Raw: *attrs.Clone()}
		if v, ok := attrs.Get("id"); ok && !v.IsBlank() {
			wf.ID = v.Text()
		}
		if v, ok := attrs.Get("name"); ok {
			wf.Name, _ = v.Str()
		}
		if v, ok := attrs.Get("active"); ok {
			wf.Active, _ = v.Bool()
		}
		workflows = append(workflows, wf)
	}
	d.logger.Debug("listed workflows", "type", cfg.Definition().Type, "count", len(workflows))
	return workflows, nil
}

func (d *Dispatcher) timeoutFor(cfg ValidatedConfig) time.Duration {
	if t := cfg.Definition().Dispatch; t != nil && t.Timeout > 0 {
		return t.Timeout
	}
	return d.timeout
}

func (d *Dispatcher) apiRequest(cfg ValidatedConfig, id string, payload *models.Attributes) (executor.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return executor.Request{}, fmt.Errorf("encode payload: %w", err)
	}
	return endpointRequest(cfg, cfg.Definition().Dispatch.Execute, url.PathEscape(id), body)
}

func webhookRequest(target string, req models.DispatchRequest, payload *models.Attributes) (executor.Request, error) {
	method, err := normalizeMethod(req.Method, http.MethodPost)
	if err != nil {
		return executor.Request{}, err
	}

	header := make(map[string]string, len(req.Headers)+1)
	hasContentType := false
	for k, v := range req.Headers {
		header[k] = v
		if strings.EqualFold(k, "Content-Type") {
			hasContentType = true
		}
	}
	if !hasContentType {
		header["Content-Type"] = "application/json"
	}

	out := executor.Request{Method: method, URL: target, Header: header}
	if method == http.MethodGet {
		query := url.Values{}
		payload.Range(func(k string, v models.Value) bool {
			if !v.IsNull() {
				query.Set(k, v.Text())
			}
			return true
		})
		out.Query = query
		return out, nil
	}
	if out.Body, err = json.Marshal(payload); err != nil {
		return executor.Request{}, fmt.Errorf("encode payload: %w", err)
	}
	return out, nil
}

func classifyDispatch(err error) *DispatchError {
	var derr *DispatchError
	if errors.As(err, &derr) {
		return derr
	}
	var statusErr *executor.StatusError
	if errors.As(err, &statusErr) {
		return &DispatchError{
			Kind:       HTTPStatusFailure,
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Excerpt(maxBodyExcerpt),
			Err:        err,
		}
	}
	var transportErr *executor.TransportError
	if errors.As(err, &transportErr) && transportErr.Cancelled {
		return &DispatchError{Kind: Cancelled, Err: err}
	}
	return &DispatchError{Kind: TransportFailure, Err: err}
}

// parseBody decodes JSON and falls back to the raw text.
func parseBody(body []byte) (models.Value, string) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return models.Null(), ""
	}
	v, err := models.ParseValue(body)
	if err != nil {
		return models.Null(), string(body)
	}
	return v, ""
}

func extractString(expr string, doc models.Value) string {
	if expr == "" || doc.IsNull() {
		return ""
	}
	found, err := jmespath.Search(expr, doc.Interface())
	if err != nil || found == nil {
		return ""
	}
	v := models.FromInterface(found)
	if v.IsBlank() {
		return ""
	}
	return v.Text()
}
