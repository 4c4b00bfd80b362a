package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alertbridge/internal/connector"
	"alertbridge/internal/connector/vendors"
	executor "alertbridge/internal/executor/http"
	"alertbridge/internal/executor/mock"
	"alertbridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func n8nConfig(t *testing.T, raw map[string]string) connector.ValidatedConfig {
	t.Helper()
	cfg, err := connector.Validate(vendors.N8N(), raw)
	require.NoError(t, err)
	return cfg
}

func mockDispatcher(doer *mock.Doer) *connector.Dispatcher {
	return connector.NewDispatcher(connector.DispatcherOptions{
		Client: executor.NewClient(executor.WithDoer(doer)),
	})
}

func requireDispatchError(t *testing.T, err error, kind connector.DispatchErrorKind) *connector.DispatchError {
	t.Helper()
	var derr *connector.DispatchError
	require.True(t, errors.As(err, &derr), "expected *DispatchError, got %v", err)
	assert.Equal(t, kind, derr.Kind)
	return derr
}

func payload(t *testing.T, raw string) models.Attributes {
	t.Helper()
	return *parse(t, raw)
}

func TestRoute(t *testing.T) {
	full := n8nConfig(t, map[string]string{
		"webhook_url": "https://n8n.example.com/webhook/default",
		"n8n_url":     "https://n8n.example.com",
		"api_key":     "k",
	})
	apiOnly := n8nConfig(t, map[string]string{"n8n_url": "https://n8n.example.com", "api_key": "k"})

	tests := []struct {
		name       string
		cfg        connector.ValidatedConfig
		req        models.DispatchRequest
		wantPath   models.DispatchPath
		wantTarget string
	}{
		{
			name:       "workflow id wins over configured webhook",
			cfg:        full,
			req:        models.DispatchRequest{WorkflowID: "42"},
			wantPath:   models.PathAPI,
			wantTarget: "42",
		},
		{
			name:       "workflow id wins over request webhook",
			cfg:        full,
			req:        models.DispatchRequest{WorkflowID: "42", WebhookURL: "https://other.example.com/hook"},
			wantPath:   models.PathAPI,
			wantTarget: "42",
		},
		{
			name:       "request webhook",
			cfg:        apiOnly,
			req:        models.DispatchRequest{WebhookURL: "https://other.example.com/hook"},
			wantPath:   models.PathWebhook,
			wantTarget: "https://other.example.com/hook",
		},
		{
			name:       "configured webhook",
			cfg:        full,
			req:        models.DispatchRequest{},
			wantPath:   models.PathWebhook,
			wantTarget: "https://n8n.example.com/webhook/default",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, target, err := connector.Route(tt.cfg, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantTarget, target)
		})
	}

	t.Run("no target", func(t *testing.T) {
		_, _, err := connector.Route(apiOnly, models.DispatchRequest{})
		requireDispatchError(t, err, connector.MissingDispatchTarget)
	})

	t.Run("connector without dispatch", func(t *testing.T) {
		cfg, err := connector.Validate(vendors.Alkami(), map[string]string{"api_key": "k"})
		require.NoError(t, err)
		_, _, err = connector.Route(cfg, models.DispatchRequest{WebhookURL: "https://x.example.com"})
		requireDispatchError(t, err, connector.MissingDispatchTarget)
	})
}

func TestDispatch_WebhookPost(t *testing.T) {
	var gotBody map[string]any
	var gotContentType, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Trace")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"accepted":true}`)
	}))
	defer srv.Close()

	d := connector.NewDispatcher(connector.DispatcherOptions{})
	cfg := n8nConfig(t, map[string]string{"webhook_url": srv.URL + "/webhook/abc"})

	result, err := d.Dispatch(context.Background(), cfg, models.DispatchRequest{
		Message: "Test message",
		Payload: payload(t, `{"alert":"Test alert","severity":"high"}`),
		Headers: map[string]string{"X-Trace": "t-1"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.PathWebhook, result.Path)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, `{"accepted":true}`, result.Response.Text())
	assert.Empty(t, result.ExecutionID)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "t-1", gotCustom)
	assert.Equal(t, map[string]any{"alert": "Test alert", "severity": "high", "message": "Test message"}, gotBody)
}

func TestDispatch_WebhookGetUsesQuery(t *testing.T) {
	doer := mock.NewDoer()
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc?token=1"})

	result, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{
		Method:  "get",
		Payload: payload(t, `{"count":3,"flag":true,"skip":null,"name":"x y"}`),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	reqs := doer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	q := reqs[0].URL.Query()
	assert.Equal(t, "1", q.Get("token"))
	assert.Equal(t, "3", q.Get("count"))
	assert.Equal(t, "true", q.Get("flag"))
	assert.Equal(t, "x y", q.Get("name"))
	assert.False(t, q.Has("skip"))
	assert.Empty(t, doer.Body(0))
}

func TestDispatch_ContentTypeOverride(t *testing.T) {
	doer := mock.NewDoer()
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})

	_, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{
		Method:  http.MethodPut,
		Headers: map[string]string{"content-type": "application/vnd.custom+json"},
	})
	require.NoError(t, err)

	reqs := doer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].Method)
	assert.Equal(t, []string{"application/vnd.custom+json"}, reqs[0].Header.Values("Content-Type"))
	assert.JSONEq(t, `{}`, string(doer.Body(0)))
}

func TestDispatch_UnsupportedMethodRejectedBeforeIO(t *testing.T) {
	doer := mock.NewDoer()
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})

	result, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{Method: "PATCH"})

	derr := requireDispatchError(t, err, connector.UnsupportedMethod)
	assert.Equal(t, "PATCH", derr.Method)
	assert.False(t, result.Success)
	assert.Empty(t, doer.Requests())
}

func TestDispatch_HTTPStatusFailure(t *testing.T) {
	long := strings.Repeat("x", 2048)
	doer := mock.NewDoer(
		mock.Reply{Status: http.StatusUnauthorized, Body: `{"message":"unauthorized"}`},
		mock.Reply{Status: http.StatusBadGateway, Body: long, Header: http.Header{"Content-Type": {"text/plain"}}},
	)
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})
	d := mockDispatcher(doer)

	result, err := d.Dispatch(context.Background(), cfg, models.DispatchRequest{})
	derr := requireDispatchError(t, err, connector.HTTPStatusFailure)
	assert.Equal(t, http.StatusUnauthorized, derr.StatusCode)
	assert.Equal(t, `{"message":"unauthorized"}`, derr.Body)
	assert.False(t, derr.Temporary())
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.NotEmpty(t, result.Error)

	result, err = d.Dispatch(context.Background(), cfg, models.DispatchRequest{})
	derr = requireDispatchError(t, err, connector.HTTPStatusFailure)
	assert.Len(t, derr.Body, 512)
	assert.True(t, derr.Temporary())
	assert.Equal(t, long, result.RawResponse)
	assert.Len(t, doer.Requests(), 2)
}

func TestDispatch_TransportFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		d := connector.NewDispatcher(connector.DispatcherOptions{Timeout: 50 * time.Millisecond})
		cfg := n8nConfig(t, map[string]string{"webhook_url": srv.URL})

		result, err := d.Dispatch(context.Background(), cfg, models.DispatchRequest{})
		requireDispatchError(t, err, connector.TransportFailure)
		assert.Zero(t, result.StatusCode)
		assert.False(t, result.Success)
	})

	t.Run("connection refused", func(t *testing.T) {
		doer := mock.NewDoer()
		doer.FailNextCall = true
		cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})

		result, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{})
		derr := requireDispatchError(t, err, connector.TransportFailure)
		assert.Contains(t, derr.Error(), "connection refused")
		assert.NotContains(t, derr.Error(), "/webhook/abc")
		assert.True(t, derr.Temporary())
		assert.Zero(t, result.StatusCode)
	})

	t.Run("cancelled", func(t *testing.T) {
		doer := mock.NewDoer()
		cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := mockDispatcher(doer).Dispatch(ctx, cfg, models.DispatchRequest{})
		derr := requireDispatchError(t, err, connector.Cancelled)
		assert.False(t, derr.Temporary())
		assert.False(t, result.Success)
	})
}

func TestDispatch_APIExecute(t *testing.T) {
	var gotKey, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-N8N-API-KEY")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"data":{"id":1234,"finished":false}}`)
	}))
	defer srv.Close()

	cfg := n8nConfig(t, map[string]string{
		"webhook_url": srv.URL + "/webhook/ignored",
		"n8n_url":     srv.URL,
		"api_key":     "api-secret",
	})
	d := connector.NewDispatcher(connector.DispatcherOptions{})

	result, err := d.Dispatch(context.Background(), cfg, models.DispatchRequest{
		WorkflowID: "wf-1",
		Payload:    payload(t, `{"ticket":"T-9"}`),
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.PathAPI, result.Path)
	assert.Equal(t, "1234", result.ExecutionID)
	assert.Equal(t, "api-secret", gotKey)
	assert.Equal(t, "/api/v1/workflows/wf-1/execute", gotPath)
	assert.Equal(t, map[string]any{"ticket": "T-9"}, gotBody)
}

func TestDispatch_APIMissingCredential(t *testing.T) {
	doer := mock.NewDoer()
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})

	_, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{WorkflowID: "1"})
	requireDispatchError(t, err, connector.MissingCredential)
	assert.Empty(t, doer.Requests())
}

func TestDispatch_RawTextFallback(t *testing.T) {
	doer := mock.NewDoer(mock.Reply{Status: http.StatusOK, Body: "Workflow was started", Header: http.Header{"Content-Type": {"text/plain"}}})
	cfg := n8nConfig(t, map[string]string{"n8n_url": "https://n8n.example.com", "api_key": "k"})

	result, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, models.DispatchRequest{WorkflowID: "9"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Response.IsNull())
	assert.Equal(t, "Workflow was started", result.RawResponse)
	assert.Empty(t, result.ExecutionID)
}

func TestDispatch_DoesNotMutatePayload(t *testing.T) {
	doer := mock.NewDoer()
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})
	req := models.DispatchRequest{Message: "hi", Payload: payload(t, `{"a":1}`)}

	_, err := mockDispatcher(doer).Dispatch(context.Background(), cfg, req)
	require.NoError(t, err)
	assert.False(t, req.Payload.Has("message"))
	assert.JSONEq(t, `{"a":1,"message":"hi"}`, string(doer.Body(0)))
}

func TestListWorkflows(t *testing.T) {
	doer := mock.NewDoer(mock.Reply{
		Status: http.StatusOK,
		Body:   `{"data":[{"id":"1","name":"Escalate","active":true},{"id":2,"name":"Notify","active":false},"junk"]}`,
	})
	cfg := n8nConfig(t, map[string]string{"n8n_url": "https://n8n.example.com/", "api_key": "k"})

	workflows, err := mockDispatcher(doer).ListWorkflows(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "1", workflows[0].ID)
	assert.Equal(t, "Escalate", workflows[0].Name)
	assert.True(t, workflows[0].Active)
	assert.Equal(t, "2", workflows[1].ID)
	assert.False(t, workflows[1].Active)

	require.Len(t, doer.Requests(), 1)
	assert.Equal(t, "https://n8n.example.com/api/v1/workflows", doer.Requests()[0].URL.String())
}

func TestListWorkflows_RequiresAPIMode(t *testing.T) {
	cfg := n8nConfig(t, map[string]string{"webhook_url": "https://n8n.example.com/webhook/abc"})
	_, err := mockDispatcher(mock.NewDoer()).ListWorkflows(context.Background(), cfg)
	requireDispatchError(t, err, connector.MissingCredential)
}
