package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	executor "alertbridge/internal/executor/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDoer struct{}

func (failingDoer) Do(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Post", URL: req.URL.String(), Err: errors.New("connection refused")}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://hooks.example.com", executor.RedactURL("https://hooks.example.com/webhook/abc?token=1"))
	assert.Equal(t, "<redacted>", executor.RedactURL("not a url"))
}

func TestClient_Do(t *testing.T) {
	var gotHeader, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Key")
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := executor.NewClient()
	resp, err := client.Do(context.Background(), executor.Request{
		Method: http.MethodGet,
		URL:    srv.URL + "/path?a=1",
		Query:  url.Values{"b": {"2"}},
		Header: map[string]string{"X-Key": "secret"},
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, "a=1&b=2", gotQuery)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	resp, err := executor.NewClient().Do(context.Background(), executor.Request{Method: http.MethodPost, URL: srv.URL})

	var statusErr *executor.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Len(t, statusErr.Excerpt(10), 10)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestClient_CustomAccept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := executor.NewClient().Do(context.Background(), executor.Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Accept: executor.Exactly(http.StatusNoContent),
	})

	var statusErr *executor.StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestClient_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer srv.Close()

	resp, err := executor.NewClient(executor.WithMaxResponseBytes(16)).
		Do(context.Background(), executor.Request{Method: http.MethodGet, URL: srv.URL})

	require.NoError(t, err)
	assert.Len(t, resp.Body, 16)
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("invalid url", func(t *testing.T) {
		_, err := executor.NewClient().Do(context.Background(), executor.Request{Method: http.MethodGet, URL: "not-a-url"})
		var te *executor.TransportError
		require.ErrorAs(t, err, &te)
		assert.False(t, te.Timeout)
		assert.False(t, te.Cancelled)
	})

	t.Run("error text hides path and query", func(t *testing.T) {
		doer := failingDoer{}
		_, err := executor.NewClient(executor.WithDoer(doer)).Do(context.Background(), executor.Request{
			Method: http.MethodPost,
			URL:    "https://hooks.example.com/webhook/secret-token?sig=abc",
		})
		var te *executor.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "POST https://hooks.example.com: connection refused", err.Error())
		assert.Equal(t, "https://hooks.example.com/webhook/secret-token?sig=abc", te.URL)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := executor.NewClient().Do(context.Background(), executor.Request{
			Method:  http.MethodGet,
			URL:     srv.URL,
			Timeout: 20 * time.Millisecond,
		})
		var te *executor.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Timeout)
		assert.False(t, te.Cancelled)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := executor.NewClient().Do(ctx, executor.Request{Method: http.MethodGet, URL: "http://127.0.0.1:1"})
		var te *executor.TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Cancelled)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
