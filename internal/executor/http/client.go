package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 1 << 20
)

// Doer is the part of *http.Client the executor needs. It must be safe for
// concurrent use; one Client is shared by every connector instance.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes a single outbound call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Header  map[string]string
	Body    []byte
	Timeout time.Duration
	// Accept decides which status codes count as success. Nil accepts 2xx.
	Accept func(status int) bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportError is a failure below HTTP: DNS, refused connection, timeout,
// cancellation. No status code is available. Error() shows only the scheme
// and host of URL; webhook paths and queries carry credentials.
type TransportError struct {
	Method    string
	URL       string
	Err       error
	Timeout   bool
	Cancelled bool
}

func (e *TransportError) Error() string {
	switch {
	case e.Cancelled:
		return fmt.Sprintf("%s %s: cancelled: %v", e.Method, RedactURL(e.URL), e.Err)
	case e.Timeout:
		return fmt.Sprintf("%s %s: timed out: %v", e.Method, RedactURL(e.URL), e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, RedactURL(e.URL), e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RedactURL reduces raw to scheme://host.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	return u.Scheme + "://" + u.Host
}

// StatusError is a completed HTTP exchange whose status was not accepted.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// Excerpt returns at most n bytes of the response body.
func (e *StatusError) Excerpt(n int) string {
	if len(e.Body) <= n {
		return string(e.Body)
	}
	return string(e.Body[:n])
}

// Client executes vendor HTTP calls and classifies their failures.
type Client struct {
	doer     Doer
	maxBytes int64
	timeout  time.Duration
}

type Option func(*Client)

// WithDoer replaces the underlying HTTP client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithDefaultTimeout sets the bound used when a Request carries none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		doer:     &http.Client{},
		maxBytes: defaultMaxResponseBytes,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs req. It returns *TransportError when no response was obtained and
// *StatusError (together with the response) when the status is not accepted.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL, Err: err}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, target, body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: unwrapURLError(err)}
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, req.Method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, classify(ctx, req.Method, target, err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	accept := req.Accept
	if accept == nil {
		accept = Is2xx
	}
	if !accept(resp.StatusCode) {
		return out, &StatusError{StatusCode: resp.StatusCode, Body: data}
	}
	return out, nil
}

// Is2xx accepts any successful status.
func Is2xx(status int) bool { return status >= 200 && status < 300 }

// Exactly accepts only the given status.
func Exactly(status int) func(int) bool {
	return func(s int) bool { return s == status }
}

func classify(parent context.Context, method, target string, err error) *TransportError {
	te := &TransportError{Method: method, URL: target, Err: unwrapURLError(err)}
	if errors.Is(parent.Err(), context.Canceled) {
		te.Cancelled = true
		return te
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		te.Timeout = true
	}
	return te
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}

func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		// *url.Error repeats the whole URL
		return "", unwrapURLError(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("invalid URL: scheme and host are required")
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
