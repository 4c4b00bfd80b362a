package mock

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
)

// Reply is a canned response served by Doer.
type Reply struct {
	Status int
	Body   string
	Header http.Header
}

// Doer имитирует HTTP-клиент исполнителя: отдаёт заранее заданные ответы
// и запоминает полученные запросы.
type Doer struct {
	mu       sync.Mutex
	replies  []Reply
	fallback Reply
	requests []*http.Request
	bodies   [][]byte

	// FailNextCall используется для тестирования сценариев с ошибками.
	FailNextCall bool
}

// NewDoer creates a Doer that answers 200 with an empty JSON object unless
// replies are queued.
func NewDoer(replies ...Reply) *Doer {
	return &Doer{
		replies:  replies,
		fallback: Reply{Status: http.StatusOK, Body: "{}"},
	}
}

// Queue appends replies served in order before the fallback.
func (d *Doer) Queue(replies ...Reply) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies = append(d.replies, replies...)
}

// Do implements the executor Doer interface.
func (d *Doer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	d.requests = append(d.requests, req)
	d.bodies = append(d.bodies, body)

	if d.FailNextCall {
		d.FailNextCall = false // Сбрасываем флаг после использования
		return nil, errors.New("mock executor: connection refused")
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	reply := d.fallback
	if len(d.replies) > 0 {
		reply = d.replies[0]
		d.replies = d.replies[1:]
	}
	header := reply.Header
	if header == nil {
		header = http.Header{"Content-Type": []string{"application/json"}}
	}
	return &http.Response{
		StatusCode: reply.Status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(reply.Body)),
		Request:    req,
	}, nil
}

// Requests returns the requests received so far.
func (d *Doer) Requests() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*http.Request(nil), d.requests...)
}

// Body returns the body of the i-th received request.
func (d *Doer) Body(i int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.bodies) {
		return nil
	}
	return d.bodies[i]
}
