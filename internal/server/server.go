package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alertbridge/internal/connector"
	"alertbridge/internal/metrics"
	"alertbridge/internal/models"
	"alertbridge/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultPageSize     = 50
	maxPageSize         = 500
	shutdownTimeout     = 10 * time.Second
)

type Options struct {
	Service      *service.ConnectorService
	Metrics      *metrics.Collector
	APIToken     string
	WebhookToken string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

// Start запускает оба HTTP-сервера: для API управления и для входящих алертов.
// Блокируется до отмены ctx, затем корректно останавливает серверы.
func Start(ctx context.Context, opts Options, appPort, alertPort string) error {
	opts.defaults()
	logger := opts.Logger.With("component", "http")

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%s", appPort), Handler: newRouter(opts), ReadHeaderTimeout: 10 * time.Second},
		{Addr: fmt.Sprintf(":%s", alertPort), Handler: newAlertRouter(opts), ReadHeaderTimeout: 10 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("starting server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// newRouter создает роутер для API управления коннекторами.
func newRouter(opts Options) http.Handler {
	opts.defaults()
	r := newBaseRouter(opts)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	h := &handlers{svc: opts.Service, maxBody: opts.MaxBodyBytes, logger: opts.Logger}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuthMiddleware(opts.APIToken))

		r.Get("/connector-types", h.listTypes)
		r.Get("/connector-types/{type}", h.getType)

		r.Route("/connectors", func(r chi.Router) {
			r.Get("/", h.listConnectors)
			r.Post("/", h.activate)
			r.Post("/probe", h.probeAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getConnector)
				r.Delete("/", h.deleteConnector)
				r.Post("/probe", h.probe)
				r.Post("/enable", h.setEnabled(true))
				r.Post("/disable", h.setEnabled(false))
				r.Post("/dispatch", h.dispatch)
				r.Get("/workflows", h.listWorkflows)
				r.Get("/dispatches", h.listDispatches)
			})
		})

		r.Get("/alerts", h.listAlerts)
		r.Get("/alerts/{fingerprint}", h.getAlert)
	})
	return r
}

// newAlertRouter создает роутер для вебхуков от вендоров.
func newAlertRouter(opts Options) http.Handler {
	opts.defaults()
	r := newBaseRouter(opts)

	h := &handlers{svc: opts.Service, maxBody: opts.MaxBodyBytes, logger: opts.Logger}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(webhookAuthMiddleware(opts.WebhookToken))
		r.Post("/alerts/{connectorID}", h.ingest)
	})
	return r
}

func newBaseRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.InstrumentHandler)
	}
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	return r
}

// --- Middlewares ---

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func bearerAuthMiddleware(expectedToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedToken == "" { // Если токен не задан, пропускаем проверку
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authorization header required", "")
				return
			}
			if !tokenEqual(token, expectedToken) {
				writeError(w, http.StatusForbidden, "Invalid token", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// webhookAuthMiddleware принимает Bearer-токен или заголовок X-API-KEY.
func webhookAuthMiddleware(expectedToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expectedToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				token = r.Header.Get("X-API-KEY")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header or X-API-KEY required", "")
				return
			}
			if !tokenEqual(token, expectedToken) {
				writeError(w, http.StatusForbidden, "Invalid token", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// --- Handlers ---

type handlers struct {
	svc     *service.ConnectorService
	maxBody int64
	logger  *slog.Logger
}

func (h *handlers) listTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListTypes())
}

func (h *handlers) getType(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	for _, def := range h.svc.ListTypes() {
		if def.Type == typ {
			writeJSON(w, http.StatusOK, def)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("unknown connector type %q", typ), "")
}

func (h *handlers) listConnectors(w http.ResponseWriter, r *http.Request) {
	instances, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (h *handlers) activate(w http.ResponseWriter, r *http.Request) {
	var req service.ActivateRequest
	if !h.decode(w, r, &req) {
		return
	}
	instance, err := h.svc.Activate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, instance)
}

func (h *handlers) getConnector(w http.ResponseWriter, r *http.Request) {
	instance, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instance)
}

func (h *handlers) deleteConnector(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) probe(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.svc.Probe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scopes)
}

func (h *handlers) probeAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.ProbeAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handlers) setEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instance, err := h.svc.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, instance)
	}
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request) {
	var req models.DispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Dispatch(r.Context(), chi.URLParam(r, "id"), req)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	var derr *connector.DispatchError
	if errors.As(err, &derr) {
		// Результат включает код и тело ответа вендора.
		writeJSON(w, statusFor(err), result)
		return
	}
	h.fail(w, r, err)
}

func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.svc.ListWorkflows(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (h *handlers) listDispatches(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := pagination(w, r)
	if !ok {
		return
	}
	records, err := h.svc.ListDispatches(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) getAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.svc.GetAlert(r.Context(), chi.URLParam(r, "fingerprint"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type ingestResponse struct {
	Accepted     int      `json:"accepted"`
	Fingerprints []string `json:"fingerprints"`
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
		return
	}
	records, err := h.svc.Ingest(r.Context(), chi.URLParam(r, "connectorID"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := ingestResponse{Accepted: len(records), Fingerprints: make([]string, 0, len(records))}
	for _, rec := range records {
		resp.Fingerprints = append(resp.Fingerprints, rec.Fingerprint)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), "")
		return false
	}
	return true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, status, err.Error(), kindOf(err))
}

// statusFor maps service and connector errors to HTTP status codes.
func statusFor(err error) int {
	var cerr *connector.ConfigError
	var derr *connector.DispatchError
	switch {
	case errors.As(err, &cerr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &derr):
		switch derr.Kind {
		case connector.MissingDispatchTarget, connector.UnsupportedMethod, connector.MissingCredential:
			return http.StatusBadRequest
		case connector.Cancelled:
			return http.StatusServiceUnavailable
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownType):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNameTaken), errors.Is(err, service.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, connector.ErrNoMapping):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	var cerr *connector.ConfigError
	if errors.As(err, &cerr) {
		return string(cerr.Kind)
	}
	var derr *connector.DispatchError
	if errors.As(err, &derr) {
		return string(derr.Kind)
	}
	return ""
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return 0, 0, false
		}
		limit = min(v, maxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer", "")
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, kind string) {
	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
