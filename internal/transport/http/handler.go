// Package httptransport exposes session operations, ledger statistics,
// health and metrics over HTTP. Handlers translate requests and delegate to
// the session manager; no verification logic lives here.
package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"numcheck/internal/batch"
	"numcheck/internal/export"
	"numcheck/internal/filter"
	"numcheck/internal/ledger"
	"numcheck/internal/platform/logger"
	"numcheck/internal/platform/metrics"
	"numcheck/internal/platform/middleware"
	"numcheck/internal/session"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/platform/httputil"
	"numcheck/pkg/requestcontext"
)

// SessionService is the session manager as seen by the transport.
type SessionService interface {
	Start(ctx context.Context, key domain.SessionKey, text string) (session.View, error)
	SubmitNumbers(ctx context.Context, key domain.SessionKey, text string) (session.View, error)
	SubmitFile(ctx context.Context, key domain.SessionKey, filename string, r io.Reader) (session.View, error)
	SubmitRetry(ctx context.Context, key domain.SessionKey, input string, progress batch.ProgressFunc) (*batch.Result, error)
	Cancel(ctx context.Context, key domain.SessionKey) bool
	SetFilter(ctx context.Context, key domain.SessionKey, spec filter.Spec) (session.View, error)
	Results(ctx context.Context, key domain.SessionKey, all bool) ([]domain.CheckResult, filter.Spec, error)
	Export(ctx context.Context, key domain.SessionKey, all bool, format export.Format) (*export.Artifact, error)
	View(key domain.SessionKey) session.View
}

// StatsService reads ledger aggregates.
type StatsService interface {
	Stats(ctx context.Context) ledger.Stats
	UserStats(ctx context.Context, key domain.SessionKey) (ledger.UserStats, bool)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

const (
	healthTimeout  = 2 * time.Second
	maxUploadBytes = 8 << 20
)

// Handler serves the HTTP API.
type Handler struct {
	sessions      SessionService
	stats         StatsService
	logger        *slog.Logger
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer
	checks        map[string]HealthCheck
	defaultFormat export.Format
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics records request latency into m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = g
	}
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithDefaultExportFormat sets the format used when ?format is absent.
func WithDefaultExportFormat(f export.Format) Option {
	return func(h *Handler) {
		if f != "" {
			h.defaultFormat = f
		}
	}
}

// New creates a Handler.
func New(sessions SessionService, stats StatsService, opts ...Option) *Handler {
	h := &Handler{
		sessions:      sessions,
		stats:         stats,
		logger:        logger.Discard(),
		checks:        make(map[string]HealthCheck),
		defaultFormat: export.FormatCSV,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.RequestTime)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Latency(h.metrics))

	api.Get("/health", h.handleHealth)
	if h.gatherer != nil {
		api.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	api.Get("/v1/stats", h.handleStats)

	api.Route("/v1/sessions/{key}", func(sr chi.Router) {
		sr.Use(h.sessionKey)
		sr.Get("/", h.handleView)
		sr.Post("/check", h.handleCheck)
		sr.Post("/numbers", h.handleNumbers)
		sr.Post("/retry", h.handleRetry)
		sr.Post("/cancel", h.handleCancel)
		sr.Put("/filter", h.handleFilter)
		sr.Get("/results", h.handleResults)
		sr.Get("/export", h.handleExport)
	})

	r.Mount("/", api)
}

// NewRouter returns a chi router with the handler's routes registered.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) sessionKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := domain.ParseSessionKey(chi.URLParam(r, "key"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ctx := requestcontext.WithSessionKey(r.Context(), key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// fail writes err, logging server-side failures with the request ID.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"session", requestcontext.SessionKey(ctx).String(),
			"error", err,
		)
	} else {
		h.logger.DebugContext(ctx, op+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestcontext.SessionKey(ctx)
	resp := SessionResponse{View: h.sessions.View(key)}
	if h.stats != nil {
		if us, ok := h.stats.UserStats(ctx, key); ok {
			resp.User = &us
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeOptional[TextRequest](r)
	if err != nil {
		h.fail(w, r, "start", err)
		return
	}
	view, err := h.sessions.Start(ctx, requestcontext.SessionKey(ctx), req.Text)
	if err != nil {
		h.fail(w, r, "start", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// handleNumbers accepts either a JSON {"text": ...} body or a multipart
// upload in the "file" field.
func (h *Handler) handleNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := requestcontext.SessionKey(ctx)

	var (
		view session.View
		err  error
	)
	if isMultipart(r) {
		view, err = h.submitUpload(w, r, key)
	} else {
		var req *TextRequest
		req, err = httputil.DecodeJSON[TextRequest](r)
		if err == nil {
			view, err = h.sessions.SubmitNumbers(ctx, key, req.Text)
		}
	}
	if err != nil {
		h.fail(w, r, "submit numbers", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) submitUpload(w http.ResponseWriter, r *http.Request, key domain.SessionKey) (session.View, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return session.View{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return session.View{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "missing file field")
	}
	defer file.Close()
	return h.sessions.SubmitFile(r.Context(), key, header.Filename, file)
}

// handleRetry answers the retry prompt and blocks until the run finishes.
// Progress is observable meanwhile through GET /v1/sessions/{key}.
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeOptional[RetryRequest](r)
	if err != nil {
		h.fail(w, r, "retry", err)
		return
	}
	res, err := h.sessions.SubmitRetry(ctx, requestcontext.SessionKey(ctx), req.Input, nil)
	if err != nil {
		h.fail(w, r, "retry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRunResponse(res))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cancelled := h.sessions.Cancel(ctx, requestcontext.SessionKey(ctx))
	httputil.WriteJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

func (h *Handler) handleFilter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[FilterRequest](r)
	if err != nil {
		h.fail(w, r, "set filter", err)
		return
	}
	spec, err := filter.Parse(req.Filter)
	if err != nil {
		h.fail(w, r, "set filter", err)
		return
	}
	view, err := h.sessions.SetFilter(ctx, requestcontext.SessionKey(ctx), spec)
	if err != nil {
		h.fail(w, r, "set filter", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := boolQuery(r, "all")
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	results, spec, err := h.sessions.Results(ctx, requestcontext.SessionKey(ctx), all)
	if err != nil {
		h.fail(w, r, "results", err)
		return
	}
	if results == nil {
		results = []domain.CheckResult{}
	}
	httputil.WriteJSON(w, http.StatusOK, ResultsResponse{
		Filter:  spec,
		Label:   spec.Label(),
		Count:   len(results),
		Results: results,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := boolQuery(r, "all")
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}
	format := h.defaultFormat
	if raw := r.URL.Query().Get("format"); raw != "" {
		if format, err = export.ParseFormat(raw); err != nil {
			h.fail(w, r, "export", err)
			return
		}
	}

	artifact, err := h.sessions.Export(ctx, requestcontext.SessionKey(ctx), all, format)
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
	w.Header().Set("X-Export-Rows", strconv.Itoa(artifact.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if h.stats != nil {
		resp.Ledger = h.stats.Stats(r.Context())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	for _, name := range names {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(names))
		}
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

// decodeOptional decodes a JSON body, treating an empty body as the zero
// value.
func decodeOptional[T any](r *http.Request) (*T, error) {
	v, err := httputil.DecodeJSON[T](r)
	if errors.Is(err, io.EOF) {
		return new(T), nil
	}
	return v, err
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, dErrors.New(dErrors.CodeBadRequest, name+" must be true or false")
	}
	return b, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}
