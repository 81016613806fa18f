package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/monitome/internal/activity"
	"github.com/MrWong99/monitome/internal/health"
	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/provider/llm"
)

// ServiceName is reported by GET /health.
const ServiceName = "monitome-analysis"

// Handler limits.
const (
	DefaultSummaryWindow  = 50
	DefaultActivitiesPage = 20
	MaxActivitiesPage     = 1000

	maxBodyBytes = 32 << 20
)

// Request bodies.
type (
	analyzeRequest struct {
		ImageBase64 string `json:"image_base64"`
		Timestamp   string `json:"timestamp"`
	}

	analyzeFileRequest struct {
		FilePath  string `json:"file_path"`
		Timestamp string `json:"timestamp"`
	}

	quickExtractRequest struct {
		ImageBase64 string `json:"image_base64"`
	}

	summarizeRequest struct {
		Activities []activity.ScreenActivity `json:"activities"`
	}
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// Handler serves the analysis HTTP API.
type Handler struct {
	analyzer      *Analyzer
	summaryWindow int
	readFile      func(string) ([]byte, error)
	now           func() time.Time
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithSummaryWindow sets how many stored activities POST /summarize uses
// when the request lists none.
func WithSummaryWindow(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.summaryWindow = n
		}
	}
}

// WithHandlerClock overrides the clock used for default timestamps.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler serving a.
func NewHandler(a *Analyzer, opts ...HandlerOption) *Handler {
	h := &Handler{
		analyzer:      a,
		summaryWindow: DefaultSummaryWindow,
		readFile:      os.ReadFile,
		now:           time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes registers the API endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/analyze", h.analyze)
	r.Post("/analyze-file", h.analyzeFile)
	r.Post("/quick-extract", h.quickExtract)
	r.Post("/summarize", h.summarize)
	r.Get("/activities", h.activities)
}

// RouterConfig holds the collaborators of [NewRouter].
type RouterConfig struct {
	Handler *Handler
	Health  *health.Handler

	// Metrics is used by the tracing middleware. Default:
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler, if set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// NewRouter assembles the service's router with request IDs, panic recovery
// and tracing middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(m))

	cfg.Handler.Routes(r)
	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	img, err := DecodeImage(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Timestamp == "" {
		writeError(w, http.StatusBadRequest, "timestamp is required")
		return
	}
	act, err := h.analyzer.ExtractScreenActivity(r.Context(), img, req.Timestamp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *Handler) analyzeFile(w http.ResponseWriter, r *http.Request) {
	var req analyzeFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	data, err := h.readFile(req.FilePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "File not found: "+req.FilePath)
		return
	case err != nil:
		h.fail(w, r, fmt.Errorf("read %s: %w", req.FilePath, err))
		return
	}
	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = h.now().Format(time.RFC3339)
	}
	img := llm.Image{MediaType: MediaTypeForPath(req.FilePath), Data: data}
	act, err := h.analyzer.ExtractScreenActivity(r.Context(), img, timestamp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *Handler) quickExtract(w http.ResponseWriter, r *http.Request) {
	var req quickExtractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	img, err := DecodeImage(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	app, err := h.analyzer.QuickExtract(r.Context(), img)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acts := req.Activities
	if len(acts) == 0 && h.analyzer.Store() != nil {
		stored, err := h.analyzer.Store().Recent(r.Context(), h.summaryWindow)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		acts = stored
	}
	sum, err := h.analyzer.SummarizeActivities(r.Context(), acts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	store := h.analyzer.Store()
	if store == nil {
		writeError(w, http.StatusNotFound, "activity storage is disabled")
		return
	}
	limit := DefaultActivitiesPage
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxActivitiesPage)
	}
	acts, err := store.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if acts == nil {
		acts = []activity.ScreenActivity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

// fail logs err and answers 500 with its message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Error("analysis request failed",
		"path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// decodeBody decodes the JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}
