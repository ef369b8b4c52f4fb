package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
)

// genericFailure is the only body a failed query ever returns.
const genericFailure = "Something went wrong"

// HealthFunc reports dependency health. A nil error means healthy.
type HealthFunc func(r *http.Request) (map[string]string, error)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Service        *Service
	AllowedOrigins []string
	RequestTimeout time.Duration
	Health         HealthFunc
	Logger         *slog.Logger
}

type handler struct {
	service *Service
	health  HealthFunc
	logger  *slog.Logger
}

// NewRouter builds the HTTP API:
//
//	GET /groups
//	GET /search/{index_name}?query=&offset=
//	GET /healthz
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handler{service: cfg.Service, health: cfg.Health, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/groups", h.groups)
	r.Get("/search/{index_name}", h.search)
	r.Get("/healthz", h.healthz)

	return r
}

func (h *handler) groups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Rooms(r.Context())
	if err != nil {
		h.fail(w, r, "groups_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index_name")
	q := r.URL.Query()

	var before *int64
	if raw := q.Get("offset"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "offset must be a millisecond timestamp", http.StatusBadRequest)
			return
		}
		before = &ts
	}

	page, err := h.service.Search(r.Context(), index, q.Get("query"), before)
	if err != nil {
		h.fail(w, r, "search_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.health != nil {
		details, err := h.health(r)
		for k, v := range details {
			body[k] = v
		}
		if err != nil {
			body["status"] = "degraded"
			body["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// fail logs the cause and answers with the generic 500.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.logger.Error(event,
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("code", rxerrors.GetCode(err)),
		slog.String("error", err.Error()))
	http.Error(w, genericFailure, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http_request",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
