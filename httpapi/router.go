// Package httpapi exposes the order cards, badge counts and cache controls over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-orders-master/dashboard"
	"github.com/goliatone/go-orders-master/filter"
	"github.com/goliatone/go-orders-master/responsecache"
)

// Dashboard is the read and invalidation surface the API serves.
type Dashboard interface {
	OrderCards(ctx context.Context, req filter.Request) (dashboard.Page, error)
	BucketCounts(ctx context.Context, req filter.Request) (dashboard.Counts, error)
	InvalidateAggregateCache(ctx context.Context) (int, error)
	InvalidateFilterCounts(ctx context.Context, roleScope string) (int, error)
	InvalidateAll(ctx context.Context) (int, error)
}

// StatsSource reports response cache counters.
type StatsSource interface {
	Stats() map[string]responsecache.Stats
}

// Purge targets accepted by POST /cache/purge.
const (
	PurgeAll    = "all"
	PurgeOrders = "orders"
	PurgeCounts = "counts"
)

// Handler serves the dashboard over HTTP.
type Handler struct {
	dashboard Dashboard
	stats     StatsSource
	logger    logrus.FieldLogger
}

// NewHandler builds a Handler. stats may be nil.
func NewHandler(d Dashboard, stats StatsSource, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Handler{
		dashboard: d,
		stats:     stats,
		logger:    logger.WithField("component", "httpapi"),
	}
}

// Router returns a chi router with the API mounted at the root.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/counts", h.Counts)
	})
	r.Route("/cache", func(r chi.Router) {
		r.Post("/purge", h.Purge)
		r.Get("/stats", h.Stats)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *Handler) log(r *http.Request) logrus.FieldLogger {
	return h.logger.WithField("request_id", middleware.GetReqID(r.Context()))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log(r).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

// ListOrders serves GET /orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.dashboard.OrderCards(r.Context(), RequestFromHTTP(r))
	if err != nil {
		h.log(r).WithError(err).Error("cannot list order cards")
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, page)
}

// Counts serves GET /orders/counts.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.dashboard.BucketCounts(r.Context(), RequestFromHTTP(r))
	if err != nil {
		h.log(r).WithError(err).Error("cannot count orders")
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, counts)
}

// Purge serves POST /cache/purge?target=all|orders|counts[&scope=...].
// Only admins may purge.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	if filter.ParseRole(r.Header.Get(HeaderRole)) != filter.RoleAdmin {
		respondError(w, goerrors.New("cache purge requires the admin role", goerrors.CategoryAuthz).
			WithCode(http.StatusForbidden))
		return
	}

	ctx := r.Context()
	target := r.URL.Query().Get("target")
	var (
		removed int
		err     error
	)
	switch target {
	case "", PurgeAll:
		target = PurgeAll
		removed, err = h.dashboard.InvalidateAll(ctx)
	case PurgeOrders:
		removed, err = h.dashboard.InvalidateAggregateCache(ctx)
	case PurgeCounts:
		removed, err = h.dashboard.InvalidateFilterCounts(ctx, r.URL.Query().Get("scope"))
	default:
		respondError(w, goerrors.New("unknown purge target", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithMetadata(map[string]any{"target": target}))
		return
	}
	if err != nil {
		h.log(r).WithError(err).Error("cache purge failed")
		respondError(w, err)
		return
	}

	h.log(r).WithFields(logrus.Fields{"target": target, "removed": removed}).Info("cache purged")
	respond(w, http.StatusOK, map[string]any{"target": target, "removed": removed})
}

// Stats serves GET /cache/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	if h.stats == nil {
		respond(w, http.StatusOK, map[string]responsecache.Stats{})
		return
	}
	respond(w, http.StatusOK, h.stats.Stats())
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, err error) {
	ge := goerrors.MapToError(err, goerrors.DefaultErrorMappers()).Clone()
	respond(w, statusOf(ge), ge.ToErrorResponse(false, nil))
}

func statusOf(e *goerrors.Error) int {
	if e.Code >= 400 {
		return e.Code
	}
	switch e.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
