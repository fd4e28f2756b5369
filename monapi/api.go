package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itskum47/monforge/monapi/config"
	"github.com/itskum47/monforge/monapi/idempotency"
	"github.com/itskum47/monforge/monapi/middleware"
	"github.com/itskum47/monforge/monapi/notify"
	"github.com/itskum47/monforge/monapi/observability"
	"github.com/itskum47/monforge/monapi/ordering"
	"github.com/itskum47/monforge/monapi/store"
	"github.com/itskum47/monforge/monapi/validation"
)

type API struct {
	store      store.Store
	screens    *ScreenService
	dispatcher *notify.Dispatcher
	logger     *zap.Logger

	wsHub *RefreshHub

	idempotency idempotency.Store
	// nil when auth is disabled
	auth *middleware.Authenticator

	// Storm protection
	weightsLimiter *rate.Limiter
	eventsLimiter  *rate.Limiter
}

func NewAPI(cfg *config.Config, s store.Store, screens *ScreenService, dispatcher *notify.Dispatcher, idem idempotency.Store, logger *zap.Logger) *API {
	api := &API{
		store:          s,
		screens:        screens,
		dispatcher:     dispatcher,
		logger:         logger,
		idempotency:    idem,
		weightsLimiter: rate.NewLimiter(rate.Limit(cfg.Limits.WeightsPerSecond), cfg.Limits.WeightsBurst),
		eventsLimiter:  rate.NewLimiter(rate.Limit(cfg.Limits.EventsPerSecond), cfg.Limits.EventsBurst),
	}
	if !cfg.Auth.Disabled {
		api.auth = middleware.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
	}

	api.wsHub = NewRefreshHub(screens, cfg.Refresh, logger)

	return api
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RequestLogger(a.logger))

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if a.auth != nil {
			r.Use(a.auth.Middleware)
		}
		r.Use(idempotency.Middleware(a.idempotency))

		r.Get("/tree", a.handleListNodes)
		r.Post("/tree", a.handleUpsertNode)
		r.Get("/tree/{id}/excludable", a.handleExcludableNodes)

		r.Get("/screens", a.handleListScreens)
		r.Post("/screens", a.handleCreateScreen)
		r.Route("/screens/{id}", func(r chi.Router) {
			r.Put("/", a.handleRenameScreen)
			r.Delete("/", a.handleDeleteScreen)
			r.Get("/detail", a.handleScreenDetail)
			r.Get("/subclass", a.handleListSubclasses)
			r.Post("/subclass", a.handleAddSubclass)
			r.With(a.limit(a.weightsLimiter, "weights")).Put("/subclass/move", a.handleMoveSubclass)
			r.Get("/refresh", a.handleRefreshStream)
		})

		r.With(a.limit(a.weightsLimiter, "weights")).Put("/subclass", a.handleUpdateSubclasses)
		r.Delete("/subclass/{id}", a.handleDeleteSubclass)
		r.With(a.limit(a.weightsLimiter, "weights")).Put("/subclasses/loc", a.handleMoveSubclasses)
		r.Get("/subclass/{id}/chart", a.handleListCharts)
		r.Post("/subclass/{id}/chart", a.handleAddChart)
		r.With(a.limit(a.weightsLimiter, "weights")).Put("/subclass/{id}/chart/reorder", a.handleReorderCharts)
		r.Put("/chart/{id}", a.handleUpdateChart)
		r.Delete("/chart/{id}", a.handleDeleteChart)
		r.With(a.limit(a.weightsLimiter, "weights")).Put("/charts/weights", a.handleChartWeights)

		r.Get("/collects", a.handleListCollects)
		r.Post("/collects", a.handleCreateCollect)
		r.Post("/collects/check", a.handleCheckCollect)
		r.Get("/collects/{id}", a.handleGetCollect)
		r.Put("/collects/{id}", a.handleUpdateCollect)
		r.Delete("/collects/{id}", a.handleDeleteCollect)

		r.Get("/strategies", a.handleListStrategies)
		r.Post("/strategies", a.handleCreateStrategy)
		r.Get("/strategies/{id}", a.handleGetStrategy)
		r.Put("/strategies/{id}", a.handleUpdateStrategy)
		r.Delete("/strategies/{id}", a.handleDeleteStrategy)

		r.With(a.limit(a.eventsLimiter, "events")).Post("/events", a.handleEvents)
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": a.wsHub.Count(),
	})
}

// -- Envelope --

type envelope struct {
	Dat any    `json:"dat"`
	Err string `json:"err"`
}

type errorEnvelope struct {
	Dat    any                     `json:"dat"`
	Err    string                  `json:"err"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, dat any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Dat: dat})
}

// requestError marks an error caused by the request itself.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// writeError maps domain errors to statuses. Anything unrecognised is a 500
// and gets logged.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorEnvelope{Err: err.Error()}

	var reqErr *requestError
	if ve, ok := validation.As(err); ok {
		status = http.StatusBadRequest
		body.Fields = ve.Fields
	} else if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, ordering.ErrIndexOutOfRange) || errors.As(err, &reqErr) {
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Err = "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// bind decodes the request body into v.
func bind(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func urlParamInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(fmt.Errorf("invalid %s %q", name, raw))
	}
	return id, nil
}

// queryInt64 reads an optional numeric query parameter; absent means 0.
func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, badRequest(fmt.Errorf("invalid %s %q", name, raw))
	}
	return v, nil
}

// -- Rate limiting --

func (a *API) limit(l *rate.Limiter, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				a.writeRateLimitError(w, endpoint)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitError writes a 429 with a jittered Retry-After.
func (a *API) writeRateLimitError(w http.ResponseWriter, endpoint string) {
	observability.APIRateLimited.WithLabelValues(endpoint).Inc()

	// 1s base + 0-1000ms
	retryAfter := 1000 + rand.Intn(1000)
	w.Header().Set("Retry-After", strconv.Itoa((retryAfter+999)/1000))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(envelope{Err: "too many requests"})
}
