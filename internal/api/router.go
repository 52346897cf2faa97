package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/optilead/internal/callservice"
	"github.com/kalambet/optilead/internal/events"
	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/metrics"
	"github.com/kalambet/optilead/internal/prompts"
	"github.com/kalambet/optilead/internal/scripts"
	"github.com/kalambet/optilead/internal/storage"
	"github.com/kalambet/optilead/internal/subscription"
)

// Generator runs a single non-streaming completion on the local LLM.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (json.RawMessage, error)
}

// CallService starts calls through the external calling microservice.
type CallService interface {
	Format() string
	StartCall(ctx context.Context, req callservice.Request) (callservice.Response, error)
	TriggerOutboundCall(ctx context.Context, toPhone string) callservice.Result
}

// SummaryForwarder relays post-call summaries.
type SummaryForwarder interface {
	Forward(ctx context.Context, s callservice.Summary) (json.RawMessage, error)
}

// LeadScorer scores a lead against user rules.
type LeadScorer interface {
	Score(ctx context.Context, in leadscoring.Input) (leadscoring.Output, error)
}

// Deps holds everything the HTTP API needs.
type Deps struct {
	LLM           Generator
	Model         string
	Scripts       *scripts.Store
	Prompts       storage.PromptStore
	DefaultPrompt *prompts.DefaultLoader
	Calls         CallService
	Summaries     SummaryForwarder
	Scorer        LeadScorer
	Hub           *events.Hub
	Subscriptions *subscription.Verifier

	// APIKey guards the webhook routes called by the calling service. Empty
	// disables the check.
	APIKey string

	// CallRatePerMinute limits start-call requests per client. Zero disables.
	CallRatePerMinute int

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// When false the TCP peer address is used.
	TrustProxy bool

	// Ping reports storage health for /health. Optional.
	Ping func(ctx context.Context) error

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter returns the http.Handler serving the dashboard API.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if deps.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(classifyRoutes)

	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/openhermes", handleOpenHermes(deps))

		r.Get("/scripts", handleListScripts(deps))
		r.Post("/scripts", handleCreateScript(deps))
		r.Put("/scripts", handleUpdateScript(deps))

		r.With(rateLimit(deps.CallRatePerMinute, deps.Metrics)).Post("/start-call", handleStartCall(deps))

		r.With(apiKeyAuth(deps.APIKey)).Post("/summary", handleSummary(deps))

		r.HandleFunc("/system-prompts", handleSystemPrompts(deps))
		r.Get("/default-prompt", handleDefaultPrompt(deps))

		r.Get("/call-events", handleCallEvents(deps))
		r.With(apiKeyAuth(deps.APIKey)).Post("/call-events", handlePublishCallEvent(deps))
		r.Options("/call-events", handleCallEventsPreflight)

		r.Group(func(r chi.Router) {
			r.Use(requireSubscription(deps.Subscriptions))
			r.Post("/lead-scoring", handleLeadScoring(deps))
			r.Post("/call-prospect", handleCallProspect(deps))
		})
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "storage": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// requestLogger logs each request with its status and latency and records
// it on m under the matched route pattern.
func requestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.ObserveRequest(route, r.Method, status, elapsed)

			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
