// Package api serves the agent's HTTP surface: the NSI callback endpoint,
// the reservation management API, the topology inventory, health checks and
// Prometheus metrics.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/anaeng/aura/internal/api/handlers"
	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/metrics"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

// NewRouter builds the chi router with the full middleware stack.
//
// Routes:
//   - POST /api/nsi/callback/ - provider callbacks (SOAP)
//   - /api/reservations/* - reservation management
//   - GET /api/stps/, /api/sdps/ - topology inventory
//   - GET /api/healthcheck/ - liveness probe
//   - GET /metrics - Prometheus metrics
func NewRouter(s *store.Store, dispatcher handlers.Dispatcher, requester *nsi.Requester, templates *nsi.Templates, providerID string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	callbackHandler := handlers.NewCallbackHandler(s, dispatcher, templates, providerID)
	reservationHandler := handlers.NewReservationHandler(s, dispatcher, requester)
	topologyHandler := handlers.NewTopologyHandler(s)
	healthHandler := handlers.NewHealthHandler(s)

	r.Route("/api", func(r chi.Router) {
		r.Post("/nsi/callback/", callbackHandler.Receive)

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", reservationHandler.Create)
			r.Get("/", reservationHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reservationHandler.Get)
				r.Delete("/", reservationHandler.Delete)
				r.Post("/provision", reservationHandler.Provision)
				r.Post("/release", reservationHandler.Release)
				r.Post("/terminate", reservationHandler.Terminate)
				r.Post("/reserve-again", reservationHandler.ReserveAgain)
				r.Post("/verify", reservationHandler.Verify)
				// The log stream has no timeout middleware: it lives until
				// the client hangs up.
				r.Get("/log/sse", reservationHandler.StreamLog)
			})
		})

		r.Route("/stps", func(r chi.Router) {
			r.Get("/", topologyHandler.ListSTPs)
			r.Get("/{id}/vlans/free", topologyHandler.FreeVlans)
		})
		r.Get("/sdps/", topologyHandler.ListSDPs)

		r.Get("/healthcheck/", healthHandler.Check)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Root redirect to the health check for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/healthcheck/", http.StatusTemporaryRedirect)
	})

	return r
}

// isQuietPath returns true for endpoints polled by machines, logged at DEBUG
// to keep the request log readable.
func isQuietPath(path string) bool {
	return strings.HasPrefix(path, "/api/healthcheck") || path == "/metrics"
}

// requestLogger logs requests using the internal logger: start at DEBUG,
// completion at INFO with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isQuietPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
