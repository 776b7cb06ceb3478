/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/outlets/*        Outlets, records, entries, closures, anomalies
  /api/transactions/*   Transaction lookup and reversal
  /api/anomalies/*      Anomaly resolution
  /api/health           Liveness probe

SECURITY NOTE:
  No authentication middleware here; the gateway in front of this service
  authenticates and injects X-Actor-Id / X-Actor-Role.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Outlet routes
		r.Route("/outlets", func(r chi.Router) {
			r.Get("/", h.ListOutlets)
			r.Post("/", h.CreateOutlet)
			r.Get("/{id}", h.GetOutlet)

			// Daily records
			r.Get("/{id}/records", h.GetRecords)
			r.Get("/{id}/records/{date}", h.GetRecord)
			r.Put("/{id}/records/{date}/opening", h.SetOpening)
			r.Post("/{id}/records/{date}/submit", h.SubmitDay)
			r.Post("/{id}/records/{date}/lock", h.LockDay)
			r.Post("/{id}/records/{date}/unlock", h.UnlockDay)
			r.Get("/{id}/records/{date}/permission", h.CheckPermission)
			r.Get("/{id}/locked-dates", h.GetLockedDates)

			// Entries
			r.Post("/{id}/entries", h.CreateEntry)
			r.Get("/{id}/entries", h.ListEntries)

			// Monthly closures
			r.Get("/{id}/closures/{month}", h.GetClosure)
			r.Post("/{id}/closures/{month}/close", h.CloseMonth)
			r.Post("/{id}/closures/{month}/reopen", h.ReopenMonth)

			// Anomalies
			r.Post("/{id}/anomalies/scan", h.ScanAnomalies)
			r.Get("/{id}/anomalies", h.ListAnomalies)
			r.Post("/{id}/anomalies", h.IngestAnomaly)

			// Counters and audit
			r.Get("/{id}/counters", h.GetCounters)
			r.Post("/{id}/counters/reconcile", h.ReconcileCounters)
			r.Post("/{id}/customers/number", h.AllocateCustomerNumber)
			r.Get("/{id}/audit", h.QueryAudit)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/{id}", h.GetTransaction)
			r.Post("/{id}/reverse", h.ReverseTransaction)
		})

		// Anomaly resolution
		r.Route("/anomalies", func(r chi.Router) {
			r.Post("/{id}/resolve", h.ResolveAnomaly)
		})

		// Demo scenarios (development only; loading resets the store)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
