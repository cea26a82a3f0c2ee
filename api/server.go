/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/properties/*       Property register and balances
  /api/paymentdetails/*   Installment recording and ledger view
  /api/payments/*         Payment records, discounts, exemptions
  /api/policies/*         Commission and revenue-split configuration
  /api/revenuesplit/*     Daily settlement and stakeholder reports
  /api/scenarios/*        Demo scenarios and database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Property routes
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.ListProperties)
			r.Post("/", h.CreateProperty)
			r.Get("/{id}", h.GetProperty)
			r.Post("/{id}/approve", h.ApproveProperty)
			r.Get("/{id}/balance", h.GetBalance)
		})

		// Collection routes
		r.Route("/paymentdetails", func(r chi.Router) {
			r.Post("/", h.RecordPaymentDetail)
			r.Get("/property/{id}", h.GetPropertyLedger)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
		})

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/commission", h.GetCommissionPolicy)
			r.Put("/commission", h.PutCommissionPolicy)
			r.Get("/revenue-split", h.GetRevenueSplitPolicy)
			r.Put("/revenue-split", h.PutRevenueSplitPolicy)
		})

		// Settlement routes
		r.Route("/revenuesplit", func(r chi.Router) {
			r.Get("/daily-settlement", h.GetDailySettlement)
			r.Get("/settlements", h.ListSettlements)
			r.Get("/report", h.GetReportSplit)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
