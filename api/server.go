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
  4. CORS:       Cross-origin requests for servicing frontends

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
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Get("/schedule", h.GetSchedule)
				r.Get("/rates", h.GetRates)

				r.Route("/overrides", func(r chi.Router) {
					r.Post("/payment-amount", h.AddPaymentAmount)
					r.Post("/rate", h.AddRateOverride)
					r.Post("/term-rate", h.AddTermRate)
					r.Post("/extension", h.AddExtension)
					r.Post("/balance-modification", h.AddBalanceModification)
					r.Post("/payment-date", h.AddChangePaymentDate)
				})

				r.Route("/dsi", func(r chi.Router) {
					r.Post("/payments", h.AddDSIPayment)
					r.Get("/history", h.GetDSIHistory)
					r.Get("/impact", h.GetDSIImpact)
				})

				r.Route("/versions", func(r chi.Router) {
					r.Get("/", h.ListVersions)
					r.Post("/", h.CommitVersion)
					r.Get("/preview", h.PreviewVersion)
					r.Post("/{vid}/rollback", h.RollbackVersion)
					r.Delete("/{vid}", h.DeleteVersion)
				})
			})
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
