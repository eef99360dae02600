/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

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
  /api/farmers/*   Farmer registry
  /api/milk/*      Milk session logs
  /api/feed/*      Feed purchases
  /api/billing/*   Settlement engine
  /api/health      Liveness probe
  /metrics         Prometheus scrape endpoint

ROUTE ORDER:
  Under /api/billing the named routes (preview, generate, balance,
  history, payment) are registered before the {id} wildcards so chi
  matches them first.

SECURITY NOTE:
  No authentication middleware. owner_id is carried explicitly in each
  request and trusted as-is.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		r.Get("/health", h.Health)

		// Farmer registry
		r.Route("/farmers", func(r chi.Router) {
			r.Get("/", h.ListFarmers)
			r.Post("/", h.CreateFarmer)
			r.Get("/{id}", h.GetFarmer)
			r.Put("/{id}", h.UpdateFarmer)
			r.Delete("/{id}", h.DeleteFarmer)
		})

		// Milk session logs
		r.Route("/milk", func(r chi.Router) {
			r.Get("/", h.ListMilkSessions)
			r.Post("/", h.AddMilkSession)
			r.Delete("/{id}", h.DeleteMilkSession)
		})

		// Feed purchases
		r.Route("/feed", func(r chi.Router) {
			r.Get("/", h.ListFeedPurchases)
			r.Post("/", h.AddFeedPurchase)
			r.Put("/{id}", h.UpdateFeedPurchase)
			r.Delete("/{id}", h.DeleteFeedPurchase)
		})

		// Billing engine
		r.Route("/billing", func(r chi.Router) {
			r.Post("/preview", h.PreviewBill)
			r.Post("/generate", h.GenerateBill)
			r.Get("/balance", h.GetBalance)
			r.Get("/history", h.GetBillHistory)
			r.Put("/payment/{id}", h.UpdatePayment)
			r.Get("/{id}", h.GetBill)
			r.Delete("/{id}", h.DeleteBill)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
