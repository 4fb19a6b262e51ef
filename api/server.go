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
  /api/accounts/*   Customer accounts and point logs
  /api/points       Point crediting (staff)
  /api/coupons/*    Exchange, listing, redemption, history
  /api/employees    Staff registration

SECURITY NOTE:
  Staff endpoints trust the X-Staff-Code header after checking the code
  exists. There is no authentication middleware; front this with a
  gateway in production.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Staff-Code"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.RegisterAccount)
			r.Get("/{input}", h.GetAccount)
			r.Get("/{input}/log", h.GetPointLog)
		})

		// Point crediting
		r.Post("/points", h.AddPoints)

		// Coupon routes. Fixed segments before the wildcard so
		// /coupons/history does not match {handle}.
		r.Route("/coupons", func(r chi.Router) {
			r.Post("/exchange", h.ExchangeCoupon)
			r.Post("/redeem", h.RedeemCoupon)
			r.Get("/history", h.GetUsageHistory)
			r.Get("/{handle}", h.ListCoupons)
			r.Get("/{handle}/receipts", h.GetReceipts)
			r.Delete("/{id}", h.DeleteCoupon)
		})

		// Employee routes
		r.Post("/employees", h.RegisterEmployee)
	})

	// Health check for load balancers
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
