/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard (ALLOWED_ORIGINS)

ROUTE GROUPS:
  /api/slots/*          Slot search and provisioning
  /api/availability     Occupancy summary
  /api/users/*          Drivers and wallets
  /api/reservations/*   Reservation workflow
  /api/analytics        Utilization and revenue report
  /api/health           Store liveness
  /api/admin/*          Admin operations
  /api/scenarios/*      Demo scenarios
  /api/live             Websocket availability feed
  /metrics              Prometheus scrape endpoint (ENABLE_METRICS)

SEE ALSO:
  - handlers.go: Handler implementations
  - live.go: Websocket hub
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions carries the router settings that come from config.
type RouterOptions struct {
	AllowedOrigins []string
	EnableMetrics  bool
	Hub            *Hub
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Slot routes
		r.Route("/slots", func(r chi.Router) {
			r.Get("/", h.ListSlots)
			r.Post("/", h.CreateSlot)
		})
		r.Get("/availability", h.GetAvailability)

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Post("/{id}/balance", h.TopUp)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Post("/{id}/end", h.EndReservation)
		})

		r.Get("/analytics", h.GetAnalytics)
		r.Get("/health", h.Health)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/wallet-transactions", h.ListWalletTransactions)
			r.Post("/layout", h.ApplyLayout)
			r.Post("/expire", h.ExpireOverdue)
			r.Get("/scheduler", h.GetSchedulerStatus)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		if opts.Hub != nil {
			r.Get("/live", opts.Hub.ServeWS)
		}
	})

	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Parking Reservation Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Parking Reservation Engine API</h1>
<ul>
<li><a href="/api/slots">/api/slots</a> - Free slots</li>
<li><a href="/api/availability">/api/availability</a> - Occupancy summary</li>
<li><a href="/api/users">/api/users</a> - Drivers</li>
<li><a href="/api/reservations">/api/reservations</a> - Reservations</li>
<li><a href="/api/analytics">/api/analytics</a> - Utilization and revenue</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
