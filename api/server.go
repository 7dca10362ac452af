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
  /api/ingredients/*    Ingredient and archive lifecycle
  /api/batches/*        Batch inspection
  /api/consumptions/*   Audit trail
  /api/stockins         Deliveries
  /api/spoilages        Waste
  /api/recipes/*        Product sales
  /api/notifications    Feed snapshot
  /ws                   Live feed (websocket)
  /metrics              Prometheus
  /health               Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - ws.go: Websocket hub
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, hub *Hub) *chi.Mux {
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
		// Ingredient routes. The archive subtree comes first so
		// "archive" is never parsed as an ingredient id.
		r.Route("/ingredients", func(r chi.Router) {
			r.Route("/archive", func(r chi.Router) {
				r.Get("/list", h.ListArchived)
				r.Post("/{id}", h.ArchiveIngredient)
				r.Post("/{id}/restore", h.RestoreIngredient)
				r.Delete("/{id}/permanent", h.DeleteIngredient)
			})

			r.Get("/", h.ListIngredients)
			r.Post("/", h.CreateIngredient)
			r.Get("/{id}", h.GetIngredient)
			r.Put("/{id}/threshold", h.UpdateThreshold)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/ingredient/{id}", h.ListBatches)
		})

		// Audit trail routes
		r.Route("/consumptions", func(r chi.Router) {
			r.Get("/ingredient/{id}", h.ListConsumptions)
		})

		// Movement routes
		r.Post("/stockins", h.StockIn)
		r.Post("/spoilages", h.RecordSpoilage)
		r.Post("/recipes/consume", h.ConsumeRecipe)

		// Notification routes
		r.Get("/notifications", h.ListNotifications)
	})

	// Live feed
	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	// Operational endpoints
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	r.Get("/health", h.Health)

	return r
}
