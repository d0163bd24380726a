package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/medledger/internal/config"
	"github.com/savegress/medledger/internal/viewstate"
	"github.com/savegress/medledger/internal/websocket"
)

// NewRouter builds the HTTP surface over the synchronizer
func NewRouter(cfg *config.Config, sync *viewstate.Synchronizer, hub *websocket.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"medledger-gateway","version":"0.1.0"}`))
	})

	h := NewHandlers(sync)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Read surface
		r.Get("/state", h.HandleState())
		r.Get("/records/{patientID}", h.HandleFetchRecords())

		// Mutating surface
		r.Group(func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(AuthMiddleware(cfg))
			}

			r.Post("/connect", h.HandleConnect())
			r.Post("/records", h.HandleSubmitRecord())
			r.Post("/providers/{address}/authorize", h.HandleAuthorizeProvider())
			r.Post("/providers/{address}/revoke", h.HandleRevokeProvider())
			r.Post("/operations/recheck", h.HandleRecheck())
		})
	})

	// Live snapshots
	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	return r
}
