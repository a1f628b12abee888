package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/pipeline/run", h.RunPipeline)
		r.Get("/pipeline/runs", h.RecentRuns)

		r.Get("/leads", h.ListLeads)
		r.Get("/leads/{email}", h.GetLead)
		r.Post("/leads/score", h.ScoreLead)

		r.Get("/rl/stats", h.RLStats)
		r.Get("/annealing/patterns", h.AnnealingPatterns)

		r.Get("/safety", h.SafetyStatus)
		r.Post("/safety/engage", h.EngageSafeMode)
		r.Post("/safety/disengage", h.DisengageSafeMode)
	})

	return r
}
