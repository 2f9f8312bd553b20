package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", h.Health)
	r.Post("/generate-recipe", h.GenerateRecipe)
	r.Get("/ws/generate", h.GenerateStream)

	r.Route("/api", func(r chi.Router) {
		r.Get("/km24-status", h.KM24Status)
		r.Post("/km24-refresh-cache", h.RefreshCache)
		r.Get("/filter-catalog/status", h.CatalogStatus)
		r.Post("/filter-catalog/recommendations", h.FilterRecommendations)
		r.Post("/validate-modules", h.ValidateModules)
		r.Post("/step-json", h.StepJSON)
	})
	return r
}
