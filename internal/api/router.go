package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ndewijer/strategy-index-backend/internal/api/handlers"
	custommiddleware "github.com/ndewijer/strategy-index-backend/internal/api/middleware"
	"github.com/ndewijer/strategy-index-backend/internal/catalog"
	"github.com/ndewijer/strategy-index-backend/internal/config"
	"github.com/ndewijer/strategy-index-backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	performanceService *service.PerformanceService,
	cat *catalog.Catalog,
	cfg *config.Config,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger(log))
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
			r.Get("/cache", systemHandler.Cache)
		})

		r.Route("/market-performance", func(r chi.Router) {
			marketHandler := handlers.NewMarketHandler(performanceService, cat)
			r.Get("/", marketHandler.Performance)
			r.Get("/tickers", marketHandler.Tickers)
		})
	})

	return r
}
