package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/delivery/http/handler"
	"github.com/user/photo-resolver/internal/delivery/http/middleware"
)

func New(h *handler.Handler, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/health", h.HandleHealthCheck)

	r.Group(func(r chi.Router) {
		// Expired requests cancel their in-flight resolutions and get a 504.
		if requestTimeout > 0 {
			r.Use(chimw.Timeout(requestTimeout))
		}
		r.Post("/api/resolve", h.HandleResolve)
		r.Post("/fotos", h.HandleLegacyPhotos)
	})
	r.Get("/api/status", h.HandleGetStatus)

	return r
}
