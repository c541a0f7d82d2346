// Package router assembles the HTTP surface: public health and metrics
// endpoints, and the JWT-protected booking workflow under /portal.
package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/dangkhoa18052004/spa-portal/internal/http/middleware"
	"github.com/dangkhoa18052004/spa-portal/internal/portal"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	PortalHandler      *portal.Handler
	AuthSecret         []byte
	LoginURL           string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ReadyCheck is probed by /health. Nil means always ready.
	ReadyCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.ReadyCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Booking workflow (protected by the session JWT)
	if cfg.PortalHandler != nil {
		r.Route("/portal", func(p chi.Router) {
			p.Use(httpmiddleware.Auth(cfg.AuthSecret, cfg.LoginURL))
			p.Mount("/", cfg.PortalHandler.Routes())
		})
	}

	return r
}

func healthHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
