package router

import (
	"log/slog"
	"net/http"

	billingrouter "github.com/zlovtnik/leasebill/internal/billing/router"
	"github.com/zlovtnik/leasebill/internal/handlers"
	"github.com/zlovtnik/leasebill/internal/middleware"
)

// Router holds all route handlers
type Router struct {
	mux           *http.ServeMux
	jwtSecret     string
	corsOrigins   []string
	logger        *slog.Logger
	healthHandler *handlers.HealthHandler
	billing       billingrouter.BillingHandlerSet
}

// NewRouter creates a new Router
func NewRouter(
	jwtSecret string,
	corsOrigins []string,
	logger *slog.Logger,
	healthHandler *handlers.HealthHandler,
	billing billingrouter.BillingHandlerSet,
) *Router {
	return &Router{
		mux:           http.NewServeMux(),
		jwtSecret:     jwtSecret,
		corsOrigins:   corsOrigins,
		logger:        logger,
		healthHandler: healthHandler,
		billing:       billing,
	}
}

// Setup configures all routes
func (r *Router) Setup() http.Handler {
	// Health endpoints (no auth required)
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)

	billingrouter.NewBillingRouter(r.mux, r.billing).RegisterRoutes()

	var handler http.Handler = r.mux

	// Auth middleware (skip for health endpoints and OPTIONS)
	handler = r.authMiddleware(handler)

	// CORS - applied after auth so it can set headers for preflight before auth rejects
	handler = middleware.CORSMiddleware(middleware.DefaultCORSConfig(r.corsOrigins))(handler)

	handler = middleware.LoggingMiddleware(r.logger)(handler)
	handler = middleware.RecoveryMiddleware(r.logger)(handler)

	return handler
}

// authMiddleware wraps the auth middleware but skips health endpoints and OPTIONS requests
func (r *Router) authMiddleware(next http.Handler) http.Handler {
	authHandler := middleware.AuthMiddleware(r.jwtSecret)(next)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/health" || req.URL.Path == "/ready" || req.Method == http.MethodOptions {
			next.ServeHTTP(w, req)
			return
		}
		authHandler.ServeHTTP(w, req)
	})
}
