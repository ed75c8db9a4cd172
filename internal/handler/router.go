package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/util"
)

const healthTimeout = 3 * time.Second

// HealthChecker reports the health of each backing dependency by name.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// requireHTTPS rejects any request that wasn’t made over TLS
func requireHTTPS(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				writeJSON(w, logger, http.StatusUpgradeRequired, map[string]string{"error": "https required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON writes v with status code. The client may already be gone, so a
// failed write is only logged.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", util.Int("status_code", code), util.ErrorField(err))
	}
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(authHandler *AuthHandler, health HealthChecker, cfg *config.ServerConfig, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.EnableTLS {
		router.Use(requireHTTPS(logger))
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/health", healthHandler(health, logger))
	router.Handle("/metrics", promhttp.Handler())

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r)
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusNotFound, map[string]string{"error": "endpoint not found"})
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	return router
}

func healthHandler(health HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		checks := map[string]string{}
		status, code := "healthy", http.StatusOK
		for name, err := range health.HealthCheck(ctx) {
			if err != nil {
				logger.Warn("Dependency unhealthy", util.String("dependency", name), util.ErrorField(err))
				checks[name] = "unhealthy"
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "healthy"
		}

		writeJSON(w, logger, code, map[string]interface{}{
			"status":       status,
			"service":      "phone-auth-service",
			"dependencies": checks,
		})
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
