package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/zlovtnik/leasebill/internal/models"
)

// RecoveryMiddleware recovers from panics and logs the error
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"request_id", GetRequestID(r.Context()),
						"tenant_id", GetTenantID(r.Context()),
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
						"method", r.Method,
					)
					writeEnvelope(w, http.StatusInternalServerError, models.ErrorResponse("INTERNAL_ERROR", "internal server error", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
