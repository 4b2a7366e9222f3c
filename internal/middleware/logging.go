// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using
// Logrus: method, path, duration, and remote address.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   method,
				"path":     path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a WebSocket client connecting.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr string, connID string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"conn":   connID,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs a WebSocket client disconnecting.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr string, connID string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"conn":   connID,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
