package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// setupRoutes configures the webhook ingress route, the admin API surface,
// and the unauthenticated health/info endpoints.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/", s.infoHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/webhooks", s.webhookHandler).Methods(http.MethodPost)

	admin := s.router.PathPrefix("/api").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/connect", s.connectHandler).Methods(http.MethodPost)
	admin.HandleFunc("/repos/{userID}/{slug}", s.repoStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/repos/{userID}/{slug}", s.disconnectHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/repos/{userID}/{slug}/status", s.updateStatusHandler).Methods(http.MethodPut)
	admin.HandleFunc("/repos/{userID}/{slug}/custom-skills", s.updateCustomSkillsHandler).Methods(http.MethodPut)
	admin.HandleFunc("/repos/{userID}/{slug}/interview", s.interviewStepHandler).Methods(http.MethodPost)

	s.router.Use(loggingMiddleware)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
		"uptime": time.Since(startTime).String(),
	})
}

func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "techy",
		"description": "automated code review over PR/MR lifecycle webhooks",
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write json response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
