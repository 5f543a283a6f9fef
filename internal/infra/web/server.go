package web

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the three operations callers see — submit, poll, retry —
// plus health and metrics. Everything interesting happens in the use case;
// this layer is thin glue.
type Server struct {
	compareUC ComparisonService
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(compareUC ComparisonService, apiKey string, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		compareUC: compareUC,
		apiKey:    apiKey,
		log:       &compLog,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/compare", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.handleSubmit)
		r.Get("/{jobID}", s.handleProgress)
		r.Post("/{jobID}/retry", s.handleRetry)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// authMiddleware provides simple Bearer token authentication for the API.
// An empty configured key disables auth, which is only sensible in dev.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}
		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
