package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/P40-traveler/pathce/pkg/config"
)

// Server exposes summary construction and cardinality estimation over HTTP.
// Summaries live in an in-memory store keyed by uuid; each summary is
// immutable once built, so the estimate path takes no locks beyond the
// store lookup.
type Server struct {
	cfg   *config.Config
	store *Store
}

// New creates a server around a configuration.
func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg, store: NewStore()}
}

// Handler builds the full HTTP handler: routes, request logging, CORS.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	summaries := api.PathPrefix("/summaries").Subrouter()
	summaries.HandleFunc("", s.handleListSummaries).Methods("GET")
	summaries.HandleFunc("", s.handleBuildSummary).Methods("POST")
	summaries.HandleFunc("/load", s.handleLoadSummary).Methods("POST")
	summaries.HandleFunc("/{summaryId}", s.handleGetSummary).Methods("GET")
	summaries.HandleFunc("/{summaryId}", s.handleDeleteSummary).Methods("DELETE")
	summaries.HandleFunc("/{summaryId}/save", s.handleSaveSummary).Methods("POST")
	summaries.HandleFunc("/{summaryId}/estimate", s.handleEstimate).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(loggingMiddleware(router))
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // summary builds can be slow
	}
	log.Info().Str("addr", addr).Msg("Estimation service listening")
	return srv.ListenAndServe()
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request processed")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
