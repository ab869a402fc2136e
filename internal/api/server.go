// Package api exposes the catalog over a read-mostly HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revloop/revloop/internal/config"
	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/orchestrator"
)

// Server is the HTTP front end over the catalog. It carries no crawl logic;
// every handler is a thin catalog client.
type Server struct {
	catalog orchestrator.Catalog
	cfg     config.ServerConfig
	logger  *zap.Logger
	router  chi.Router
	http    *http.Server
}

// New builds a Server with its routes registered.
func New(catalog orchestrator.Catalog, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP until Shutdown is called or the
// listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/", s.handleRegisterUser)
			r.Delete("/", s.handleDeregisterUser)
			r.Get("/facts", s.handleGetFacts)
			r.Get("/targets", s.handleListTargets)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.catalog.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("list users failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.catalog.RegisterUser(r.Context(), userID); err != nil {
		s.logger.Error("register user failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

func (s *Server) handleDeregisterUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.catalog.DeregisterUser(r.Context(), userID); err != nil {
		s.logger.Error("deregister user failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to deregister user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "deregistered"})
}

// factsResponse is the combined fact view for one user.
type factsResponse struct {
	UserID   string                     `json:"user_id"`
	Metadata *orchestrator.MetadataFact `json:"metadata,omitempty"`
	Reviews  []orchestrator.ReviewFact  `json:"reviews"`
}

func (s *Server) handleGetFacts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	resp := factsResponse{UserID: userID, Reviews: []orchestrator.ReviewFact{}}

	meta, ok, err := s.catalog.GetMetadata(r.Context(), userID)
	if err != nil {
		s.logger.Error("get metadata failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load facts")
		return
	}
	if ok {
		resp.Metadata = &meta
	}

	reviews, err := s.catalog.ListReviews(r.Context(), userID)
	if err != nil {
		s.logger.Error("list reviews failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load facts")
		return
	}
	if reviews != nil {
		resp.Reviews = reviews
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !validUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	targets, err := s.catalog.ListTargets(r.Context(), userID)
	if err != nil {
		s.logger.Error("list targets failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	if targets == nil {
		targets = []orchestrator.CrawlTarget{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "targets": targets})
}

func validUserID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, " /\\")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
