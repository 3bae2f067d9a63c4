// Package httpserver is the ops-only HTTP surface binding /healthz and
// /metrics, distinct from the out-of-scope dashboard: a gorilla/mux
// router, request-ID and logging middleware, graceful Shutdown, and a
// local-only bind by default.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/elcrypto/pumpguard/internal/config"
)

// Server is the read-only ops HTTP server.
type Server struct {
	router *mux.Router
	srv    *http.Server
	log    zerolog.Logger
}

// HealthChecker is the subset of store.Store the /healthz handler needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// New builds a Server bound to cfg.Host:cfg.Port, serving /healthz (via
// st.HealthCheck) and /metrics (the Prometheus registry's default
// handler) behind a single mux.Router.
func New(cfg config.HTTPConfig, st HealthChecker, log zerolog.Logger) *Server {
	log = log.With().Str("component", "httpserver").Logger()
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(log))

	router.HandleFunc("/healthz", healthHandler(st)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		log:    log,
		srv: &http.Server{
			Addr: addr, Handler: router,
			ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
		},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("ops http server starting")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func healthHandler(st HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "storage unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &statusWrapper{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapper, r)
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
				Int("status", wrapper.status).Dur("duration", time.Since(start)).Msg("request")
		})
	}
}

type statusWrapper struct {
	http.ResponseWriter
	status int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
