// Package rest provides the HTTP API server.
package rest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/api/rest/middleware"
	"github.com/audit-engine/go-core/internal/audit"
	"github.com/audit-engine/go-core/internal/auth"
	"github.com/audit-engine/go-core/internal/events"
	"github.com/audit-engine/go-core/internal/metrics"
	"github.com/audit-engine/go-core/internal/rules"
	"github.com/audit-engine/go-core/internal/ws"
)

// Config configures the REST server.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableCORS   bool
}

// DefaultConfig returns the default REST server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		EnableCORS:   true,
	}
}

// Server is the REST API server.
type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	metrics    *metrics.Collector

	authService   *auth.Service
	eventService  *events.Service
	ruleService   *rules.Service
	ledger        *audit.Ledger
	hub           *ws.Hub
	authenticator *middleware.Authenticator
}

// New creates the server. hub and m may be nil.
func New(cfg Config, authService *auth.Service, eventService *events.Service, ruleService *rules.Service, ledger *audit.Ledger, hub *ws.Hub, m *metrics.Collector, logger *zap.Logger) (*Server, error) {
	if authService == nil || eventService == nil || ruleService == nil || ledger == nil {
		return nil, fmt.Errorf("all services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:        cfg,
		router:        mux.NewRouter(),
		logger:        logger,
		metrics:       m,
		authService:   authService,
		eventService:  eventService,
		ruleService:   ruleService,
		ledger:        ledger,
		hub:           hub,
		authenticator: middleware.NewAuthenticator(authService, logger),
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}

	// Unauthenticated endpoints.
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	s.router.HandleFunc("/v1/auth/login", s.loginHandler).Methods("POST")

	// WebSocket upgrade carries the token in a query parameter because
	// browser clients cannot set headers on the upgrade request.
	if s.hub != nil {
		s.router.HandleFunc("/v1/events/stream", s.streamHandler).Methods("GET")
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticator.Middleware)

	v1.HandleFunc("/auth/logout", s.logoutHandler).Methods("POST")

	v1.HandleFunc("/events", s.authenticator.RequireRole(auth.RoleViewer, s.listEventsHandler)).Methods("GET")
	v1.HandleFunc("/events", s.authenticator.RequireRole(auth.RoleAnalyst, s.ingestEventHandler)).Methods("POST")
	v1.HandleFunc("/events/stats/top-rules", s.authenticator.RequireRole(auth.RoleViewer, s.topRulesHandler)).Methods("GET")

	v1.HandleFunc("/rules", s.authenticator.RequireRole(auth.RoleViewer, s.listRulesHandler)).Methods("GET")
	v1.HandleFunc("/rules", s.authenticator.RequireRole(auth.RoleAnalyst, s.createRuleHandler)).Methods("POST")
	v1.HandleFunc("/rules/{id:[0-9]+}", s.authenticator.RequireRole(auth.RoleViewer, s.getRuleHandler)).Methods("GET")
	v1.HandleFunc("/rules/{id:[0-9]+}", s.authenticator.RequireRole(auth.RoleAnalyst, s.updateRuleHandler)).Methods("PUT")
	v1.HandleFunc("/rules/{id:[0-9]+}", s.authenticator.RequireRole(auth.RoleAdmin, s.deleteRuleHandler)).Methods("DELETE")
	v1.HandleFunc("/rules/{id:[0-9]+}/approve", s.authenticator.RequireRole(auth.RoleAdmin, s.approveRuleHandler)).Methods("POST")
	v1.HandleFunc("/rules/{id:[0-9]+}/pause", s.authenticator.RequireRole(auth.RoleAdmin, s.pauseRuleHandler)).Methods("POST")
	v1.HandleFunc("/rules/{id:[0-9]+}/resume", s.authenticator.RequireRole(auth.RoleAdmin, s.resumeRuleHandler)).Methods("POST")

	v1.HandleFunc("/audit", s.authenticator.RequireRole(auth.RoleAdmin, s.listAuditHandler)).Methods("GET")
	v1.HandleFunc("/audit/verify", s.authenticator.RequireRole(auth.RoleAdmin, s.verifyAuditHandler)).Methods("GET")
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("starting REST API server",
		zap.Int("port", s.config.Port),
		zap.Bool("cors_enabled", s.config.EnableCORS),
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// streamHandler authenticates via the token query parameter, then hands
// the connection to the hub.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "missing token")
		return
	}
	if _, err := s.authService.Validate(token); err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	s.hub.ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		)

		if s.metrics != nil {
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			s.metrics.RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Observe(duration.Seconds())
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				WriteError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
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

// Hijack passes through to the underlying writer so the WebSocket
// upgrade works behind the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
