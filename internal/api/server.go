// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// CoordinatorInterface defines the refresh operations exposed over HTTP
type CoordinatorInterface interface {
	Status() types.UpdateStatus
	Metrics() types.ProcessedMetrics
	Snapshot() *types.AccountSnapshot
	PerformUpdate(ctx context.Context, force bool)
	ToggleAutoUpdate(ctx context.Context) bool
	SetDateRange(r types.DateRange) types.ProcessedMetrics
	DateRange() types.DateRange
}

// SessionInterface defines the account selection operations exposed over HTTP
type SessionInterface interface {
	Current(ctx context.Context) string
	SelectAccount(ctx context.Context, accountID string, authorized []string) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	coordinator CoordinatorInterface
	sessions    SessionInterface
	accounts    []string
	config      *ServerConfig
	logger      *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RPS             int
	// Accounts the session endpoint accepts switches to
	Accounts []string
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, coordinator CoordinatorInterface, sessions SessionInterface) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		coordinator: coordinator,
		sessions:    sessions,
		accounts:    config.Accounts,
		config:      config,
		logger:      logging.GetGlobalLogger().WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RPS)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	readTimeout := s.config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := s.config.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}
	idleTimeout := s.config.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 120 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/account", s.handleCurrentAccount).Methods("GET")
	api.HandleFunc("/account", s.handleSelectAccount).Methods("POST")
	api.HandleFunc("/daterange", s.handleSetDateRange).Methods("POST")
	api.HandleFunc("/autoupdate/toggle", s.handleToggleAutoUpdate).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "account-sync",
	})
}

// Router exposes the configured handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
