// Package api provides the HTTP REST surface for the lab clinic auth core.
//
// Every route not explicitly marked public passes through the authorization
// gateway middleware before reaching a handler: bearer token verification,
// caller resolution, dynamic resource lookup and the role/permission check,
// all re-resolved from the store on each request.
//
// The server follows the usual lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/config"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum wait for in-flight requests on close.
const gracefulShutdownTimeout = 10 * time.Second

// tokenCleanupInterval is how often expired refresh tokens are reaped.
const tokenCleanupInterval = time.Hour

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Users    auth.UserRepository
	Tokens   auth.TokenRepository
	Perms    *auth.SQLitePermissionRepository
	Service  *auth.Service
	Audit    audit.Repository
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.ServerConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	users   auth.UserRepository
	tokens  auth.TokenRepository
	perms   *auth.SQLitePermissionRepository
	service *auth.Service
	audit   audit.Repository
	version string

	mux    *chi.Mux
	server *http.Server
	cancel context.CancelFunc
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil || deps.Tokens == nil || deps.Perms == nil {
		return nil, fmt.Errorf("credential and permission stores are required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("auth service is required")
	}

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		users:   deps.Users,
		tokens:  deps.Tokens,
		perms:   deps.Perms,
		service: deps.Service,
		audit:   deps.Audit,
		version: deps.Version,
	}, nil
}

// Start builds the router and begins listening in a background goroutine.
// It also launches the periodic expired-token cleanup.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.mux = s.buildRouter()

	go s.cleanupTokensLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.mux,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// cleanupTokensLoop reaps expired refresh tokens periodically until the
// context is cancelled.
func (s *Server) cleanupTokensLoop(ctx context.Context) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := s.tokens.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("expired token cleanup failed", "error", err)
				continue
			}
			if count > 0 {
				s.logger.Info("expired refresh tokens deleted", "count", count)
			}
		}
	}
}
