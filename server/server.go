package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Server is the HTTP transport over the auth service.
type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.Service
	logger zerolog.Logger
}

func New(cfg config.Config, authService *auth.Service, logger zerolog.Logger) (*Server, error) {
	if authService == nil {
		return nil, errors.New("[Server New] auth service is required")
	}

	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		auth:   authService,
		logger: logger,
		env:    cfg.GetEnv(),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			s.logger.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}
