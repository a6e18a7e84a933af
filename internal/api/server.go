// Package api exposes the camera command surface over HTTP with huma.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/camctl/internal/api/models"
	"github.com/smazurov/camctl/internal/commands"
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/logging"
	"github.com/smazurov/camctl/internal/version"
)

const authRealm = `Basic realm="camctl API"`

// Server is the HTTP binding of a commands.Dispatcher.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	dispatcher *commands.Dispatcher
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Dispatcher        *commands.Dispatcher
	EventBus          *events.Bus
	PrometheusHandler http.Handler // optional, served at /metrics without auth
}

// basicAuthMiddleware enforces HTTP basic authentication on operations that
// declare a security requirement. SSE clients that cannot set headers may
// pass base64 credentials in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		deny := func(msg string, errs ...error) {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
		}

		encoded := ctx.Query("auth")
		if authHeader := ctx.Header("Authorization"); authHeader != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(authHeader, prefix) {
				deny("Invalid authentication type")
				return
			}
			encoded = authHeader[len(prefix):]
		}
		if encoded == "" {
			deny("Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny("Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny("Invalid credentials format")
			return
		}
		if user != username || pass != password {
			deny("Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer creates the API server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("camctl API", version.String())
	config.Info.Description = "Camera preview, still capture, focus and recording control"
	// relative paths in the OpenAPI document work with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:        api,
		mux:        mux,
		dispatcher: opts.Dispatcher,
		eventBus:   opts.EventBus,
		options:    opts,
		logger:     logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting camctl API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, event streams included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerCameraRoutes()
	s.registerEventRoutes()
	s.registerLoggingRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
