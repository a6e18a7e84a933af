package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camctl/internal/logging"
)

// HTTPLoggingMiddleware logs HTTP requests with appropriate log levels based on status codes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if op := ctx.Operation(); op != nil {
		logAttrs = append(logAttrs, slog.String("operation", op.OperationID))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case method == http.MethodOptions, method == http.MethodGet && status < 400:
		level = slog.LevelDebug
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", logAttrs...)
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig allows any origin; the camera UI is usually served from
// a different host than the controller.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

type corsHeaders struct {
	origin, methods, headers, maxAge string
}

func (c CORSConfig) headers() corsHeaders {
	return corsHeaders{
		origin:  c.AllowOrigin,
		methods: strings.Join(c.AllowMethods, ", "),
		headers: strings.Join(c.AllowHeaders, ", "),
		maxAge:  strconv.Itoa(c.MaxAge),
	}
}

func (h corsHeaders) apply(set func(name, value string)) {
	set("Access-Control-Allow-Origin", h.origin)
	set("Access-Control-Allow-Methods", h.methods)
	set("Access-Control-Allow-Headers", h.headers)
	set("Access-Control-Max-Age", h.maxAge)
}

// NewCORSMiddleware sets CORS headers on every huma response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	h := config.headers()
	return func(ctx huma.Context, next func(huma.Context)) {
		h.apply(ctx.SetHeader)
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests, which huma never routes.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	h := config.headers()
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		h.apply(w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
