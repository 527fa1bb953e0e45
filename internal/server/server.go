package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/flash-resume/internal/compiler"
	"github.com/jonathan/flash-resume/internal/config"
	"github.com/jonathan/flash-resume/internal/rendering"
	"github.com/jonathan/flash-resume/internal/server/ratelimit"
	"github.com/jonathan/flash-resume/internal/templates"
	"go.uber.org/zap"
)

// Compiler turns a staged job into PDF bytes.
type Compiler interface {
	Compile(ctx context.Context, job compiler.Job) ([]byte, error)
	Version(ctx context.Context) (string, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	store           *templates.Store
	compiler        Compiler
	rateLimiter     *ratelimit.Limiter
	log             *zap.Logger
	defaultTemplate string
	allowedOrigins  map[string]bool
	renderOptions   rendering.Options
}

// Config holds server configuration
type Config struct {
	Service   config.Config
	Logger    *zap.Logger
	Compiler  Compiler          // nil runs the Typst binary named in Service
	RateLimit *ratelimit.Config // nil reads RATE_LIMIT_* from the environment
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if err := cfg.Service.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	comp := cfg.Compiler
	if comp == nil {
		comp = compiler.New(compiler.Config{
			Binary:        cfg.Service.CompilerBinary,
			Timeout:       cfg.Service.Timeout(),
			MaxConcurrent: cfg.Service.MaxConcurrent,
			QueueTimeout:  cfg.Service.Timeout(),
		}, log.Named("compiler"))
	}

	rateCfg := cfg.RateLimit
	if rateCfg == nil {
		rateCfg = ratelimit.LoadConfig()
	}

	s := &Server{
		store:           templates.NewStore(cfg.Service.TemplatesDir, log.Named("templates")),
		compiler:        comp,
		rateLimiter:     ratelimit.NewLimiter(rateCfg),
		log:             log,
		defaultTemplate: cfg.Service.DefaultTemplate,
		allowedOrigins:  make(map[string]bool, len(cfg.Service.CORSOrigins)),
		renderOptions:   rendering.Options{EscapeStrings: cfg.Service.EscapeStrings},
	}
	for _, origin := range cfg.Service.CORSOrigins {
		s.allowedOrigins[origin] = true
	}

	// Setup router
	mux := http.NewServeMux()

	// Template endpoints
	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("GET /templates/{$}", s.handleListTemplates)
	mux.HandleFunc("GET /templates/{name}", s.handleGetTemplate)
	mux.HandleFunc("GET /templates/{name}/functions", s.handleGetFunctions)
	mux.HandleFunc("GET /templates/{name}/content", s.handleGetContent)
	mux.HandleFunc("POST /templates/{name}/compile", s.handleCompile)
	mux.HandleFunc("POST /templates/{name}/compile-json", s.handleCompileJSON)
	mux.HandleFunc("PUT /templates/{name}/config", s.handleUpdateConfig)
	mux.HandleFunc("GET /templates/{name}/preview", s.handlePreview)

	// Legacy endpoints, bound to the default template
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /compile", s.handleLegacyCompile)
	mux.HandleFunc("GET /template-content", s.handleLegacyTemplateContent)
	mux.HandleFunc("GET /editable-content", s.handleEditableContent)
	mux.HandleFunc("GET /config", s.handleLegacyConfig)
	mux.HandleFunc("POST /update-config", s.handleLegacyUpdateConfig)
	mux.HandleFunc("POST /compile-template-direct", s.handleCompileDirect)
	mux.HandleFunc("GET /health", s.handleHealth)

	// The write timeout covers a full wait for a compiler slot, a full compile and cleanup.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg.Service.Timeout()),
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

func writeTimeout(compileTimeout time.Duration) time.Duration {
	return 2*compileTimeout + 30*time.Second
}

// Handler returns the server's full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests and shuts down on SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.rateLimiter.Stop()
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop rate limiter cleanup goroutine
	defer s.rateLimiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// Close stops background work without serving. Used when the server is only exercised
// through Handler.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers for the configured editor origins
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, detail string) {
	s.jsonResponse(w, status, map[string]string{"detail": detail})
}

// failure maps err to its status and writes it as an error response.
func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Debug("request rejected", fields...)
	}
	s.errorResponse(w, status, err.Error())
}

// pdfResponse writes a compiled artifact for inline display.
func (s *Server) pdfResponse(w http.ResponseWriter, name string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s-resume.pdf", name))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		s.log.Warn("failed to write PDF response", zap.String("template", name), zap.Error(err))
	}
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID string, info ratelimit.Info) {
	response := map[string]any{
		"detail":    "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.log.Warn("rate limit exceeded",
		zap.String("client", clientID),
		zap.Int("limit", info.Limit),
		zap.Time("reset_at", info.ResetTime),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
