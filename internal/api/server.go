// Package api exposes the resume analysis service over HTTP: JSON
// endpoints for accounts, model configurations and uploads, and the
// Server-Sent Events streams that deliver a running analysis.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/resumind/resumind/internal/auth"
	"github.com/resumind/resumind/internal/core"
	"github.com/resumind/resumind/internal/llm"
	"github.com/resumind/resumind/internal/logging"
	"github.com/resumind/resumind/internal/run"
	"github.com/resumind/resumind/internal/workflow"
)

const appName = "Resumind"

// Settings are the request-handling knobs that come from configuration.
type Settings struct {
	// TestEmail and TestPassword define the built-in demo account; it
	// is created on first login. Empty TestEmail disables it.
	TestEmail    string
	TestPassword string

	// KeepConversations is how many conversations a user retains;
	// starting an analysis prunes older ones. Default 10.
	KeepConversations int

	// MaxResumes is how many uploaded files a user retains. Default 5.
	MaxResumes int

	// MaxUploadBytes caps one multipart upload. Default 10 MiB.
	MaxUploadBytes int64

	// Temperature is passed to the model on every workflow step.
	Temperature float64

	// CORSOrigins lists allowed origins; empty or "*" allows any.
	CORSOrigins []string
}

// Options wires a Server. Store, Registry, Issuer, Uploads and Prompts
// are required.
type Options struct {
	Store    core.Store
	Registry *run.Registry
	Issuer   *auth.TokenIssuer
	Uploads  *Uploads
	Prompts  *workflow.Prompts

	// Steps is the workflow manifest. Defaults to the built-in one.
	Steps []workflow.Step

	// NewStreamer builds the model client for one analysis run.
	// Defaults to llm.New; tests substitute a scripted streamer.
	NewStreamer func(ctx context.Context, cfg *core.LLMConfig) (llm.Streamer, error)

	// BaseContext scopes background analysis runs, which outlive the
	// requests that start them. Cancelling it stops every run.
	// Defaults to context.Background().
	BaseContext context.Context

	Settings Settings
	Logger   *logging.Logger
	Version  string
}

// Server handles the HTTP API.
type Server struct {
	router      chi.Router
	store       core.Store
	registry    *run.Registry
	issuer      *auth.TokenIssuer
	uploads     *Uploads
	prompts     *workflow.Prompts
	steps       []workflow.Step
	finalStep   int
	newStreamer func(ctx context.Context, cfg *core.LLMConfig) (llm.Streamer, error)
	baseCtx     context.Context
	settings    Settings
	logger      *logging.Logger
	version     string
}

// NewServer validates the wiring and builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, core.ErrInternal("missing_store", "api: store is required")
	}
	if opts.Registry == nil {
		return nil, core.ErrInternal("missing_registry", "api: run registry is required")
	}
	if opts.Issuer == nil {
		return nil, core.ErrInternal("missing_issuer", "api: token issuer is required")
	}
	if opts.Uploads == nil {
		return nil, core.ErrInternal("missing_uploads", "api: uploads store is required")
	}
	if opts.Prompts == nil {
		return nil, core.ErrInternal("missing_prompts", "api: prompts are required")
	}

	steps := opts.Steps
	if steps == nil {
		var err error
		steps, err = workflow.Steps()
		if err != nil {
			return nil, err
		}
	}

	newStreamer := opts.NewStreamer
	if newStreamer == nil {
		newStreamer = llm.New
	}

	settings := opts.Settings
	if settings.KeepConversations <= 0 {
		settings.KeepConversations = 10
	}
	if settings.MaxResumes <= 0 {
		settings.MaxResumes = 5
	}
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = 10 << 20
	}

	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       opts.Store,
		registry:    opts.Registry,
		issuer:      opts.Issuer,
		uploads:     opts.Uploads,
		prompts:     opts.Prompts,
		steps:       steps,
		finalStep:   workflow.FinalStep(steps),
		newStreamer: newStreamer,
		baseCtx:     baseCtx,
		settings:    settings,
		logger:      logger,
		version:     version,
	}
	s.router = s.setupRouter()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(cors.New(s.corsOptions()).Handler)

	// Bounds ordinary request handling. The SSE endpoints are exempt:
	// a stream stays open for as long as the analysis runs.
	reqTimeout := middleware.Timeout(60 * time.Second)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		r.With(reqTimeout).Post("/auth/login", s.handleLogin)

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.issuer, s.store, s.logger))

			r.With(reqTimeout).Get("/auth/me", s.handleMe)

			r.Route("/llm", func(r chi.Router) {
				r.Use(reqTimeout)
				r.Get("/providers", s.handleListProviders)
				r.Get("/configs", s.handleListConfigs)
				r.Post("/configs", s.handleCreateConfig)
				r.Put("/configs/{configID}", s.handleUpdateConfig)
				r.Delete("/configs/{configID}", s.handleDeleteConfig)
				r.Put("/configs/{configID}/default", s.handleSetDefaultConfig)
			})

			r.Route("/resume", func(r chi.Router) {
				r.Use(reqTimeout)
				r.Get("/", s.handleActiveResume)
				r.Post("/", s.handleUploadResume)
				r.Get("/list", s.handleListResumes)
				r.Get("/preview", s.handlePreviewActiveResume)
				r.Put("/{resumeID}/active", s.handleSetActiveResume)
				r.Delete("/{resumeID}", s.handleDeleteResume)
				r.Get("/{resumeID}/preview", s.handlePreviewResume)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/analyze", s.handleAnalyze)
				r.With(reqTimeout).Get("/history", s.handleHistory)
				r.Route("/conversation/{conversationID}", func(r chi.Router) {
					r.Get("/stream", s.handleConversationStream)
					r.Group(func(r chi.Router) {
						r.Use(reqTimeout)
						r.Get("/", s.handleGetConversation)
						r.Delete("/", s.handleDeleteConversation)
						r.Post("/stop", s.handleStopConversation)
					})
				})
			})
		})
	})

	return r
}

// corsOptions builds the CORS policy. The frontend is served from a
// different origin in development, so credentials stay enabled and the
// default policy echoes any origin.
func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(s.settings.CORSOrigins) == 0 || slices.Contains(s.settings.CORSOrigins, "*") {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = s.settings.CORSOrigins
	}
	return opts
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return core.ErrValidation("bad_json", "Invalid request body").WithCause(err)
	}
	return nil
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleRoot identifies the service.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"name":    appName,
		"version": s.version,
	})
}

// ListenAndServe starts the HTTP server and shuts it down gracefully
// when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
