// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the LivePreview HTTP service.
//
// This package wires every component of the service together: the policy
// validator, the normalization pipeline, snapshot history, the generation
// backend, prompt screening, observability, and the HTTP router.
//
// # Extension Points
//
// The service accepts extensions.ServiceOptions, so a deployment can supply:
//   - AuthProvider: Custom authentication (JWT, API keys)
//   - AuditLogger: Compliance audit logging
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 8000}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/LivePreview/pkg/extensions"
	"github.com/AleutianAI/LivePreview/services/llm"
	"github.com/AleutianAI/LivePreview/services/orchestrator/handlers"
	"github.com/AleutianAI/LivePreview/services/orchestrator/middleware"
	"github.com/AleutianAI/LivePreview/services/orchestrator/observability"
	"github.com/AleutianAI/LivePreview/services/orchestrator/routes"
	"github.com/AleutianAI/LivePreview/services/orchestrator/ttl"
	"github.com/AleutianAI/LivePreview/services/policy_engine"
	"github.com/AleutianAI/LivePreview/services/preview/generation"
	"github.com/AleutianAI/LivePreview/services/preview/genclient"
	"github.com/AleutianAI/LivePreview/services/preview/normalize"
	"github.com/AleutianAI/LivePreview/services/preview/policy"
	"github.com/AleutianAI/LivePreview/services/preview/prefs"
	"github.com/AleutianAI/LivePreview/services/preview/submission"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName identifies the service in traces.
const ServiceName = "livepreview"

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the LivePreview service.
//
// # Description
//
// Service abstracts the service lifecycle so the CLI and tests can drive it
// without knowing how the components are wired.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until ctx is canceled or the
	// server fails.
	//
	// # Description
	//
	// Cancelling ctx triggers a graceful shutdown bounded by
	// Config.ShutdownTimeout. Resources are released before Run returns.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or stops abnormally
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases resources without running the server. Safe to call
	// more than once.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the service configuration.
//
// # Description
//
// Config centralizes all configuration for the service. The CLI fills it
// from viper; tests fill it directly. Zero values take the defaults applied
// by New.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Persistent preferences and a remote generator
//	cfg := Config{
//	    PrefsPath:          "/var/lib/livepreview",
//	    GenerationEndpoint: "http://generator:8000",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int

	// CORSOrigins are the browser origins allowed to call the service.
	// Default: middleware.DefaultCORSOrigins
	CORSOrigins []string

	// AuthToken enables bearer-token authentication when non-empty.
	// Ignored when ServiceOptions supplies its own AuthProvider.
	AuthToken string

	// RateLimit throttles generation routes per client.
	// Default: middleware.DefaultRateLimitConfig()
	RateLimit middleware.RateLimitConfig

	// PolicyFile is a YAML policy. Empty uses the built-in policy.
	PolicyFile string

	// PolicyWatch reloads PolicyFile when it changes on disk.
	PolicyWatch bool

	// NormalizeProfile names the rule profile. Default: "standard"
	NormalizeProfile string

	// PrefsPath is the preferences database directory. Empty keeps
	// preferences in memory.
	PrefsPath string

	// SessionIdleTTL is how long an untouched session lives. Default: 30 minutes
	SessionIdleTTL time.Duration

	// SessionSweepInterval is how often idle sessions are swept.
	// Default: ttl.DefaultSchedulerConfig().Interval
	SessionSweepInterval time.Duration

	// SessionMaxHistory bounds snapshots kept per session. Zero keeps all.
	SessionMaxHistory int

	// LLMModel is the model used by the in-process generator.
	LLMModel string

	// GenerationEndpoint is a remote generation service. When set, session
	// generation is delegated to it instead of the in-process generator.
	GenerationEndpoint string

	// OTelEndpoint is the OpenTelemetry collector endpoint. Empty disables
	// OTLP export.
	OTelEndpoint string

	// TelemetryStdout prints spans to stdout when no OTLP endpoint is set.
	TelemetryStdout bool

	// GinMode sets the Gin framework mode: "debug", "release" or "test".
	GinMode string

	// ShutdownTimeout bounds graceful shutdown. Default: 10 seconds
	ShutdownTimeout time.Duration

	// Logger receives service logs. Default: slog.Default()
	Logger *slog.Logger

	// Registry receives Prometheus metrics. Default: a fresh registry with
	// the Go and process collectors.
	Registry *prometheus.Registry
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service owns the long-lived components and releases them in reverse
// order of construction.
//
// # Thread Safety
//
// Thread-safe after construction. Fields are read-only after New returns.
type service struct {
	config        Config
	opts          extensions.ServiceOptions
	logger        *slog.Logger
	router        *gin.Engine
	registry      *prometheus.Registry
	metrics       *observability.PreviewMetrics
	validator     *policy.Validator
	prefs         prefs.Store
	generator     *llm.Generator
	policyEngine  *policy_engine.PolicyEngine
	orchestrator  *submission.Orchestrator
	scheduler     ttl.Scheduler
	tracerCleanup func(context.Context)
	stopWatch     context.CancelFunc
	closeOnce     sync.Once
}

// =============================================================================
// Constructor
// =============================================================================

// New creates the service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Loads the policy and starts the file watcher if requested
//  4. Builds the normalization pipeline for the configured profile
//  5. Opens the preferences store
//  6. Creates the generator and the prompt screener
//  7. Creates the submission orchestrator and the idle-session sweeper
//  8. Sets up HTTP routes with extension options
//
// If opts is nil, DefaultOptions() is used, unless AuthToken is set in
// which case a StaticTokenProvider guards the API.
//
// # Outputs
//
//   - Service: Ready-to-run service
//   - error: Non-nil if any component fails to initialize; everything
//     created so far is released
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	s.logger = s.config.Logger
	s.registry = s.config.Registry

	if opts != nil {
		s.opts = opts.Normalize()
	} else {
		s.opts = extensions.DefaultOptions()
		if s.config.AuthToken != "" {
			s.opts.AuthProvider = extensions.NewStaticTokenProvider(s.config.AuthToken)
		}
		s.opts.AuditLogger = extensions.NewSlogAuditLogger(s.logger)
	}

	if err := s.init(); err != nil {
		s.cleanup()
		return nil, err
	}
	return s, nil
}

func (s *service) init() error {
	cleanup, err := s.initTracer()
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.metrics = observability.NewPreviewMetrics(s.registry)

	if err := s.initValidator(); err != nil {
		return err
	}

	pipeline, err := s.initPipeline()
	if err != nil {
		return err
	}

	if err := s.initPrefs(); err != nil {
		return err
	}

	gen, err := s.initGenerator()
	if err != nil {
		return err
	}

	s.policyEngine, err = policy_engine.NewPolicyEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	s.orchestrator, err = submission.New(submission.Config{
		Validator: s.validator,
		Pipeline:  pipeline,
		Store:     submission.NewStore(s.config.SessionMaxHistory),
		Prefs:     s.prefs,
		Generator: gen,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	if err := s.initScheduler(); err != nil {
		return err
	}

	s.initRouter()
	return nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until ctx is canceled or the server
// fails. Cleanup is automatic on return.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *service) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting LivePreview server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down LivePreview server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases resources without running the server.
func (s *service) Close() error {
	s.cleanup()
	return nil
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = middleware.DefaultCORSOrigins
	}
	if cfg.RateLimit == (middleware.RateLimitConfig{}) {
		cfg.RateLimit = middleware.DefaultRateLimitConfig()
	}
	if cfg.NormalizeProfile == "" {
		cfg.NormalizeProfile = normalize.DefaultProfile
	}
	defaults := ttl.DefaultSchedulerConfig()
	if cfg.SessionIdleTTL == 0 {
		cfg.SessionIdleTTL = defaults.IdleTTL
	}
	if cfg.SessionSweepInterval == 0 {
		cfg.SessionSweepInterval = defaults.Interval
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sends spans to the OTLP collector when OTelEndpoint is set, prints them
// when TelemetryStdout is set, and otherwise leaves the global no-op
// provider in place.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch {
	case s.config.OTelEndpoint != "":
		conn, connErr := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if connErr != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", connErr)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	case s.config.TelemetryStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return func(context.Context) {}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

// initValidator loads the policy and optionally watches the file.
func (s *service) initValidator() error {
	p := policy.DefaultPolicy()
	if s.config.PolicyFile != "" {
		loaded, err := policy.LoadPolicy(s.config.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		p = loaded
	}

	v, err := policy.NewValidator(p, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize validator: %w", err)
	}
	s.validator = v

	if s.config.PolicyFile != "" && s.config.PolicyWatch {
		ctx, cancel := context.WithCancel(context.Background())
		if err := v.WatchPolicyFile(ctx, s.config.PolicyFile); err != nil {
			cancel()
			return fmt.Errorf("failed to watch policy file: %w", err)
		}
		s.stopWatch = cancel
		s.logger.Info("Watching policy file", "path", s.config.PolicyFile)
	}
	return nil
}

func (s *service) initPipeline() (*normalize.Pipeline, error) {
	rules, err := normalize.Profile(s.config.NormalizeProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalization profile: %w", err)
	}
	pipeline, err := normalize.New(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build normalization pipeline: %w", err)
	}
	return pipeline, nil
}

// initPrefs opens BadgerDB when PrefsPath is set, otherwise memory.
func (s *service) initPrefs() error {
	if strings.TrimSpace(s.config.PrefsPath) == "" {
		s.prefs = prefs.NewMemory()
		return nil
	}
	cfg := prefs.DefaultBadgerConfig(s.config.PrefsPath)
	cfg.Logger = s.logger.With("component", "prefs")
	store, err := prefs.OpenBadger(cfg)
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}
	s.prefs = store
	s.logger.Info("Preferences persisted", "path", s.config.PrefsPath)
	return nil
}

// initGenerator creates the in-process generator, which always serves the
// /generate-ui and /vision-ui routes, and picks the backend for session
// generation.
func (s *service) initGenerator() (generation.Generator, error) {
	s.generator = llm.NewGenerator(llm.Config{
		Model:  s.config.LLMModel,
		Logger: s.logger,
	})
	if !s.generator.HasKey() {
		s.logger.Warn("No OpenAI API key configured; text prompts get the fallback component")
	}

	if s.config.GenerationEndpoint == "" {
		return s.generator, nil
	}
	client, err := genclient.New(s.config.GenerationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	s.logger.Info("Using remote generation service", "endpoint", client.BaseURL())
	return client, nil
}

func (s *service) initScheduler() error {
	s.scheduler = ttl.NewScheduler(s.orchestrator, ttl.SchedulerConfig{
		Interval: s.config.SessionSweepInterval,
		IdleTTL:  s.config.SessionIdleTTL,
	}, s.logger)
	if err := s.scheduler.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(ServiceName),
		middleware.RequestID(),
		middleware.AccessLog(s.metrics, s.logger),
		middleware.CORS(s.config.CORSOrigins),
	)

	routes.SetupRoutes(s.router, routes.Dependencies{
		Orchestrator: s.orchestrator,
		UI:           s.generator,
		Model:        s.generator,
		Screener:     s.policyEngine,
		Metrics:      s.metrics,
		Gatherer:     s.registry,
		Options:      s.opts,
		CORSOrigins:  s.config.CORSOrigins,
		RateLimit:    s.config.RateLimit,
	})
}

// cleanup releases all resources held by the service in reverse order.
func (s *service) cleanup() {
	s.closeOnce.Do(s.release)
}

func (s *service) release() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Warn("Session sweeper stop error", "error", err)
		}
	}
	if s.stopWatch != nil {
		s.stopWatch()
	}
	if s.prefs != nil {
		if err := s.prefs.Close(); err != nil {
			s.logger.Warn("Preferences close error", "error", err)
		}
	}
	if s.opts.AuditLogger != nil {
		if err := s.opts.AuditLogger.Flush(context.Background()); err != nil {
			s.logger.Warn("Audit flush error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var (
	_ Service                    = (*service)(nil)
	_ handlers.UIGenerator       = (*llm.Generator)(nil)
	_ handlers.ModelInfo         = (*llm.Generator)(nil)
	_ generation.Generator       = (*genclient.Client)(nil)
	_ ttl.SessionSweeper         = (*submission.Orchestrator)(nil)
	_ submission.Metrics         = (*observability.PreviewMetrics)(nil)
	_ middleware.RequestRecorder = (*observability.PreviewMetrics)(nil)
)
