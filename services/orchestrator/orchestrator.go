// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the retrieval service for AleutianShop.
//
// This package contains the main Orchestrator type that coordinates all
// components of the service: HTTP routing, the local catalog store, the
// resilient marketplace client, the evidence ranker, and observability
// infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12310}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianShop/services/catalog/planner"
	"github.com/AleutianAI/AleutianShop/services/catalog/resilience"
	"github.com/AleutianAI/AleutianShop/services/catalog/resolver"
	"github.com/AleutianAI/AleutianShop/services/catalog/store"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"github.com/AleutianAI/AleutianShop/services/evidence"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/routes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the retrieval service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the retrieval service. Values
// can be populated from environment variables, config files, or
// programmatically for testing. All fields have workable defaults except
// UpstreamBaseURL: without it the marketplace client still constructs but
// every upstream call fails, which the resolver degrades around.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Full configuration
//	cfg := Config{
//	    Port:            12310,
//	    UpstreamBaseURL: "https://openapi.marketplace.example",
//	    UpstreamToken:   os.Getenv("MARKETPLACE_TOKEN"),
//	    CatalogDBPath:   "/data/catalog.db",
//	    WeaviateURL:     "http://localhost:8080",
//	    OTelEndpoint:    "localhost:4317",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// UpstreamBaseURL is the marketplace API root, without a trailing
	// slash. Empty leaves the service local-only: searches still answer
	// from the catalog, detail lookups degrade or 404.
	UpstreamBaseURL string

	// UpstreamToken is the static marketplace API credential.
	UpstreamToken string

	// UpstreamLanguage keys marketplace response language ("zh" or "en").
	// Default: "zh"
	UpstreamLanguage string

	// CatalogDBPath is the SQLite catalog location. Default:
	// "./data/catalog.db". ":memory:" works for tests.
	CatalogDBPath string

	// VocabularyPath points at a YAML phrase vocabulary for the query
	// fallback planner. Empty uses the built-in vocabulary only.
	VocabularyPath string

	// WeaviateURL is the passage store URL. If empty, evidence search
	// is disabled and its route is not registered.
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// APIKey protects all routes when set. Empty disables auth.
	APIKey string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// The shipped binary turns this on unless METRICS_ENABLED=false.
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The SQLite local catalog
//   - The resilient marketplace client and candidate resolver
//   - Optional Weaviate-backed evidence search
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config Config
	router *gin.Engine

	catalog  *store.SQLiteCatalogStore
	client   *upstream.Client
	resolver *resolver.Resolver

	weaviateClient *weaviate.Client
	passages       evidence.PassageStore
	ranker         *evidence.Ranker

	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new retrieval Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Opens the SQLite catalog
//  5. Builds the marketplace client, fallback planner, and resolver
//  6. Builds the evidence stack if Weaviate is configured
//  7. Sets up HTTP routes
//
// Weaviate and the embedding provider are optional: their absence
// disables evidence search but never fails construction. The catalog
// store is mandatory because every search depends on it.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run retrieval service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for retrieval")
	}

	// Initialize catalog, marketplace client, and resolver
	if err := s.initCatalog(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	// Initialize evidence search (optional)
	if err := s.initEvidence(); err != nil {
		slog.Warn("Evidence search initialization failed, continuing without it",
			"error", err)
		// Not fatal - catalog retrieval works without a passage store
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting retrieval server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
//
// Callers must not modify routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.UpstreamLanguage == "" {
		cfg.UpstreamLanguage = "zh"
	}
	if cfg.CatalogDBPath == "" {
		cfg.CatalogDBPath = "./data/catalog.db"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter to send spans to the configured
// collector over an insecure gRPC connection (appropriate for internal
// networks).
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("retrieval-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initCatalog opens the local catalog and builds the marketplace client,
// fallback planner, and candidate resolver on top of it.
//
// # Description
//
// The marketplace client's failure gate feeds the circuit-state gauge so
// dashboards see transitions without polling /health. The planner loads
// an optional YAML vocabulary on top of the built-in bilingual one.
//
// # Outputs
//
//   - error: Non-nil if the catalog store cannot be opened
func (s *service) initCatalog() error {
	catalog, err := store.OpenSQLite(s.config.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog store at %s: %w", s.config.CatalogDBPath, err)
	}
	s.catalog = catalog

	gateCfg := resilience.DefaultGateConfig()
	gateCfg.OnStateChange = func(from, to resilience.GateState) {
		slog.Warn("Marketplace circuit state changed",
			"from", from.String(), "to", to.String())
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.SetCircuitState("marketplace", int(to))
		}
	}

	s.client = upstream.New(upstream.Config{
		BaseURL:  s.config.UpstreamBaseURL,
		Token:    s.config.UpstreamToken,
		Language: s.config.UpstreamLanguage,
		Gate:     gateCfg,
	})

	var vocab *planner.Vocabulary
	if s.config.VocabularyPath != "" {
		vocab, err = planner.LoadVocabulary(s.config.VocabularyPath)
		if err != nil {
			slog.Warn("Failed to load query vocabulary, using built-in only",
				"path", s.config.VocabularyPath, "error", err)
		}
	}

	s.resolver = resolver.New(s.catalog, s.client,
		planner.New(s.config.UpstreamLanguage, vocab), 0)

	slog.Info("Catalog resolver initialized",
		"db_path", s.config.CatalogDBPath,
		"upstream", s.config.UpstreamBaseURL != "")

	return nil
}

// initEvidence builds the passage store and ranker.
//
// # Description
//
// Creates a Weaviate client if WeaviateURL is configured and an OpenAI
// embedder if credentials are available. A missing embedder only
// disables the semantic path; lexical ranking still works.
//
// # Outputs
//
//   - error: Non-nil if the Weaviate URL is set but unusable
func (s *service) initEvidence() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, evidence search disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	s.passages = evidence.NewWeaviatePassageStore(s.weaviateClient)

	var embedder evidence.EmbeddingProvider
	if e, err := evidence.NewOpenAIEmbedder(); err != nil {
		slog.Warn("Embedding provider unavailable, semantic fallback disabled",
			"error", err)
	} else {
		embedder = e
	}
	s.ranker = evidence.NewRanker(embedder)

	slog.Info("Evidence search initialized",
		"weaviate", weaviateURL,
		"semantic", embedder != nil)

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("retrieval-service"))
	s.router.Use(middleware.APIKeyMiddleware(s.config.APIKey))

	deps := routes.Deps{
		Resolver:      s.resolver,
		Offers:        s.catalog,
		Upstream:      s.client,
		Gate:          s.client.Gate(),
		EnableMetrics: s.config.EnableMetrics,
	}
	if s.passages != nil && s.ranker != nil {
		deps.Passages = s.passages
		deps.Ranker = s.ranker
	}

	routes.SetupRoutes(s.router, deps)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure.
func (s *service) cleanup() {
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			slog.Warn("Catalog store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
