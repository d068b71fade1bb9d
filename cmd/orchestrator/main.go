// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the AleutianShop retrieval HTTP server.
//
// This is the main entry point for the containerized retrieval service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12310)
//   - MARKETPLACE_BASE_URL: upstream marketplace API root (optional; local-only without it)
//   - MARKETPLACE_TOKEN: upstream marketplace API credential
//   - MARKETPLACE_LANGUAGE: upstream response language, zh or en (default: zh)
//   - CATALOG_DB_PATH: SQLite catalog location (default: ./data/catalog.db)
//   - QUERY_VOCABULARY_PATH: YAML phrase vocabulary for query fallback (optional)
//   - WEAVIATE_SERVICE_URL: passage store URL; evidence search off without it
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//   - ORCHESTRATOR_API_KEY: static bearer key; auth disabled when empty
//   - METRICS_ENABLED: expose /metrics (default: true)
//   - GIN_MODE: debug, release, or test (optional)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_DIR: also write JSON logs to this directory (optional)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianShop/pkg/logging"
	"github.com/AleutianAI/AleutianShop/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   parseLogLevel(getEnvString("LOG_LEVEL", "info")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "orchestrator",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:             getEnvInt("ORCHESTRATOR_PORT", 12310),
		UpstreamBaseURL:  os.Getenv("MARKETPLACE_BASE_URL"),
		UpstreamToken:    os.Getenv("MARKETPLACE_TOKEN"),
		UpstreamLanguage: getEnvString("MARKETPLACE_LANGUAGE", "zh"),
		CatalogDBPath:    getEnvString("CATALOG_DB_PATH", "./data/catalog.db"),
		VocabularyPath:   os.Getenv("QUERY_VOCABULARY_PATH"),
		WeaviateURL:      os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint:     getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
		APIKey:           os.Getenv("ORCHESTRATOR_API_KEY"),
		EnableMetrics:    getEnvBool("METRICS_ENABLED", true),
		GinMode:          os.Getenv("GIN_MODE"),
	}

	slog.Info("Starting retrieval service",
		"port", cfg.Port,
		"upstream_configured", cfg.UpstreamBaseURL != "",
		"catalog_db", cfg.CatalogDBPath,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create retrieval service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Retrieval service error: %v", err)
	}
}

// parseLogLevel maps the LOG_LEVEL variable onto logging levels.
func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
