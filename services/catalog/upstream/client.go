// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package upstream implements the client for the upstream marketplace
// API: product search, product detail, and store detail, all read-only
// and authenticated by a static credential.
//
// The marketplace is unreliable and rate-limited, so every operation is
// wrapped in the resilience primitives: a shared FailureGate decides
// whether the call may proceed at all, a ResultCache short-circuits identical
// lookups, a client-side rate limiter keeps retries inside the quota,
// and a BackoffExecutor retries transient failures with jitter.
//
// Errors escaping this package are always one of the typed kinds:
// ErrCircuitOpen, ErrTimeout, ErrNotFound, *HTTPError, *APIError, or
// *TransportError.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianShop/services/catalog/resilience"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var upstreamTracer = otel.Tracer("aleutian.shop.catalog.upstream")

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the marketplace client.
type Config struct {
	// BaseURL is the marketplace API root, without a trailing slash.
	BaseURL string

	// Token is the static API credential sent as a bearer token.
	Token string

	// Language keys the response language ("zh" or "en").
	// Default: "zh"
	Language string

	// RequestsPerSecond is the client-side rate limit applied before any
	// attempt, retries included. Default: 5
	RequestsPerSecond float64

	// SearchTTL is the cache lifetime for search responses. Default: 60s
	SearchTTL time.Duration

	// DetailTTL is the cache lifetime for product and store detail
	// responses. Default: 5m
	DetailTTL time.Duration

	// Gate configures the failure gate shared by all three operations.
	Gate resilience.GateConfig

	// Retry configures per-call retry behavior.
	Retry resilience.RetryConfig

	// HTTPClient overrides the transport; nil uses a 30s-timeout client.
	HTTPClient HTTPClient
}

// Client is the resilient marketplace client.
//
// # Description
//
// One Client (one gate, one limiter, one cache set) is shared by all
// concurrent resolution requests against the marketplace. Every call may
// mutate gate state and cache contents; no other shared state is touched.
//
// # Thread Safety
//
// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	token    string
	language string

	httpClient HTTPClient
	gate       *resilience.FailureGate
	retry      *resilience.BackoffExecutor
	limiter    *rate.Limiter

	searchCache *resilience.ResultCache[*SearchResult]
	detailCache *resilience.ResultCache[*ProductDetail]
	storeCache  *resilience.ResultCache[*StoreDetail]

	searchTTL time.Duration
	detailTTL time.Duration
}

// New creates a marketplace client. Zero config values fall back to the
// documented defaults. There is no hidden process-wide instance: tests
// and callers construct as many independent clients as they need.
func New(cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = "zh"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 60 * time.Second
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = 5 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// A 404 is a definitive answer from a healthy upstream; asking again
	// cannot change it.
	retryCfg := cfg.Retry
	retryCfg.IsRetryable = func(err error) bool {
		return !errors.Is(err, ErrNotFound)
	}

	return &Client{
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		language:    cfg.Language,
		httpClient:  httpClient,
		gate:        resilience.NewFailureGate(cfg.Gate),
		retry:       resilience.NewBackoffExecutor(retryCfg),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		searchCache: resilience.NewResultCache[*SearchResult](0),
		detailCache: resilience.NewResultCache[*ProductDetail](0),
		storeCache:  resilience.NewResultCache[*StoreDetail](0),
		searchTTL:   cfg.SearchTTL,
		detailTTL:   cfg.DetailTTL,
	}
}

// Gate exposes the failure gate so the orchestrator can wire state-change
// observability and health reporting.
func (c *Client) Gate() *resilience.FailureGate {
	return c.gate
}

// Language returns the marketplace's preferred response language.
func (c *Client) Language() string {
	return c.language
}

// SearchProducts searches the marketplace by free text.
//
// # Inputs
//
//   - ctx: Caller context; its deadline propagates into every attempt.
//   - text: Query text. The marketplace indexes native-language text
//     best; see the planner for fallback policy.
//   - pageNo: 1-based page number.
//   - pageSize: Items per page.
//
// # Outputs
//
//   - *SearchResult: Items plus the upstream-reported total/page/limit.
//   - error: One of the typed kinds documented on the package.
func (c *Client) SearchProducts(ctx context.Context, text string, pageNo, pageSize int) (*SearchResult, error) {
	ctx, span := upstreamTracer.Start(ctx, "UpstreamCatalogClient.SearchProducts")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.text", text),
		attribute.Int("search.page", pageNo),
	)

	query := url.Values{}
	query.Set("q", text)
	query.Set("page", strconv.Itoa(pageNo))
	query.Set("page_size", strconv.Itoa(pageSize))

	key := fmt.Sprintf("search:%s:%d:%d:%s", text, pageNo, pageSize, c.language)
	return call(ctx, c, c.searchCache, c.searchTTL, key, "search", "/api/v1/products/search", query)
}

// GetProductDetail fetches full detail for one product id.
func (c *Client) GetProductDetail(ctx context.Context, id string) (*ProductDetail, error) {
	ctx, span := upstreamTracer.Start(ctx, "UpstreamCatalogClient.GetProductDetail")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	key := "detail:" + id + ":" + c.language
	return call(ctx, c, c.detailCache, c.detailTTL, key, "product_detail", "/api/v1/products/"+url.PathEscape(id), nil)
}

// GetStoreDetail fetches detail for one store id.
func (c *Client) GetStoreDetail(ctx context.Context, id string) (*StoreDetail, error) {
	ctx, span := upstreamTracer.Start(ctx, "UpstreamCatalogClient.GetStoreDetail")
	defer span.End()
	span.SetAttributes(attribute.String("store.id", id))

	key := "store:" + id + ":" + c.language
	return call(ctx, c, c.storeCache, c.detailTTL, key, "store_detail", "/api/v1/stores/"+url.PathEscape(id), nil)
}

// call runs one operation through the full resilience stack: gate check,
// cache lookup, rate-limited retried fetch, then gate/cache/metric
// bookkeeping based on the overall outcome.
func call[T any](ctx context.Context, c *Client, cache *resilience.ResultCache[*T], ttl time.Duration, key, op, path string, query url.Values) (*T, error) {
	if !c.gate.Allow() {
		recordUpstream(op, "circuit_open", 0)
		return nil, ErrCircuitOpen
	}

	if cached, ok := cache.Get(key); ok {
		recordCacheEvent(op, true)
		return cached, nil
	}
	recordCacheEvent(op, false)

	start := time.Now()
	var payload *T
	err := c.retry.Do(ctx, func(attemptCtx context.Context) error {
		if err := c.limiter.Wait(attemptCtx); err != nil {
			return classifyTransport(err)
		}
		decoded, err := c.fetch(attemptCtx, path, query)
		if err != nil {
			return err
		}
		var out T
		if err := json.Unmarshal(decoded, &out); err != nil {
			// Schema mismatch: fail fast with a typed error instead of
			// propagating untyped maps.
			return &APIError{Code: -1, Message: "malformed payload: " + err.Error()}
		}
		payload = &out
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, ErrNotFound) {
			// The upstream answered; absence is not a failure of the
			// upstream, so the gate sees a success.
			c.gate.RecordSuccess()
			recordUpstream(op, "not_found", elapsed.Seconds())
			return nil, err
		}
		c.gate.RecordFailure()
		recordUpstream(op, upstreamStatus(err), elapsed.Seconds())
		slog.Warn("Upstream call failed", "path", path, "error", err)
		return nil, err
	}

	c.gate.RecordSuccess()
	recordUpstream(op, "success", elapsed.Seconds())
	cache.Put(key, payload, ttl)
	return payload, nil
}

// upstreamStatus maps an overall call error onto the metric status label.
func upstreamStatus(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

// recordUpstream records one upstream outcome if metrics are enabled.
func recordUpstream(op, status string, seconds float64) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordUpstream(op, status, seconds)
	}
}

// recordCacheEvent records a cache hit or miss if metrics are enabled.
func recordCacheEvent(op string, hit bool) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordCacheEvent(op, hit)
	}
}

// fetch performs one HTTP attempt and returns the envelope's data field.
func (c *Client) fetch(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	ctx, span := upstreamTracer.Start(ctx, "UpstreamCatalogClient.fetch")
	defer span.End()

	if query == nil {
		query = url.Values{}
	}
	query.Set("lang", c.language)
	target := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classifyTransport(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		span.SetStatus(codes.Error, "not found upstream")
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Status: resp.StatusCode}
		span.RecordError(httpErr)
		span.SetStatus(codes.Error, httpErr.Error())
		return nil, httpErr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{Code: -1, Message: "malformed response body: " + err.Error()}
	}
	if env.Code != 0 {
		apiErr := &APIError{Code: env.Code, Message: env.Message}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	return env.Data, nil
}

// classifyTransport maps transport-level failures onto the typed kinds:
// deadline overruns become ErrTimeout, everything else (DNS, connection
// refused, resets) becomes a *TransportError. Nothing leaves untyped.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &TransportError{Err: err}
}
