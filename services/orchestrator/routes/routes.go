// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianShop/services/evidence"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/handlers"
)

// Deps carries the wired services the routes depend on.
//
// Evidence dependencies may be nil when no passage store is configured;
// the evidence routes are simply not registered in that case.
type Deps struct {
	Resolver handlers.CandidateResolver
	Offers   handlers.OfferReader
	Upstream handlers.UpstreamDirectory
	Gate     handlers.GateReporter

	Passages evidence.PassageStore
	Ranker   handlers.PassageRanker

	// EnableMetrics exposes /metrics with the Prometheus handler.
	EnableMetrics bool
}

// SetupRoutes registers all API routes on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck(deps.Gate))
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		products := v1.Group("/products")
		{
			products.GET("/search", handlers.SearchProducts(deps.Resolver))
			products.GET("/:id", handlers.GetProduct(deps.Offers, deps.Upstream))
			products.POST("/details/batch", handlers.BatchProductDetails(deps.Resolver))
		}
		v1.GET("/stores/:id", handlers.GetStore(deps.Upstream))

		if deps.Passages != nil && deps.Ranker != nil {
			v1.POST("/evidence/search", handlers.SearchEvidence(deps.Passages, deps.Ranker))
		}
	}
}
