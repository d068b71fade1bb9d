// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianShop/services/catalog/resilience"
)

// GateReporter exposes the circuit state of an upstream dependency.
type GateReporter interface {
	State() resilience.GateState
}

// HealthCheck handles GET /health.
//
// Reports process liveness plus the marketplace circuit state so probes
// can distinguish "down" from "up but degraded". The endpoint always
// returns 200 while the process serves traffic: an open circuit is a
// degradation, not an outage.
func HealthCheck(gate GateReporter) gin.HandlerFunc {
	start := time.Now()
	return func(c *gin.Context) {
		resp := gin.H{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(start).Seconds()),
		}
		if gate != nil {
			resp["upstream_circuit"] = gate.State().String()
		}
		c.JSON(http.StatusOK, resp)
	}
}
