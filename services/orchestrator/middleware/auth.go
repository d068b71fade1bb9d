// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header
// and compares it against a statically configured API key.
//
//	Request
//	   │
//	   ▼
//	APIKeyMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► Constant-time compare against the configured key
//	   │
//	   └─► 401 on mismatch, Next() on match
//
// # Local Behavior
//
// When no key is configured, all requests pass through. This keeps the
// service usable in local development without any auth infrastructure;
// deployments that expose the API set ORCHESTRATOR_API_KEY.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// bearerPrefix is the expected Authorization scheme.
const bearerPrefix = "Bearer "

// APIKeyMiddleware returns middleware that requires a bearer token equal
// to key on every request.
//
// # Description
//
// An empty key disables authentication entirely. The comparison is
// constant-time so a probing caller learns nothing from response timing.
//
// # Inputs
//
//   - key: The shared API key. Empty disables the check.
//
// # Outputs
//
//   - gin.HandlerFunc that aborts with 401 on missing or wrong tokens.
//
// # Thread Safety
//
// Safe for concurrent use; the key is read-only after construction.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		token := strings.TrimPrefix(header, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}
