// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(key string) *gin.Engine {
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return r
}

func get(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Tests
// =============================================================================

func TestAPIKeyMiddleware_DisabledWhenEmpty(t *testing.T) {
	r := newAuthRouter("")

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code, "no key configured should pass everything")
}

func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	r := newAuthRouter("s3cret")

	w := get(r, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyMiddleware_Rejections(t *testing.T) {
	r := newAuthRouter("s3cret")

	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic s3cret"},
		{"wrong key", "Bearer letmein"},
		{"key with trailing space", "Bearer s3cret "},
		{"empty bearer", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
