// Package testapi builds gin routers over a sqlite store for route tests.
package testapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chirino/clinical-history/internal/config"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/chirino/clinical-history/internal/security"
	"github.com/chirino/clinical-history/internal/testutil/testsqlite"
	"github.com/gin-gonic/gin"
)

// Mount matches the MountRoutes functions of the /v1 route plugins.
type Mount func(r *gin.Engine, store registrystore.HistoryStore, auth gin.HandlerFunc)

// Tenant is the tenant every request is sent with.
const Tenant = "tenant-a"

// Router mounts the given routes behind bearer-token auth (the token is the
// user id) and returns it with the underlying store.
func Router(tb testing.TB, mounts ...Mount) (*gin.Engine, registrystore.HistoryStore, context.Context) {
	tb.Helper()
	gin.SetMode(gin.TestMode)

	store, ctx := testsqlite.NewStore(tb)
	cfg := config.DefaultConfig()
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	router := gin.New()
	router.Use(security.RequestIDMiddleware())
	for _, m := range mounts {
		m(router, store, auth)
	}
	return router, store, ctx
}

// Do sends a JSON request as user and returns the recorded response. A nil
// body sends no body.
func Do(tb testing.TB, router http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	tb.Helper()
	var buf *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			tb.Fatalf("marshal request body: %v", err)
		}
		buf = bytes.NewReader(data)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	req.Header.Set(security.HeaderTenantID, Tenant)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a response body into v.
func Decode(tb testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	tb.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		tb.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// Scope is the store scope matching requests sent as user.
func Scope(user string) registrystore.Scope {
	return registrystore.Scope{TenantID: Tenant, UserID: user}
}
