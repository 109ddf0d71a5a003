package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/rollout/internal/core/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// testHandler echoes the user id found in the request context.
func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"user_id": UserFromContext(r.Context())})
	})
}

func serve(t *testing.T, cfg IdentityConfig, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	Identity(cfg)(testHandler()).ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Identity Tests
// =============================================================================

func TestIdentity_ExtractsUser(t *testing.T) {
	rec := serve(t, IdentityConfig{}, map[string]string{HeaderUserID: " alice "})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp["user_id"])
}

func TestIdentity_OptionalUser(t *testing.T) {
	rec := serve(t, IdentityConfig{}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id": ""}`, rec.Body.String())
}

func TestIdentity_RequireUser(t *testing.T) {
	rec := serve(t, IdentityConfig{RequireUser: true}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthenticated")
}

func TestIdentity_SharedSecret(t *testing.T) {
	cfg := IdentityConfig{SharedSecret: "s3cret"}

	rejected := serve(t, cfg, map[string]string{HeaderUserID: "alice", HeaderGatewaySecret: "wrong"})
	accepted := serve(t, cfg, map[string]string{HeaderUserID: "alice", HeaderGatewaySecret: "s3cret"})

	assert.Equal(t, http.StatusForbidden, rejected.Code)
	assert.Equal(t, "application/json", rejected.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusOK, accepted.Code)
}

func TestUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.Empty(t, UserFromContext(req.Context()))
	assert.Equal(t, "bob", UserFromContext(WithUser(req.Context(), "bob")))
}

func TestIdentity_StoresPlanFeatures(t *testing.T) {
	var got auth.Context
	h := Identity(IdentityConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "alice")
	req.Header.Set(auth.HeaderPlanFeatures, `{"can_retry": true}`)

	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", got.UserID)
	require.NotNil(t, got.Features.CanRetry)
	assert.True(t, *got.Features.CanRetry)
}
