package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ExtractFromHeaders Tests
// =============================================================================

func TestExtractFromHeaders_Unauthenticated(t *testing.T) {
	ctx := ExtractFromHeaders(MapHeaderGetter{})

	assert.False(t, ctx.Authenticated)
	assert.Empty(t, ctx.UserID)
}

func TestExtractFromHeaders_BlankUserID(t *testing.T) {
	ctx := ExtractFromHeaders(MapHeaderGetter{HeaderUserID: "   "})

	assert.False(t, ctx.Authenticated)
}

func TestExtractFromHeaders_Authenticated(t *testing.T) {
	headers := MapHeaderGetter{
		HeaderUserID: " user_12345 ",
		HeaderPlanID: "plan_enterprise",
	}
	ctx := ExtractFromHeaders(headers)

	assert.True(t, ctx.Authenticated)
	assert.Equal(t, "user_12345", ctx.UserID)
	assert.Equal(t, "plan_enterprise", ctx.PlanID)
	assert.Nil(t, ctx.Features.CanRetry)
}

func TestExtractFromHeaders_WithPlanFeatures(t *testing.T) {
	ctx := ExtractFromHeaders(MapHeaderGetter{
		HeaderUserID:       "user_12345",
		HeaderPlanFeatures: `{"can_retry": true}`,
	})

	require.NotNil(t, ctx.Features.CanRetry)
	assert.True(t, *ctx.Features.CanRetry)
}

func TestExtractFromHeaders_InvalidPlanFeaturesIgnored(t *testing.T) {
	ctx := ExtractFromHeaders(MapHeaderGetter{
		HeaderUserID:       "user_12345",
		HeaderPlanFeatures: `{not json`,
	})

	assert.True(t, ctx.Authenticated)
	assert.Nil(t, ctx.Features.CanRetry)
}

func TestExtractFromHeaders_BearerFallback(t *testing.T) {
	payload, err := json.Marshal(map[string]string{"sub": "user_jwt", "pid": "plan_os"})
	require.NoError(t, err)
	token := "header." + base64.RawURLEncoding.EncodeToString(payload) + ".signature"

	ctx := ExtractFromHeaders(MapHeaderGetter{"Authorization": "Bearer " + token})

	assert.True(t, ctx.Authenticated)
	assert.Equal(t, "user_jwt", ctx.UserID)
	assert.Equal(t, "plan_os", ctx.PlanID)
}

func TestExtractFromHeaders_HeaderWinsOverBearer(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"sub": "user_jwt"})
	token := "h." + base64.RawURLEncoding.EncodeToString(payload) + ".s"

	ctx := ExtractFromHeaders(MapHeaderGetter{
		HeaderUserID:    "user_header",
		"Authorization": "Bearer " + token,
	})

	assert.Equal(t, "user_header", ctx.UserID)
}

func TestExtractFromHeaders_MalformedBearer(t *testing.T) {
	testCases := []string{
		"Basic dXNlcjpwYXNz",
		"Bearer not-a-jwt",
		"Bearer a.!!!.c",
		"Bearer a." + base64.RawURLEncoding.EncodeToString([]byte("[]")) + ".c",
		"Bearer a." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":""}`)) + ".c",
	}

	for _, header := range testCases {
		t.Run(header, func(t *testing.T) {
			ctx := ExtractFromHeaders(MapHeaderGetter{"Authorization": header})
			assert.False(t, ctx.Authenticated)
		})
	}
}

func TestExtractFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderUserID, "alice")

	ctx := ExtractFromRequest(req)

	assert.True(t, ctx.Authenticated)
	assert.Equal(t, "alice", ctx.UserID)
}

// =============================================================================
// ParsePlanFeatures Tests
// =============================================================================

func TestParsePlanFeatures(t *testing.T) {
	empty, err := ParsePlanFeatures("")
	require.NoError(t, err)
	assert.Nil(t, empty.CanRetry)

	denied, err := ParsePlanFeatures(`{"can_retry": false}`)
	require.NoError(t, err)
	require.NotNil(t, denied.CanRetry)
	assert.False(t, *denied.CanRetry)

	_, err = ParsePlanFeatures(`[`)
	assert.ErrorContains(t, err, "invalid plan features")
}

// =============================================================================
// Request Context Tests
// =============================================================================

func TestContextRoundTrip(t *testing.T) {
	assert.False(t, FromContext(context.Background()).Authenticated)

	stored := Context{UserID: "alice", Authenticated: true}
	assert.Equal(t, stored, FromContext(WithContext(context.Background(), stored)))
}
