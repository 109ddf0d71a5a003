package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAccessSession(t *testing.T) {
	alice := Context{UserID: "alice", Authenticated: true}
	anonymous := Context{}

	assert.True(t, CanAccessSession(alice, "alice"))
	assert.False(t, CanAccessSession(alice, "bob"))
	assert.True(t, CanAccessSession(anonymous, "bob"))
}

func TestCanReadPatterns(t *testing.T) {
	alice := Context{UserID: "alice", Authenticated: true}

	assert.True(t, CanReadPatterns(alice, "alice"))
	assert.False(t, CanReadPatterns(alice, "bob"))
	assert.True(t, CanReadPatterns(Context{}, "bob"))
}

func TestRetryOverride(t *testing.T) {
	assert.Nil(t, RetryOverride(Context{}))

	allowed := true
	ctx := Context{Features: PlanFeatures{CanRetry: &allowed}}
	got := RetryOverride(ctx)
	require.NotNil(t, got)
	assert.True(t, *got)

	*got = false
	assert.True(t, *ctx.Features.CanRetry)
}

func TestRequireAuthentication(t *testing.T) {
	ok, reason := RequireAuthentication(Context{Authenticated: true, UserID: "alice"})
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = RequireAuthentication(Context{})
	assert.False(t, ok)
	assert.Equal(t, "authentication required", reason)
}
