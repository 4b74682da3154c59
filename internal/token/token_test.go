package token

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
)

func newTestManager(t *testing.T, accessTTL, refreshTTL time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(config.JWTConfig{
		Secret:          "test-secret",
		Issuer:          "test-issuer",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	})
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(config.JWTConfig{Issuer: "x"})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestIssuePairRoundTrip(t *testing.T) {
	m := newTestManager(t, 15*time.Minute, 7*24*time.Hour)
	userID := uuid.New()

	pair, err := m.IssuePair(userID, "fp-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)

	access, err := m.Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, userID, access.UserID)
	assert.Equal(t, "fp-1", access.FingerprintHash)
	assert.Equal(t, pair.AccessJTI, access.ID)

	refresh, err := m.Parse(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshJTI, refresh.ID)
}

func TestParseRejectsWrongType(t *testing.T) {
	m := newTestManager(t, 15*time.Minute, time.Hour)
	pair, err := m.IssuePair(uuid.New(), "fp")
	require.NoError(t, err)

	_, err = m.Parse(pair.RefreshToken, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongType)
	_, err = m.Parse(pair.AccessToken, TypeRefresh)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestParseRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute, time.Hour)
	pair, err := m.IssuePair(uuid.New(), "fp")
	require.NoError(t, err)

	_, err = m.Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	other, err := NewManager(config.JWTConfig{
		Secret: "different-secret", Issuer: "test-issuer",
		AccessTokenTTL: time.Hour, RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	pair, err := other.IssuePair(uuid.New(), "fp")
	require.NoError(t, err)

	_, err = m.Parse(pair.AccessToken, TypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueAccessKeepsFingerprint(t *testing.T) {
	m := newTestManager(t, time.Hour, time.Hour)
	userID := uuid.New()

	access, expiresAt, err := m.IssueAccess(userID, "fp-9")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := m.Parse(access, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "fp-9", claims.FingerprintHash)
}

func TestBlacklist(t *testing.T) {
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)
	bl := NewBlacklist(store)
	ctx := context.Background()

	blocked, err := bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, blocked)

	fresh, err := bl.Add(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	blocked, err = bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// A replayed revocation reports not-fresh.
	fresh, err = bl.Add(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestBlacklistSkipsExpiredTokens(t *testing.T) {
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)
	bl := NewBlacklist(store)
	ctx := context.Background()

	fresh, err := bl.Add(ctx, "dead-jti", 0)
	require.NoError(t, err)
	assert.True(t, fresh)

	blocked, err := bl.Contains(ctx, "dead-jti")
	require.NoError(t, err)
	assert.False(t, blocked, "an already expired token needs no entry")
}
