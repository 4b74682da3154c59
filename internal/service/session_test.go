package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
)

func (e *testEnv) createDevice(t *testing.T, userID uuid.UUID, fingerprint string) *model.Device {
	t.Helper()
	device, _, err := e.sf.DeviceService().Touch(context.Background(), userID, descriptor(fingerprint), model.Location{})
	require.NoError(t, err)
	return device
}

func TestSessionCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	device := env.createDevice(t, user.ID, "fp-1")

	session, pair, err := env.sf.SessionService().Create(ctx, user, device, "1.2.3.4", "test-agent")
	require.NoError(t, err)

	// The session is keyed by the refresh token's jti.
	assert.Equal(t, pair.RefreshJTI, session.TokenJTI)
	assert.Equal(t, "fp-1", session.FingerprintHash)
	assert.True(t, session.IsActive)
	assert.Equal(t, pair.RefreshExpiresAt, session.ExpiresAt)

	stored, err := env.sessions.GetByJTI(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.Equal(t, session.ID, stored.ID)
}

func TestSessionValidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	device := env.createDevice(t, user.ID, "fp-1")
	svc := env.sf.SessionService()

	session, _, err := svc.Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, svc.Validate(ctx, session))

	assert.ErrorIs(t, svc.Validate(ctx, nil), ErrSessionNotFound)
}

func TestSessionValidateRevoked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	device := env.createDevice(t, user.ID, "fp-1")
	svc := env.sf.SessionService()

	session, _, err := svc.Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, user.ID, session.ID, model.RevokeReasonUserRevoked))

	session, err = svc.Get(ctx, user.ID, session.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Validate(ctx, session), ErrSessionRevoked)
}

func TestSessionValidateExpiredRevokesInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	env.createDevice(t, user.ID, "fp-1")

	now := time.Now().UTC()
	session := &model.Session{
		ID:              uuid.New(),
		UserID:          user.ID,
		TokenJTI:        uuid.NewString(),
		FingerprintHash: "fp-1",
		IsActive:        true,
		ExpiresAt:       now.Add(-time.Minute),
		LastActivity:    now.Add(-time.Hour),
		CreatedAt:       now.Add(-time.Hour),
	}
	require.NoError(t, env.sessions.Create(ctx, session))

	err := env.sf.SessionService().Validate(ctx, session)
	assert.ErrorIs(t, err, ErrSessionExpired)

	stored, err := env.sessions.GetByID(ctx, user.ID, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "expiry is written back on first observation")
}

func TestSessionValidateDeviceState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	device := env.createDevice(t, user.ID, "fp-1")
	svc := env.sf.SessionService()

	session, _, err := svc.Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, env.devices.UpdateCompromised(ctx, user.ID, "fp-1", 100))
	assert.ErrorIs(t, svc.Validate(ctx, session), ErrDeviceCompromised)
}

func TestSessionResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	first := env.createDevice(t, user.ID, "fp-1")
	second := env.createDevice(t, user.ID, "fp-2")
	svc := env.sf.SessionService()

	older, olderPair, err := svc.Create(ctx, user, first, "1.2.3.4", "ua")
	require.NoError(t, err)
	newer, _, err := svc.Create(ctx, user, second, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, env.sessions.UpdateActivity(ctx, user.ID, newer.ID, time.Now().UTC().Add(time.Minute)))

	// jti match wins.
	got, err := svc.Resolve(ctx, user.ID, olderPair.RefreshJTI, "fp-2")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	// Then the fingerprint.
	got, err = svc.Resolve(ctx, user.ID, "", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	// Then most recent activity, but only when no fingerprint was sent.
	got, err = svc.Resolve(ctx, user.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	// A fingerprint that matches nothing never falls back to another
	// device's session.
	_, err = svc.Resolve(ctx, user.ID, "", "fp-elsewhere")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionResolveNoneActive(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")

	_, err := env.sf.SessionService().Resolve(context.Background(), user.ID, "", "fp-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRevokeBlacklistsToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	device := env.createDevice(t, user.ID, "fp-1")
	svc := env.sf.SessionService()

	session, pair, err := svc.Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, user.ID, session.ID, model.RevokeReasonUserRevoked))

	blocked, err := env.blacklist.Contains(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, blocked)

	// A second revocation reports the session as already revoked.
	err = svc.Revoke(ctx, user.ID, session.ID, model.RevokeReasonUserRevoked)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestSessionRevokeAllForUserWithExclusion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	svc := env.sf.SessionService()

	var keep *model.Session
	for i, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		device := env.createDevice(t, user.ID, fp)
		session, _, err := svc.Create(ctx, user, device, "1.2.3.4", "ua")
		require.NoError(t, err)
		if i == 0 {
			keep = session
		}
	}

	revoked, err := svc.RevokeAllForUser(ctx, user.ID, model.RevokeReasonPasswordChanged, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	active, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)
}

func TestSessionListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "sess@example.com", "sessuser", "password123")
	svc := env.sf.SessionService()

	first := env.createDevice(t, user.ID, "fp-1")
	second := env.createDevice(t, user.ID, "fp-2")
	a, _, err := svc.Create(ctx, user, first, "1.2.3.4", "ua")
	require.NoError(t, err)
	b, _, err := svc.Create(ctx, user, second, "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, env.sessions.UpdateActivity(ctx, user.ID, a.ID, time.Now().UTC().Add(time.Minute)))

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func pairClaims(t *testing.T, env *testEnv, pair *token.Pair) *token.Claims {
	t.Helper()
	claims, err := env.tokens.Parse(pair.AccessToken, token.TypeAccess)
	require.NoError(t, err)
	return claims
}
