package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

func TestDeviceTouchCreatesUnverified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, created, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{IP: "1.2.3.4", City: "Lahore"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, device.IsVerified)
	assert.False(t, device.IsTrusted)
	assert.Equal(t, 1, device.TotalLogins)
	assert.Equal(t, "1.2.3.4", device.IP)
	assert.Equal(t, "Lahore", device.City)
}

func TestDeviceTouchUpdatesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	_, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{IP: "1.2.3.4"})
	require.NoError(t, err)

	desc := descriptor("fp-1")
	desc.Browser = "Chrome"
	device, created, err := svc.Touch(ctx, user.ID, desc, model.Location{IP: "5.6.7.8"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 2, device.TotalLogins)
	assert.Equal(t, "Chrome", device.Browser)
	// First-seen IP is kept, last IP moves.
	assert.Equal(t, "1.2.3.4", device.IP)
	assert.Equal(t, "5.6.7.8", device.LastIP)
}

func TestDeviceTrustLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)

	require.NoError(t, svc.GrantTrust(ctx, user.ID, "fp-1", 7))
	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)

	// Trust fields move as one unit.
	assert.True(t, device.IsTrusted)
	require.NotNil(t, device.TrustExpiresAt)
	assert.True(t, device.CanSkipMFA)
	require.NotNil(t, device.MFASkipUntil)
	assert.Equal(t, *device.TrustExpiresAt, *device.MFASkipUntil)

	skip, err := svc.CanSkipMFANow(ctx, device)
	require.NoError(t, err)
	assert.True(t, skip)

	require.NoError(t, svc.RevokeTrust(ctx, user.ID, "fp-1"))
	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)
	assert.False(t, device.IsTrusted)
	assert.Nil(t, device.TrustExpiresAt)
	assert.False(t, device.CanSkipMFA)
	assert.Nil(t, device.MFASkipUntil)
}

func TestDeviceGrantTrustDefaultDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)
	require.NoError(t, svc.GrantTrust(ctx, user.ID, "fp-1", 0))

	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)
	require.NotNil(t, device.TrustExpiresAt)

	want := time.Now().UTC().Add(30 * 24 * time.Hour)
	assert.WithinDuration(t, want, *device.TrustExpiresAt, time.Minute)
}

func TestDeviceTrustedLazyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.devices.UpdateTrust(ctx, user.ID, "fp-1", true, &past, true, &past))
	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)

	trusted, err := svc.Trusted(ctx, device)
	require.NoError(t, err)
	assert.False(t, trusted)

	// Lazy expiry writes the revocation back to storage.
	stored, err := env.devices.GetByUserAndFingerprint(ctx, user.ID, "fp-1")
	require.NoError(t, err)
	assert.False(t, stored.IsTrusted)
	assert.Nil(t, stored.TrustExpiresAt)
	assert.False(t, stored.CanSkipMFA)
}

func TestDeviceCanSkipMFARequiresLiveTrust(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)

	skip, err := svc.CanSkipMFANow(ctx, device)
	require.NoError(t, err)
	assert.False(t, skip, "an untrusted device never skips")

	// Trust alive but the skip window already closed.
	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, env.devices.UpdateTrust(ctx, user.ID, "fp-1", true, &future, true, &past))
	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)

	skip, err = svc.CanSkipMFANow(ctx, device)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestDeviceCompromisedNeverSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)
	require.NoError(t, svc.GrantTrust(ctx, user.ID, "fp-1", 30))
	require.NoError(t, svc.MarkCompromised(ctx, user.ID, "fp-1"))

	device, err = svc.Get(ctx, user.ID, device.ID)
	require.NoError(t, err)
	assert.True(t, device.IsCompromised)
	assert.Equal(t, 100, device.RiskScore)

	skip, err := svc.CanSkipMFANow(ctx, device)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestDeviceMarkCompromisedRevokesSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)
	other, _, err := svc.Touch(ctx, user.ID, descriptor("fp-2"), model.Location{})
	require.NoError(t, err)

	sessions := env.sf.SessionService()
	compromisedSess, _, err := sessions.Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)
	survivorSess, _, err := sessions.Create(ctx, user, other, "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, svc.MarkCompromised(ctx, user.ID, "fp-1"))

	got, err := env.sessions.GetByID(ctx, user.ID, compromisedSess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = env.sessions.GetByID(ctx, user.ID, survivorSess.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "sessions on other devices stay up")
}

func TestDeviceRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)
	require.NoError(t, svc.GrantTrust(ctx, user.ID, "fp-1", 30))

	sess, _, err := env.sf.SessionService().Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, user.ID, device.ID, "fp-current"))

	_, err = svc.Get(ctx, user.ID, device.ID)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	got, err := env.sessions.GetByID(ctx, user.ID, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	list, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeviceRemoveCurrentRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "dev@example.com", "devuser", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, user.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)

	err = svc.Remove(ctx, user.ID, device.ID, "fp-1")
	assert.ErrorIs(t, err, ErrCurrentDevice)
}

func TestDeviceGetScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.createUser(t, "owner@example.com", "owner", "password123")
	stranger := env.createUser(t, "other@example.com", "stranger", "password123")
	svc := env.sf.DeviceService()

	device, _, err := svc.Touch(ctx, owner.ID, descriptor("fp-1"), model.Location{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger.ID, device.ID)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
