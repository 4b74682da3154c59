package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

func newTestCache(t *testing.T) *PendingCache {
	t.Helper()
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)
	return NewPendingCache(store, 10*time.Minute)
}

func TestPendingMFARoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()

	entry := &PendingMFALogin{
		UserID:          userID,
		FingerprintHash: "fp-1",
		Descriptor:      model.Descriptor{FingerprintHash: "fp-1", Browser: "Firefox"},
		Location:        model.Location{IP: "203.0.113.9", City: "Lahore"},
		MFAMethod:       model.MFAMethodTOTP,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, c.StorePendingMFA(ctx, entry))

	got, err := c.GetPendingMFA(ctx, userID, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, entry.UserID, got.UserID)
	assert.Equal(t, "Firefox", got.Descriptor.Browser)
	assert.Equal(t, model.MFAMethodTOTP, got.MFAMethod)

	// Scoped by fingerprint: a different device sees nothing.
	_, err = c.GetPendingMFA(ctx, userID, "fp-2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.DeletePendingMFA(ctx, userID, "fp-1"))
	_, err = c.GetPendingMFA(ctx, userID, "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingDeviceRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, c.StorePendingDevice(ctx, &PendingDeviceData{
		UserID:          userID,
		FingerprintHash: "fp-1",
		Descriptor:      model.Descriptor{FingerprintHash: "fp-1", DeviceName: "Pixel 8"},
	}))

	got, err := c.GetPendingDevice(ctx, userID, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", got.Descriptor.DeviceName)

	require.NoError(t, c.DeletePendingDevice(ctx, userID, "fp-1"))
	_, err = c.GetPendingDevice(ctx, userID, "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingOTPRef(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()
	otpID := uuid.New()

	has, err := c.HasPendingOTP(ctx, userID, "fp-1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.StorePendingOTPRef(ctx, userID, "fp-1", otpID))

	got, err := c.GetPendingOTPRef(ctx, userID, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, otpID, got)

	has, err = c.HasPendingOTP(ctx, userID, "fp-1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, c.DeletePendingOTPRef(ctx, userID, "fp-1"))
	_, err = c.GetPendingOTPRef(ctx, userID, "fp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasswordResetRef(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()
	otpID := uuid.New()

	require.NoError(t, c.StorePasswordResetRef(ctx, userID, otpID))

	got, err := c.GetPasswordResetRef(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, otpID, got)

	require.NoError(t, c.DeletePasswordResetRef(ctx, userID))
	_, err = c.GetPasswordResetRef(ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingCacheDefaultTTL(t *testing.T) {
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)
	c := NewPendingCache(store, 0)
	assert.Equal(t, 10*time.Minute, c.TTL())
}
