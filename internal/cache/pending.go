package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

// Key prefixes. Every entry is scoped by (user id, fingerprint) so the same
// account can run verification flows from several devices at once.
const (
	pendingMFAPrefix       = "pending_mfa_login:"
	pendingDevicePrefix    = "pending_device_data:"
	pendingOTPRefPrefix    = "pending_device_verification:"
	passwordResetRefPrefix = "pending_password_reset:"
)

const opTimeout = 5 * time.Second

// ErrNotFound is returned when a pending entry is absent or expired.
var ErrNotFound = errors.New("pending entry not found")

// PendingMFALogin bridges a password-verified login to its MFA completion.
type PendingMFALogin struct {
	UserID          uuid.UUID        `json:"user_id"`
	FingerprintHash string           `json:"fingerprint_hash"`
	Descriptor      model.Descriptor `json:"descriptor"`
	Location        model.Location   `json:"location"`
	MFAMethod       model.MFAMethod  `json:"mfa_method"`
	CreatedAt       time.Time        `json:"created_at"`
}

// PendingDeviceData carries the descriptor and resolved location of a device
// awaiting OTP verification.
type PendingDeviceData struct {
	UserID          uuid.UUID        `json:"user_id"`
	FingerprintHash string           `json:"fingerprint_hash"`
	Descriptor      model.Descriptor `json:"descriptor"`
	Location        model.Location   `json:"location"`
	CreatedAt       time.Time        `json:"created_at"`
}

// PendingCache holds in-flight login state between protocol steps. Letting
// the TTL lapse is the only cancellation path.
type PendingCache struct {
	store keyvalue.Store
	ttl   time.Duration
}

func NewPendingCache(store keyvalue.Store, ttl time.Duration) *PendingCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PendingCache{store: store, ttl: ttl}
}

func (c *PendingCache) TTL() time.Duration {
	return c.ttl
}

func scopedKey(prefix string, userID uuid.UUID, fingerprint string) string {
	return prefix + userID.String() + ":" + fingerprint
}

func (c *PendingCache) StorePendingMFA(ctx context.Context, p *PendingMFALogin) error {
	return c.setJSON(ctx, scopedKey(pendingMFAPrefix, p.UserID, p.FingerprintHash), p)
}

func (c *PendingCache) GetPendingMFA(ctx context.Context, userID uuid.UUID, fingerprint string) (*PendingMFALogin, error) {
	var p PendingMFALogin
	if err := c.getJSON(ctx, scopedKey(pendingMFAPrefix, userID, fingerprint), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *PendingCache) DeletePendingMFA(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	return c.delete(ctx, scopedKey(pendingMFAPrefix, userID, fingerprint))
}

func (c *PendingCache) StorePendingDevice(ctx context.Context, p *PendingDeviceData) error {
	return c.setJSON(ctx, scopedKey(pendingDevicePrefix, p.UserID, p.FingerprintHash), p)
}

func (c *PendingCache) GetPendingDevice(ctx context.Context, userID uuid.UUID, fingerprint string) (*PendingDeviceData, error) {
	var p PendingDeviceData
	if err := c.getJSON(ctx, scopedKey(pendingDevicePrefix, userID, fingerprint), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *PendingCache) DeletePendingDevice(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	return c.delete(ctx, scopedKey(pendingDevicePrefix, userID, fingerprint))
}

// StorePendingOTPRef records which OTP row a device-verification flow is
// waiting on.
func (c *PendingCache) StorePendingOTPRef(ctx context.Context, userID uuid.UUID, fingerprint string, otpID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	key := scopedKey(pendingOTPRefPrefix, userID, fingerprint)
	if err := c.store.SetEx(ctx, key, otpID.String(), c.ttl); err != nil {
		return fmt.Errorf("failed to store pending OTP ref: %w", err)
	}
	return nil
}

func (c *PendingCache) GetPendingOTPRef(ctx context.Context, userID uuid.UUID, fingerprint string) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	key := scopedKey(pendingOTPRefPrefix, userID, fingerprint)
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get pending OTP ref: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt pending OTP ref: %w", err)
	}
	return id, nil
}

func (c *PendingCache) DeletePendingOTPRef(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	return c.delete(ctx, scopedKey(pendingOTPRefPrefix, userID, fingerprint))
}

// HasPendingOTP reports whether a device-verification flow is in flight.
func (c *PendingCache) HasPendingOTP(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	exists, err := c.store.Exists(ctx, scopedKey(pendingOTPRefPrefix, userID, fingerprint))
	if err != nil {
		return false, fmt.Errorf("failed to check pending OTP ref: %w", err)
	}
	return exists, nil
}

// StorePasswordResetRef ties a reset OTP to the user it was issued for.
func (c *PendingCache) StorePasswordResetRef(ctx context.Context, userID uuid.UUID, otpID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	key := passwordResetRefPrefix + userID.String()
	if err := c.store.SetEx(ctx, key, otpID.String(), c.ttl); err != nil {
		return fmt.Errorf("failed to store password reset ref: %w", err)
	}
	return nil
}

func (c *PendingCache) GetPasswordResetRef(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := c.store.Get(ctx, passwordResetRefPrefix+userID.String())
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to get password reset ref: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt password reset ref: %w", err)
	}
	return id, nil
}

func (c *PendingCache) DeletePasswordResetRef(ctx context.Context, userID uuid.UUID) error {
	return c.delete(ctx, passwordResetRefPrefix+userID.String())
}

func (c *PendingCache) setJSON(ctx context.Context, key string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal pending entry: %w", err)
	}
	if err := c.store.SetEx(ctx, key, string(raw), c.ttl); err != nil {
		return fmt.Errorf("failed to store pending entry: %w", err)
	}
	return nil
}

func (c *PendingCache) getJSON(ctx context.Context, key string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, keyvalue.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get pending entry: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("corrupt pending entry: %w", err)
	}
	return nil
}

func (c *PendingCache) delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete pending entry: %w", err)
	}
	return nil
}
