// Package memory provides map-backed repository implementations with the
// same semantics as the Scylla ones. They are used by service tests and as a
// storage fallback in ephemeral development environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
)

// ---------------------------------------------------------------- users

type UserRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*model.User
	byEmail    map[string]uuid.UUID
	byUsername map[string]uuid.UUID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[uuid.UUID]*model.User),
		byEmail:    make(map[string]uuid.UUID),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (r *UserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return fmt.Errorf("email %q: %w", user.Email, repository.ErrAlreadyExists)
	}
	if _, ok := r.byUsername[user.Username]; ok {
		return fmt.Errorf("username %q: %w", user.Username, repository.ErrAlreadyExists)
	}
	u := *user
	r.byID[user.ID] = &u
	r.byEmail[user.Email] = user.ID
	r.byUsername[user.Username] = user.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (r *UserRepository) UpdateLockout(_ context.Context, id uuid.UUID, failedAttempts int, lockedUntil *time.Time) error {
	return r.update(id, func(u *model.User) {
		u.FailedLoginAttempts = failedAttempts
		u.AccountLockedUntil = lockedUntil
	})
}

func (r *UserRepository) UpdateLoginStats(_ context.Context, id uuid.UUID, ip string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.LastLoginIP = ip
		u.LastLoginAt = &at
	})
}

func (r *UserRepository) UpdateEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.EmailVerified = true
		u.EmailVerifiedAt = &at
	})
}

func (r *UserRepository) UpdateMFA(_ context.Context, id uuid.UUID, enabled bool, method model.MFAMethod) error {
	return r.update(id, func(u *model.User) {
		u.MFAEnabled = enabled
		u.MFAMethod = method
	})
}

// -------------------------------------------------------------- devices

type deviceKey struct {
	userID      uuid.UUID
	fingerprint string
}

type DeviceRepository struct {
	mu      sync.RWMutex
	byKey   map[deviceKey]*model.Device
	idIndex map[uuid.UUID]deviceKey
}

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{
		byKey:   make(map[deviceKey]*model.Device),
		idIndex: make(map[uuid.UUID]deviceKey),
	}
}

func (r *DeviceRepository) Upsert(_ context.Context, device *model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey{device.UserID, device.FingerprintHash}
	d := *device
	r.byKey[key] = &d
	r.idIndex[device.ID] = key
	return nil
}

func (r *DeviceRepository) GetByUserAndFingerprint(_ context.Context, userID uuid.UUID, fingerprintHash string) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[deviceKey{userID, fingerprintHash}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *DeviceRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.idIndex[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d, ok := r.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *DeviceRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Device
	for key, d := range r.byKey {
		if key.userID == userID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DeviceRepository) update(userID uuid.UUID, fingerprintHash string, fn func(*model.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byKey[deviceKey{userID, fingerprintHash}]
	if !ok {
		return repository.ErrNotFound
	}
	fn(d)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *DeviceRepository) UpdateUsage(_ context.Context, device *model.Device) error {
	return r.update(device.UserID, device.FingerprintHash, func(d *model.Device) {
		d.LastIP = device.LastIP
		d.Country = device.Country
		d.City = device.City
		d.Latitude = device.Latitude
		d.Longitude = device.Longitude
		d.LastUsedAt = device.LastUsedAt
		d.TotalLogins = device.TotalLogins
		d.DeviceName = device.DeviceName
		d.DeviceType = device.DeviceType
		d.Browser = device.Browser
		d.OS = device.OS
	})
}

func (r *DeviceRepository) UpdateVerified(_ context.Context, userID uuid.UUID, fingerprintHash string, verifiedAt time.Time) error {
	return r.update(userID, fingerprintHash, func(d *model.Device) {
		d.IsVerified = true
		d.VerifiedAt = &verifiedAt
	})
}

func (r *DeviceRepository) UpdateTrust(_ context.Context, userID uuid.UUID, fingerprintHash string, trusted bool, trustExpiresAt *time.Time, canSkipMFA bool, mfaSkipUntil *time.Time) error {
	return r.update(userID, fingerprintHash, func(d *model.Device) {
		d.IsTrusted = trusted
		d.TrustExpiresAt = trustExpiresAt
		d.CanSkipMFA = canSkipMFA
		d.MFASkipUntil = mfaSkipUntil
	})
}

func (r *DeviceRepository) UpdateCompromised(_ context.Context, userID uuid.UUID, fingerprintHash string, riskScore int) error {
	return r.update(userID, fingerprintHash, func(d *model.Device) {
		d.IsCompromised = true
		d.RiskScore = riskScore
		d.IsTrusted = false
		d.TrustExpiresAt = nil
		d.CanSkipMFA = false
		d.MFASkipUntil = nil
	})
}

func (r *DeviceRepository) UpdateSoftDelete(_ context.Context, userID uuid.UUID, fingerprintHash string, deleted bool, deletedAt *time.Time) error {
	return r.update(userID, fingerprintHash, func(d *model.Device) {
		d.IsDeleted = deleted
		d.DeletedAt = deletedAt
	})
}

// ------------------------------------------------------------- sessions

type SessionRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*model.Session
	jtiIndex map[string]uuid.UUID
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:     make(map[uuid.UUID]*model.Session),
		jtiIndex: make(map[string]uuid.UUID),
	}
}

func (r *SessionRepository) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *session
	r.byID[session.ID] = &s
	r.jtiIndex[session.TokenJTI] = session.ID
	return nil
}

func (r *SessionRepository) GetByJTI(_ context.Context, tokenJTI string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.jtiIndex[tokenJTI]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *SessionRepository) GetByID(_ context.Context, userID, sessionID uuid.UUID) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[sessionID]
	if !ok || s.UserID != userID {
		return nil, repository.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *SessionRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Session
	for _, s := range r.byID {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepository) UpdateActivity(_ context.Context, userID, sessionID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.LastActivity = at
	return nil
}

func (r *SessionRepository) Revoke(_ context.Context, userID, sessionID uuid.UUID, reason model.RevokeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok || s.UserID != userID {
		return repository.ErrNotFound
	}
	s.IsActive = false
	s.RevokedAt = &at
	s.RevokedReason = reason
	return nil
}

// ----------------------------------------------------------------- otps

type OTPRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*model.OTP
}

func NewOTPRepository() *OTPRepository {
	return &OTPRepository{byID: make(map[uuid.UUID]*model.OTP)}
}

func (r *OTPRepository) Create(_ context.Context, otp *model.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := *otp
	r.byID[otp.ID] = &o
	return nil
}

func (r *OTPRepository) GetByID(_ context.Context, userID, otpID uuid.UUID) (*model.OTP, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[otpID]
	if !ok || o.UserID != userID {
		return nil, repository.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *OTPRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.OTP, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.OTP
	for _, o := range r.byID {
		if o.UserID == userID {
			copied := *o
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OTPRepository) InvalidateUnused(_ context.Context, userID uuid.UUID, purpose model.OTPPurpose, fingerprintHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, o := range r.byID {
		if o.UserID == userID && !o.IsUsed && o.Purpose == purpose && o.FingerprintHash == fingerprintHash {
			o.IsUsed = true
			o.UsedAt = &now
		}
	}
	return nil
}

func (r *OTPRepository) UpdateAttempts(_ context.Context, userID, otpID uuid.UUID, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[otpID]
	if !ok || o.UserID != userID {
		return repository.ErrNotFound
	}
	o.Attempts = attempts
	return nil
}

func (r *OTPRepository) MarkUsed(_ context.Context, userID, otpID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[otpID]
	if !ok || o.UserID != userID {
		return repository.ErrNotFound
	}
	o.IsUsed = true
	o.UsedAt = &at
	return nil
}

// ----------------------------------------------------------------- totp

type TOTPRepository struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]*model.TOTPCredential
}

func NewTOTPRepository() *TOTPRepository {
	return &TOTPRepository{byUser: make(map[uuid.UUID]*model.TOTPCredential)}
}

func (r *TOTPRepository) Get(_ context.Context, userID uuid.UUID) (*model.TOTPCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *TOTPRepository) Save(_ context.Context, cred *model.TOTPCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cred
	r.byUser[cred.UserID] = &c
	return nil
}

func (r *TOTPRepository) UpdateStats(_ context.Context, userID uuid.UUID, lastUsedAt *time.Time, totalVerifications, failedAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byUser[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.LastUsedAt = lastUsedAt
	c.TotalVerifications = totalVerifications
	c.FailedAttempts = failedAttempts
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *TOTPRepository) Delete(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUser, userID)
	return nil
}

// --------------------------------------------------------- backup codes

type BackupCodeRepository struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID][]*model.BackupCode
}

func NewBackupCodeRepository() *BackupCodeRepository {
	return &BackupCodeRepository{byUser: make(map[uuid.UUID][]*model.BackupCode)}
}

func (r *BackupCodeRepository) ReplaceAll(_ context.Context, userID uuid.UUID, codes []*model.BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := make([]*model.BackupCode, 0, len(codes))
	for _, c := range codes {
		copied := *c
		replaced = append(replaced, &copied)
	}
	r.byUser[userID] = replaced
	return nil
}

func (r *BackupCodeRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.BackupCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := r.byUser[userID]
	out := make([]*model.BackupCode, 0, len(codes))
	for _, c := range codes {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (r *BackupCodeRepository) MarkUsed(_ context.Context, userID, codeID uuid.UUID, at time.Time, fromIP string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byUser[userID] {
		if c.ID == codeID {
			c.IsUsed = true
			c.UsedAt = &at
			c.UsedFromIP = fromIP
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *BackupCodeRepository) DeleteAll(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUser, userID)
	return nil
}
