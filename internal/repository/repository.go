package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("repository: not found")

// ErrAlreadyExists is returned when a uniqueness constraint would be broken.
var ErrAlreadyExists = errors.New("repository: already exists")

// UserRepository persists identity roots. Mutations are targeted partial
// updates so concurrent writers to unrelated fields never clobber each other.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLockout(ctx context.Context, id uuid.UUID, failedAttempts int, lockedUntil *time.Time) error
	UpdateLoginStats(ctx context.Context, id uuid.UUID, ip string, at time.Time) error
	UpdateEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, method model.MFAMethod) error
}

// DeviceRepository persists per-(user, fingerprint) device records.
type DeviceRepository interface {
	Upsert(ctx context.Context, device *model.Device) error
	GetByUserAndFingerprint(ctx context.Context, userID uuid.UUID, fingerprintHash string) (*model.Device, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Device, error)

	UpdateUsage(ctx context.Context, device *model.Device) error
	UpdateVerified(ctx context.Context, userID uuid.UUID, fingerprintHash string, verifiedAt time.Time) error
	UpdateTrust(ctx context.Context, userID uuid.UUID, fingerprintHash string, trusted bool, trustExpiresAt *time.Time, canSkipMFA bool, mfaSkipUntil *time.Time) error
	UpdateCompromised(ctx context.Context, userID uuid.UUID, fingerprintHash string, riskScore int) error
	UpdateSoftDelete(ctx context.Context, userID uuid.UUID, fingerprintHash string, deleted bool, deletedAt *time.Time) error
}

// SessionRepository persists one row per issued refresh token.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByJTI(ctx context.Context, tokenJTI string) (*model.Session, error)
	GetByID(ctx context.Context, userID, sessionID uuid.UUID) (*model.Session, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Session, error)

	UpdateActivity(ctx context.Context, userID, sessionID uuid.UUID, at time.Time) error
	Revoke(ctx context.Context, userID, sessionID uuid.UUID, reason model.RevokeReason, at time.Time) error
}

// OTPRepository persists hashed one-time codes.
type OTPRepository interface {
	Create(ctx context.Context, otp *model.OTP) error
	GetByID(ctx context.Context, userID, otpID uuid.UUID) (*model.OTP, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.OTP, error)

	// InvalidateUnused marks every unused code in the (user, purpose
	// [, fingerprint]) scope as used, enforcing at most one live code per
	// scope. An empty fingerprint matches only codes without one.
	InvalidateUnused(ctx context.Context, userID uuid.UUID, purpose model.OTPPurpose, fingerprintHash string) error
	UpdateAttempts(ctx context.Context, userID, otpID uuid.UUID, attempts int) error
	MarkUsed(ctx context.Context, userID, otpID uuid.UUID, at time.Time) error
}

// TOTPRepository persists the one-to-one TOTP credential.
type TOTPRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.TOTPCredential, error)
	Save(ctx context.Context, cred *model.TOTPCredential) error
	UpdateStats(ctx context.Context, userID uuid.UUID, lastUsedAt *time.Time, totalVerifications, failedAttempts int) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

// BackupCodeRepository persists single-use recovery codes.
type BackupCodeRepository interface {
	// ReplaceAll atomically swaps the user's batch for a new one.
	ReplaceAll(ctx context.Context, userID uuid.UUID, codes []*model.BackupCode) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.BackupCode, error)
	MarkUsed(ctx context.Context, userID, codeID uuid.UUID, at time.Time, fromIP string) error
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}
