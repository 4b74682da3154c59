package model

import (
	"time"

	"github.com/google/uuid"
)

// TOTPCredential is the one-to-one TOTP association for a user. Absence of a
// row means MFA is unconfigured; presence with IsVerified=false means setup
// was started but never confirmed.
type TOTPCredential struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Secret string `json:"-"`

	IsVerified bool       `json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
	TotalVerifications int        `json:"total_verifications"`
	FailedAttempts     int        `json:"failed_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BackupCode is a single-use recovery code; only its hash is stored.
type BackupCode struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	CodeHash string `json:"-"`

	IsUsed     bool       `json:"is_used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	UsedFromIP string     `json:"used_from_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
