package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

type MFAMethod string

const (
	MFAMethodTOTP  MFAMethod = "totp"
	MFAMethodEmail MFAMethod = "email"
	MFAMethodSMS   MFAMethod = "sms"
)

// User is the identity root. Password material never leaves the hashing layer
// in plaintext; PasswordHash is the encoded argon2id string.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	PhoneNumber  string    `json:"phone_number,omitempty"`

	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	MFAEnabled bool      `json:"mfa_enabled"`
	MFAMethod  MFAMethod `json:"mfa_method,omitempty"`

	FailedLoginAttempts int        `json:"-"`
	AccountLockedUntil  *time.Time `json:"-"`

	LastLoginIP string     `json:"last_login_ip,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	IsActive bool `json:"is_active"`
	SoftDelete

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsUsable reports whether the account may participate in authentication at
// all. Email verification is checked separately so login can reject it with
// a distinct reason.
func (u *User) IsUsable() bool {
	return u.IsActive && !u.IsDeleted
}

// IsLocked reports whether a lockout window is still open.
func (u *User) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil)
}

// LockRemaining returns how much of the lockout window is left.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if u.AccountLockedUntil == nil {
		return 0
	}
	if remaining := u.AccountLockedUntil.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}
