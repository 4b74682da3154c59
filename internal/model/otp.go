package model

import (
	"time"

	"github.com/google/uuid"
)

type OTPPurpose string

const (
	OTPPurposeEmailVerification  OTPPurpose = "email_verification"
	OTPPurposePhoneVerification  OTPPurpose = "phone_verification"
	OTPPurposeDeviceVerification OTPPurpose = "device_verification"
	OTPPurposePasswordReset      OTPPurpose = "password_reset"
	OTPPurposeLogin2FA           OTPPurpose = "login_2fa"
	OTPPurposeSensitiveAction    OTPPurpose = "sensitive_action"
)

// OTP stores only the hash of an issued one-time code, never the plaintext.
type OTP struct {
	ID      uuid.UUID  `json:"id"`
	UserID  uuid.UUID  `json:"user_id"`
	Purpose OTPPurpose `json:"purpose"`

	CodeHash string `json:"-"`
	Target   string `json:"target,omitempty"`

	// Device-verification codes are scoped per fingerprint so concurrent
	// flows from distinct devices do not invalidate each other.
	FingerprintHash string `json:"fingerprint_hash,omitempty"`

	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	IsUsed bool       `json:"is_used"`
	UsedAt *time.Time `json:"used_at,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	IssuedIP  string    `json:"issued_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Usable reports the combined validity condition. All three clauses are
// required; checking any subset is a security bug.
func (o *OTP) Usable(now time.Time) bool {
	return !o.IsUsed && now.Before(o.ExpiresAt) && o.Attempts < o.MaxAttempts
}

// RemainingAttempts never reports negative.
func (o *OTP) RemainingAttempts() int {
	if remaining := o.MaxAttempts - o.Attempts; remaining > 0 {
		return remaining
	}
	return 0
}
