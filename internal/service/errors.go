package service

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the service layer. Handlers map these onto
// HTTP status codes; messages are written to be safe to show to callers.
var (
	ErrValidation = errors.New("invalid request")

	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrEmailVerified      = errors.New("email already verified")

	ErrRateLimited = errors.New("too many requests")

	ErrOTPNotFound         = errors.New("verification code not found")
	ErrOTPExpired          = errors.New("verification code expired")
	ErrOTPAlreadyUsed      = errors.New("verification code already used")
	ErrOTPAttemptsExceeded = errors.New("too many incorrect attempts")
	ErrInvalidCode         = errors.New("incorrect verification code")

	ErrTOTPAlreadyEnabled    = errors.New("authenticator already enabled")
	ErrTOTPNotConfigured     = errors.New("authenticator not configured")
	ErrBackupCodeAlreadyUsed = errors.New("backup code already used")

	ErrNoPendingLogin        = errors.New("no pending login for this device")
	ErrNoPendingVerification = errors.New("no pending device verification")

	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionRevoked   = errors.New("session revoked")
	ErrSessionExpired   = errors.New("session expired")
	ErrTokenBlacklisted = errors.New("token revoked")

	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceRevoked     = errors.New("device access revoked")
	ErrDeviceCompromised = errors.New("device flagged as compromised")
	ErrCurrentDevice     = errors.New("cannot remove the device in use")
)

// RateLimitedError carries the wait time for a throttled request. It unwraps
// to ErrRateLimited so handlers can match it with errors.Is and still read
// RetryAfter via errors.As.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	secs := int(e.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("too many requests, retry in %ds", secs)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// LockedError reports how long an account lockout has left.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	mins := int(e.Remaining.Minutes()) + 1
	return fmt.Sprintf("account locked, try again in %d minutes", mins)
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// WrongPasswordError reports login attempts left before lockout.
type WrongPasswordError struct {
	AttemptsLeft int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsLeft)
}

func (e *WrongPasswordError) Unwrap() error { return ErrInvalidCredentials }

// WrongCodeError reports OTP attempts left.
type WrongCodeError struct {
	AttemptsLeft int
}

func (e *WrongCodeError) Error() string {
	return fmt.Sprintf("incorrect code, %d attempts remaining", e.AttemptsLeft)
}

func (e *WrongCodeError) Unwrap() error { return ErrInvalidCode }
