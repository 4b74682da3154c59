package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
)

func TestGetStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", service.ErrValidation, http.StatusBadRequest},
		// Failed-authentication states are 400, never confused with
		// role-based 403s.
		{"account locked", service.ErrAccountLocked, http.StatusBadRequest},
		{"locked with remaining", &service.LockedError{Remaining: 5 * time.Minute}, http.StatusBadRequest},
		{"otp attempts exceeded", service.ErrOTPAttemptsExceeded, http.StatusBadRequest},
		{"otp expired", service.ErrOTPExpired, http.StatusBadRequest},
		{"backup code already used", service.ErrBackupCodeAlreadyUsed, http.StatusBadRequest},
		{"device compromised", service.ErrDeviceCompromised, http.StatusBadRequest},
		{"wrong password", &service.WrongPasswordError{AttemptsLeft: 2}, http.StatusUnauthorized},
		{"invalid credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"blacklisted token", service.ErrTokenBlacklisted, http.StatusUnauthorized},
		{"expired token", token.ErrTokenExpired, http.StatusUnauthorized},
		{"account disabled", service.ErrAccountDisabled, http.StatusForbidden},
		{"device revoked", service.ErrDeviceRevoked, http.StatusForbidden},
		{"email taken", service.ErrEmailTaken, http.StatusConflict},
		{"current device", service.ErrCurrentDevice, http.StatusConflict},
		{"rate limited", &service.RateLimitedError{RetryAfter: time.Minute}, http.StatusTooManyRequests},
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound},
		{"no pending login", service.ErrNoPendingLogin, http.StatusGone},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, getStatusCode(tc.err))
		})
	}
}
