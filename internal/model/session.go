package model

import (
	"time"

	"github.com/google/uuid"
)

type RevokeReason string

const (
	RevokeReasonUserLogout      RevokeReason = "user_logout"
	RevokeReasonUserRevoked     RevokeReason = "user_revoked"
	RevokeReasonPasswordChanged RevokeReason = "password_changed"
	RevokeReasonPasswordReset   RevokeReason = "password_reset"
	RevokeReasonAdminRevoked    RevokeReason = "admin_revoked"
	RevokeReasonSecurityConcern RevokeReason = "security_concern"
	RevokeReasonSessionExpired  RevokeReason = "session_expired"
)

// Session is one issued refresh token's server-side record. TokenJTI is the
// refresh token's id, not the access token's: the access token id rotates on
// refresh while the session must stay addressable for its whole lifetime.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	TokenJTI string `json:"-"`

	// Denormalized for audit; survives device deletion.
	FingerprintHash string `json:"fingerprint_hash,omitempty"`
	IP              string `json:"ip,omitempty"`
	UserAgent       string `json:"user_agent,omitempty"`
	DeviceName      string `json:"device_name,omitempty"`

	IsActive     bool         `json:"is_active"`
	ExpiresAt    time.Time    `json:"expires_at"`
	LastActivity time.Time    `json:"last_activity"`
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
	RevokedReason RevokeReason `json:"revoked_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its hard expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
