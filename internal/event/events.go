package event

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the closed set of domain events the service emits.
// Notification fan-out subscribes to these; nothing in the request path
// waits on delivery.
type Type string

const (
	TypeUserRegistered         Type = "user_registered"
	TypeEmailVerified          Type = "email_verified"
	TypePasswordChanged        Type = "password_changed"
	TypePasswordResetRequested Type = "password_reset_requested"
	TypeMFAEnabled             Type = "mfa_enabled"
	TypeMFADisabled            Type = "mfa_disabled"
	TypeOTPIssued              Type = "otp_issued"
	TypeNewDeviceLogin         Type = "new_device_login"
	TypeDeviceVerified         Type = "device_verified"
	TypeAccountLocked          Type = "account_locked"
)

// Event is the wire payload published to the events topic.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Type       Type              `json:"type"`
	UserID     uuid.UUID         `json:"user_id"`
	Email      string            `json:"email,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// New builds an event with a fresh id and timestamp.
func New(t Type, userID uuid.UUID, email string, metadata map[string]string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		Email:      email,
		OccurredAt: time.Now().UTC(),
		Metadata:   metadata,
	}
}
