package model

import (
	"time"

	"github.com/google/uuid"
)

// Descriptor is the client-supplied identification of a browser/device
// instance. FingerprintHash is the stable key; the rest is display metadata.
type Descriptor struct {
	FingerprintHash string `json:"fingerprint_hash"`
	DeviceName      string `json:"device_name,omitempty"`
	DeviceType      string `json:"device_type,omitempty"`
	Browser         string `json:"browser,omitempty"`
	OS              string `json:"os,omitempty"`
}

// Location is a best-effort geolocation snapshot. Zero values mean the
// lookup failed or was disabled.
type Location struct {
	IP        string  `json:"ip,omitempty"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Device tracks one (user, fingerprint) pair and its trust state.
type Device struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FingerprintHash string    `json:"fingerprint_hash"`

	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`

	IP        string  `json:"ip,omitempty"`
	LastIP    string  `json:"last_ip,omitempty"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	IsVerified bool       `json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`

	IsTrusted      bool       `json:"is_trusted"`
	TrustExpiresAt *time.Time `json:"trust_expires_at,omitempty"`
	CanSkipMFA     bool       `json:"can_skip_mfa"`
	MFASkipUntil   *time.Time `json:"mfa_skip_until,omitempty"`

	IsCompromised bool `json:"is_compromised"`
	RiskScore     int  `json:"risk_score"`

	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	TotalLogins int        `json:"total_logins"`

	SoftDelete

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrustExpired reports whether a trust grant exists but has lapsed.
// Callers observing true must revoke trust in storage (lazy expiry).
func (d *Device) TrustExpired(now time.Time) bool {
	return d.IsTrusted && d.TrustExpiresAt != nil && now.After(*d.TrustExpiresAt)
}

// ApplyDescriptor updates display metadata from a login request without
// touching trust state.
func (d *Device) ApplyDescriptor(desc Descriptor) {
	if desc.DeviceName != "" {
		d.DeviceName = desc.DeviceName
	}
	if desc.DeviceType != "" {
		d.DeviceType = desc.DeviceType
	}
	if desc.Browser != "" {
		d.Browser = desc.Browser
	}
	if desc.OS != "" {
		d.OS = desc.OS
	}
}

// ApplyLocation updates the location snapshot, keeping the first-seen IP.
func (d *Device) ApplyLocation(loc Location) {
	if loc.IP != "" {
		if d.IP == "" {
			d.IP = loc.IP
		}
		d.LastIP = loc.IP
	}
	if loc.Country != "" {
		d.Country = loc.Country
	}
	if loc.City != "" {
		d.City = loc.City
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		d.Latitude = loc.Latitude
		d.Longitude = loc.Longitude
	}
}
