package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

const compromisedRiskScore = 100

// DeviceService tracks known devices per user and their trust state. Trust
// is granted and revoked as one unit: is_trusted, trust_expires_at,
// can_skip_mfa and mfa_skip_until always move together.
type DeviceService struct {
	devices  repository.DeviceRepository
	sessions repository.SessionRepository
	cfg      *config.Config
	auditor  *audit.Recorder
}

func NewDeviceService(
	devices repository.DeviceRepository,
	sessions repository.SessionRepository,
	cfg *config.Config,
	auditor *audit.Recorder,
) *DeviceService {
	return &DeviceService{devices: devices, sessions: sessions, cfg: cfg, auditor: auditor}
}

// Touch records a login sighting of (user, fingerprint). The device row is
// created unverified on first sight; on later sights the descriptor and
// location are refreshed and usage counters bump. Returns the device and
// whether it was newly created.
func (s *DeviceService) Touch(ctx context.Context, userID uuid.UUID, desc model.Descriptor, loc model.Location) (*model.Device, bool, error) {
	now := time.Now().UTC()

	device, err := s.devices.GetByUserAndFingerprint(ctx, userID, desc.FingerprintHash)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("failed to look up device: %w", err)
		}
		device = &model.Device{
			ID:              uuid.New(),
			UserID:          userID,
			FingerprintHash: desc.FingerprintHash,
			LastUsedAt:      &now,
			TotalLogins:     1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		device.ApplyDescriptor(desc)
		device.ApplyLocation(loc)
		if err := s.devices.Upsert(ctx, device); err != nil {
			return nil, false, fmt.Errorf("failed to create device: %w", err)
		}
		return device, true, nil
	}

	device.ApplyDescriptor(desc)
	device.ApplyLocation(loc)
	device.LastUsedAt = &now
	device.TotalLogins++
	if err := s.devices.UpdateUsage(ctx, device); err != nil {
		return nil, false, fmt.Errorf("failed to update device usage: %w", err)
	}
	return device, false, nil
}

// Get returns one of the user's devices, soft-deleted ones excluded.
func (s *DeviceService) Get(ctx context.Context, userID, deviceID uuid.UUID) (*model.Device, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device.UserID != userID || device.IsDeleted {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// List returns the user's devices, newest first, soft-deleted ones excluded.
func (s *DeviceService) List(ctx context.Context, userID uuid.UUID) ([]*model.Device, error) {
	all, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	out := make([]*model.Device, 0, len(all))
	for _, d := range all {
		if !d.IsDeleted {
			out = append(out, d)
		}
	}
	return out, nil
}

// Trusted reports whether the device's trust grant is currently effective.
// An expired grant is revoked in storage on first observation, so callers
// after this point see consistent state.
func (s *DeviceService) Trusted(ctx context.Context, device *model.Device) (bool, error) {
	now := time.Now().UTC()
	if device.TrustExpired(now) {
		if err := s.devices.UpdateTrust(ctx, device.UserID, device.FingerprintHash, false, nil, false, nil); err != nil {
			return false, fmt.Errorf("failed to revoke expired trust: %w", err)
		}
		device.IsTrusted = false
		device.TrustExpiresAt = nil
		device.CanSkipMFA = false
		device.MFASkipUntil = nil
		return false, nil
	}
	return device.IsTrusted, nil
}

// CanSkipMFANow reports whether the device's MFA skip window is open.
// Requires live trust; an expired or compromised device never skips.
func (s *DeviceService) CanSkipMFANow(ctx context.Context, device *model.Device) (bool, error) {
	if device.IsCompromised {
		return false, nil
	}
	trusted, err := s.Trusted(ctx, device)
	if err != nil || !trusted {
		return false, err
	}
	now := time.Now().UTC()
	return device.CanSkipMFA && device.MFASkipUntil != nil && now.Before(*device.MFASkipUntil), nil
}

// MarkVerified flips a device to verified after its owner proves control
// through an OTP flow.
func (s *DeviceService) MarkVerified(ctx context.Context, userID uuid.UUID, fingerprintHash string) error {
	if err := s.devices.UpdateVerified(ctx, userID, fingerprintHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark device verified: %w", err)
	}
	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionDeviceVerified,
		FingerprintHash: fingerprintHash,
	})
	return nil
}

// GrantTrust opens a trust window of the given number of days. Zero or
// negative days falls back to the configured default.
func (s *DeviceService) GrantTrust(ctx context.Context, userID uuid.UUID, fingerprintHash string, days int) error {
	if days <= 0 {
		days = s.cfg.Security.DefaultTrustDays
	}
	until := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	if err := s.devices.UpdateTrust(ctx, userID, fingerprintHash, true, &until, true, &until); err != nil {
		return fmt.Errorf("failed to grant trust: %w", err)
	}
	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionDeviceTrusted,
		FingerprintHash: fingerprintHash,
		Detail:          fmt.Sprintf("trust granted for %d days", days),
	})
	util.Info("device trust granted",
		util.String("user_id", userID.String()),
		util.Int("days", days),
	)
	return nil
}

// RevokeTrust clears the trust grant entirely.
func (s *DeviceService) RevokeTrust(ctx context.Context, userID uuid.UUID, fingerprintHash string) error {
	if err := s.devices.UpdateTrust(ctx, userID, fingerprintHash, false, nil, false, nil); err != nil {
		return fmt.Errorf("failed to revoke trust: %w", err)
	}
	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionDeviceRevoked,
		FingerprintHash: fingerprintHash,
		Detail:          "trust revoked",
	})
	return nil
}

// MarkCompromised flags a device, strips its trust and kills every active
// session bound to its fingerprint.
func (s *DeviceService) MarkCompromised(ctx context.Context, userID uuid.UUID, fingerprintHash string) error {
	if err := s.devices.UpdateCompromised(ctx, userID, fingerprintHash, compromisedRiskScore); err != nil {
		return fmt.Errorf("failed to mark device compromised: %w", err)
	}

	now := time.Now().UTC()
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.IsActive && sess.FingerprintHash == fingerprintHash {
			if err := s.sessions.Revoke(ctx, userID, sess.ID, model.RevokeReasonSecurityConcern, now); err != nil {
				return fmt.Errorf("failed to revoke session %s: %w", sess.ID, err)
			}
		}
	}

	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionDeviceCompromised,
		FingerprintHash: fingerprintHash,
	})
	util.Warn("device marked compromised",
		util.String("user_id", userID.String()),
		util.String("fingerprint", fingerprintHash),
	)
	return nil
}

// Remove soft-deletes a device. The device currently authenticating the
// request cannot remove itself; that path is logout.
func (s *DeviceService) Remove(ctx context.Context, userID, deviceID uuid.UUID, currentFingerprint string) error {
	device, err := s.Get(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if device.FingerprintHash == currentFingerprint {
		return ErrCurrentDevice
	}

	now := time.Now().UTC()
	if err := s.devices.UpdateTrust(ctx, userID, device.FingerprintHash, false, nil, false, nil); err != nil {
		return fmt.Errorf("failed to clear trust: %w", err)
	}
	if err := s.devices.UpdateSoftDelete(ctx, userID, device.FingerprintHash, true, &now); err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.IsActive && sess.FingerprintHash == device.FingerprintHash {
			if err := s.sessions.Revoke(ctx, userID, sess.ID, model.RevokeReasonUserRevoked, now); err != nil {
				return fmt.Errorf("failed to revoke session %s: %w", sess.ID, err)
			}
		}
	}

	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionDeviceRevoked,
		FingerprintHash: device.FingerprintHash,
		Detail:          "device removed",
	})
	return nil
}
