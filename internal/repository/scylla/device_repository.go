package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
)

const deviceColumns = `user_id, fingerprint_hash, device_id, device_name, device_type, browser, os,
	ip, last_ip, country, city, latitude, longitude,
	is_verified, verified_at, is_trusted, trust_expires_at, can_skip_mfa, mfa_skip_until,
	is_compromised, risk_score, last_used_at, total_logins,
	is_deleted, deleted_at, created_at, updated_at`

// DeviceRepository stores devices partitioned by user with the fingerprint
// as clustering key, plus a device_id lookup table for management endpoints.
type DeviceRepository struct {
	client *ScyllaClient
}

func NewDeviceRepository(client *ScyllaClient) *DeviceRepository {
	return &DeviceRepository{client: client}
}

func (r *DeviceRepository) Upsert(ctx context.Context, d *model.Device) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.FingerprintHash, d.ID, d.DeviceName, d.DeviceType, d.Browser, d.OS,
		d.IP, d.LastIP, d.Country, d.City, d.Latitude, d.Longitude,
		d.IsVerified, derefTime(d.VerifiedAt), d.IsTrusted, derefTime(d.TrustExpiresAt), d.CanSkipMFA, derefTime(d.MFASkipUntil),
		d.IsCompromised, d.RiskScore, derefTime(d.LastUsedAt), d.TotalLogins,
		d.IsDeleted, derefTime(d.DeletedAt), d.CreatedAt, d.UpdatedAt,
	)
	batch.Query(
		`INSERT INTO devices_by_id (device_id, user_id, fingerprint_hash) VALUES (?, ?, ?)`,
		d.ID, d.UserID, d.FingerprintHash,
	)
	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) GetByUserAndFingerprint(ctx context.Context, userID uuid.UUID, fingerprintHash string) (*model.Device, error) {
	return r.scanDevice(r.client.Query(
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? AND fingerprint_hash = ?`,
		userID, fingerprintHash,
	).WithContext(ctx))
}

func (r *DeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	var (
		userID      uuid.UUID
		fingerprint string
	)
	err := r.client.Query(
		`SELECT user_id, fingerprint_hash FROM devices_by_id WHERE device_id = ?`, id,
	).WithContext(ctx).Scan(&userID, &fingerprint)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up device id: %w", err)
	}
	return r.GetByUserAndFingerprint(ctx, userID, fingerprint)
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Device, error) {
	iter := r.client.Query(
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var devices []*model.Device
	for {
		d, ok := r.scanDeviceFromIter(iter)
		if !ok {
			break
		}
		devices = append(devices, d)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// UpdateUsage writes the usage/location snapshot after a successful login.
func (r *DeviceRepository) UpdateUsage(ctx context.Context, d *model.Device) error {
	err := r.client.Query(
		`UPDATE devices SET last_ip = ?, country = ?, city = ?, latitude = ?, longitude = ?,
			last_used_at = ?, total_logins = ?, device_name = ?, device_type = ?, browser = ?, os = ?, updated_at = ?
		 WHERE user_id = ? AND fingerprint_hash = ?`,
		d.LastIP, d.Country, d.City, d.Latitude, d.Longitude,
		derefTime(d.LastUsedAt), d.TotalLogins, d.DeviceName, d.DeviceType, d.Browser, d.OS, time.Now().UTC(),
		d.UserID, d.FingerprintHash,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update device usage: %w", err)
	}
	return nil
}

func (r *DeviceRepository) UpdateVerified(ctx context.Context, userID uuid.UUID, fingerprintHash string, verifiedAt time.Time) error {
	err := r.client.Query(
		`UPDATE devices SET is_verified = true, verified_at = ?, updated_at = ? WHERE user_id = ? AND fingerprint_hash = ?`,
		verifiedAt, time.Now().UTC(), userID, fingerprintHash,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark device verified: %w", err)
	}
	return nil
}

// UpdateTrust writes all four trust fields in one statement so trust state
// is never half-updated.
func (r *DeviceRepository) UpdateTrust(ctx context.Context, userID uuid.UUID, fingerprintHash string, trusted bool, trustExpiresAt *time.Time, canSkipMFA bool, mfaSkipUntil *time.Time) error {
	err := r.client.Query(
		`UPDATE devices SET is_trusted = ?, trust_expires_at = ?, can_skip_mfa = ?, mfa_skip_until = ?, updated_at = ?
		 WHERE user_id = ? AND fingerprint_hash = ?`,
		trusted, derefTime(trustExpiresAt), canSkipMFA, derefTime(mfaSkipUntil), time.Now().UTC(),
		userID, fingerprintHash,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update device trust: %w", err)
	}
	return nil
}

func (r *DeviceRepository) UpdateCompromised(ctx context.Context, userID uuid.UUID, fingerprintHash string, riskScore int) error {
	err := r.client.Query(
		`UPDATE devices SET is_compromised = true, risk_score = ?, is_trusted = false, trust_expires_at = ?,
			can_skip_mfa = false, mfa_skip_until = ?, updated_at = ?
		 WHERE user_id = ? AND fingerprint_hash = ?`,
		riskScore, time.Time{}, time.Time{}, time.Now().UTC(),
		userID, fingerprintHash,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark device compromised: %w", err)
	}
	return nil
}

func (r *DeviceRepository) UpdateSoftDelete(ctx context.Context, userID uuid.UUID, fingerprintHash string, deleted bool, deletedAt *time.Time) error {
	err := r.client.Query(
		`UPDATE devices SET is_deleted = ?, deleted_at = ?, updated_at = ? WHERE user_id = ? AND fingerprint_hash = ?`,
		deleted, derefTime(deletedAt), time.Now().UTC(), userID, fingerprintHash,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update device soft-delete: %w", err)
	}
	return nil
}

func (r *DeviceRepository) scanDevice(q *gocql.Query) (*model.Device, error) {
	var (
		d                                                model.Device
		verifiedAt, trustExp, skipUntil, lastUsed, delAt time.Time
	)
	err := q.Scan(
		&d.UserID, &d.FingerprintHash, &d.ID, &d.DeviceName, &d.DeviceType, &d.Browser, &d.OS,
		&d.IP, &d.LastIP, &d.Country, &d.City, &d.Latitude, &d.Longitude,
		&d.IsVerified, &verifiedAt, &d.IsTrusted, &trustExp, &d.CanSkipMFA, &skipUntil,
		&d.IsCompromised, &d.RiskScore, &lastUsed, &d.TotalLogins,
		&d.IsDeleted, &delAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan device: %w", err)
	}
	d.VerifiedAt = timePtr(verifiedAt)
	d.TrustExpiresAt = timePtr(trustExp)
	d.MFASkipUntil = timePtr(skipUntil)
	d.LastUsedAt = timePtr(lastUsed)
	d.DeletedAt = timePtr(delAt)
	return &d, nil
}

func (r *DeviceRepository) scanDeviceFromIter(iter *gocql.Iter) (*model.Device, bool) {
	var (
		d                                                model.Device
		verifiedAt, trustExp, skipUntil, lastUsed, delAt time.Time
	)
	ok := iter.Scan(
		&d.UserID, &d.FingerprintHash, &d.ID, &d.DeviceName, &d.DeviceType, &d.Browser, &d.OS,
		&d.IP, &d.LastIP, &d.Country, &d.City, &d.Latitude, &d.Longitude,
		&d.IsVerified, &verifiedAt, &d.IsTrusted, &trustExp, &d.CanSkipMFA, &skipUntil,
		&d.IsCompromised, &d.RiskScore, &lastUsed, &d.TotalLogins,
		&d.IsDeleted, &delAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if !ok {
		return nil, false
	}
	d.VerifiedAt = timePtr(verifiedAt)
	d.TrustExpiresAt = timePtr(trustExp)
	d.MFASkipUntil = timePtr(skipUntil)
	d.LastUsedAt = timePtr(lastUsed)
	d.DeletedAt = timePtr(delAt)
	return &d, true
}
