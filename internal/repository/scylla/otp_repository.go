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

const otpColumns = `user_id, otp_id, purpose, code_hash, target, fingerprint_hash,
	attempts, max_attempts, is_used, used_at, expires_at, issued_ip, created_at`

// OTPRepository stores hashed one-time codes partitioned by user. Rows carry
// a generous table-level TTL in the schema; validity is still enforced in
// code against expires_at.
type OTPRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient) *OTPRepository {
	return &OTPRepository{client: client}
}

func (r *OTPRepository) Create(ctx context.Context, o *model.OTP) error {
	err := r.client.Query(
		`INSERT INTO otps (`+otpColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.ID, string(o.Purpose), o.CodeHash, o.Target, o.FingerprintHash,
		o.Attempts, o.MaxAttempts, o.IsUsed, derefTime(o.UsedAt), o.ExpiresAt, o.IssuedIP, o.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert OTP: %w", err)
	}
	return nil
}

func (r *OTPRepository) GetByID(ctx context.Context, userID, otpID uuid.UUID) (*model.OTP, error) {
	var (
		o       model.OTP
		purpose string
		usedAt  time.Time
	)
	err := r.client.Query(
		`SELECT `+otpColumns+` FROM otps WHERE user_id = ? AND otp_id = ?`,
		userID, otpID,
	).WithContext(ctx).Scan(
		&o.UserID, &o.ID, &purpose, &o.CodeHash, &o.Target, &o.FingerprintHash,
		&o.Attempts, &o.MaxAttempts, &o.IsUsed, &usedAt, &o.ExpiresAt, &o.IssuedIP, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan OTP: %w", err)
	}
	o.Purpose = model.OTPPurpose(purpose)
	o.UsedAt = timePtr(usedAt)
	return &o, nil
}

func (r *OTPRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.OTP, error) {
	iter := r.client.Query(
		`SELECT `+otpColumns+` FROM otps WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var otps []*model.OTP
	for {
		var (
			o       model.OTP
			purpose string
			usedAt  time.Time
		)
		ok := iter.Scan(
			&o.UserID, &o.ID, &purpose, &o.CodeHash, &o.Target, &o.FingerprintHash,
			&o.Attempts, &o.MaxAttempts, &o.IsUsed, &usedAt, &o.ExpiresAt, &o.IssuedIP, &o.CreatedAt,
		)
		if !ok {
			break
		}
		o.Purpose = model.OTPPurpose(purpose)
		o.UsedAt = timePtr(usedAt)
		otps = append(otps, &o)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list OTPs: %w", err)
	}
	return otps, nil
}

func (r *OTPRepository) InvalidateUnused(ctx context.Context, userID uuid.UUID, purpose model.OTPPurpose, fingerprintHash string) error {
	otps, err := r.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, o := range otps {
		if o.IsUsed || o.Purpose != purpose || o.FingerprintHash != fingerprintHash {
			continue
		}
		if err := r.MarkUsed(ctx, userID, o.ID, now); err != nil {
			return fmt.Errorf("failed to invalidate OTP %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *OTPRepository) UpdateAttempts(ctx context.Context, userID, otpID uuid.UUID, attempts int) error {
	err := r.client.Query(
		`UPDATE otps SET attempts = ? WHERE user_id = ? AND otp_id = ?`,
		attempts, userID, otpID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update OTP attempts: %w", err)
	}
	return nil
}

func (r *OTPRepository) MarkUsed(ctx context.Context, userID, otpID uuid.UUID, at time.Time) error {
	err := r.client.Query(
		`UPDATE otps SET is_used = true, used_at = ? WHERE user_id = ? AND otp_id = ?`,
		at, userID, otpID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark OTP used: %w", err)
	}
	return nil
}
