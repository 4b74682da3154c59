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

// TOTPRepository stores the single TOTP credential row per user.
type TOTPRepository struct {
	client *ScyllaClient
}

func NewTOTPRepository(client *ScyllaClient) *TOTPRepository {
	return &TOTPRepository{client: client}
}

func (r *TOTPRepository) Get(ctx context.Context, userID uuid.UUID) (*model.TOTPCredential, error) {
	var (
		c                    model.TOTPCredential
		verifiedAt, lastUsed time.Time
	)
	err := r.client.Query(
		`SELECT user_id, credential_id, secret, is_verified, verified_at,
			last_used_at, total_verifications, failed_attempts, created_at, updated_at
		 FROM totp_credentials WHERE user_id = ?`, userID,
	).WithContext(ctx).Scan(
		&c.UserID, &c.ID, &c.Secret, &c.IsVerified, &verifiedAt,
		&lastUsed, &c.TotalVerifications, &c.FailedAttempts, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan TOTP credential: %w", err)
	}
	c.VerifiedAt = timePtr(verifiedAt)
	c.LastUsedAt = timePtr(lastUsed)
	return &c, nil
}

func (r *TOTPRepository) Save(ctx context.Context, c *model.TOTPCredential) error {
	err := r.client.Query(
		`INSERT INTO totp_credentials (user_id, credential_id, secret, is_verified, verified_at,
			last_used_at, total_verifications, failed_attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.ID, c.Secret, c.IsVerified, derefTime(c.VerifiedAt),
		derefTime(c.LastUsedAt), c.TotalVerifications, c.FailedAttempts, c.CreatedAt, c.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to save TOTP credential: %w", err)
	}
	return nil
}

func (r *TOTPRepository) UpdateStats(ctx context.Context, userID uuid.UUID, lastUsedAt *time.Time, totalVerifications, failedAttempts int) error {
	err := r.client.Query(
		`UPDATE totp_credentials SET last_used_at = ?, total_verifications = ?, failed_attempts = ?, updated_at = ?
		 WHERE user_id = ?`,
		derefTime(lastUsedAt), totalVerifications, failedAttempts, time.Now().UTC(), userID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update TOTP stats: %w", err)
	}
	return nil
}

func (r *TOTPRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	err := r.client.Query(
		`DELETE FROM totp_credentials WHERE user_id = ?`, userID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete TOTP credential: %w", err)
	}
	return nil
}
