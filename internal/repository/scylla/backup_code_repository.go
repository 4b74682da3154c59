package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

// BackupCodeRepository stores recovery code hashes partitioned by user.
type BackupCodeRepository struct {
	client *ScyllaClient
}

func NewBackupCodeRepository(client *ScyllaClient) *BackupCodeRepository {
	return &BackupCodeRepository{client: client}
}

// ReplaceAll deletes the old batch and inserts the new one in a single
// logged batch, so a regenerate never leaves a mixed set behind.
func (r *BackupCodeRepository) ReplaceAll(ctx context.Context, userID uuid.UUID, codes []*model.BackupCode) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	for _, c := range codes {
		batch.Query(
			`INSERT INTO backup_codes (user_id, code_id, code_hash, is_used, used_at, used_from_ip, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.UserID, c.ID, c.CodeHash, c.IsUsed, derefTime(c.UsedAt), c.UsedFromIP, c.CreatedAt,
		)
	}
	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to replace backup codes: %w", err)
	}
	return nil
}

func (r *BackupCodeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.BackupCode, error) {
	iter := r.client.Query(
		`SELECT user_id, code_id, code_hash, is_used, used_at, used_from_ip, created_at
		 FROM backup_codes WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var codes []*model.BackupCode
	for {
		var (
			c      model.BackupCode
			usedAt time.Time
		)
		if !iter.Scan(&c.UserID, &c.ID, &c.CodeHash, &c.IsUsed, &usedAt, &c.UsedFromIP, &c.CreatedAt) {
			break
		}
		c.UsedAt = timePtr(usedAt)
		codes = append(codes, &c)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list backup codes: %w", err)
	}
	return codes, nil
}

func (r *BackupCodeRepository) MarkUsed(ctx context.Context, userID, codeID uuid.UUID, at time.Time, fromIP string) error {
	err := r.client.Query(
		`UPDATE backup_codes SET is_used = true, used_at = ?, used_from_ip = ? WHERE user_id = ? AND code_id = ?`,
		at, fromIP, userID, codeID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark backup code used: %w", err)
	}
	return nil
}

func (r *BackupCodeRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	err := r.client.Query(`DELETE FROM backup_codes WHERE user_id = ?`, userID).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}
