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

const sessionColumns = `user_id, session_id, token_jti, fingerprint_hash, ip, user_agent, device_name,
	is_active, expires_at, last_activity, revoked_at, revoked_reason, created_at`

// SessionRepository stores sessions partitioned by user, with a jti lookup
// table for the per-request validation path.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient) *SessionRepository {
	return &SessionRepository{client: client}
}

func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.ID, s.TokenJTI, s.FingerprintHash, s.IP, s.UserAgent, s.DeviceName,
		s.IsActive, s.ExpiresAt, s.LastActivity, derefTime(s.RevokedAt), string(s.RevokedReason), s.CreatedAt,
	)
	batch.Query(
		`INSERT INTO sessions_by_jti (token_jti, user_id, session_id) VALUES (?, ?, ?)`,
		s.TokenJTI, s.UserID, s.ID,
	)
	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByJTI(ctx context.Context, tokenJTI string) (*model.Session, error) {
	var (
		userID    uuid.UUID
		sessionID uuid.UUID
	)
	err := r.client.Query(
		`SELECT user_id, session_id FROM sessions_by_jti WHERE token_jti = ?`, tokenJTI,
	).WithContext(ctx).Scan(&userID, &sessionID)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up session jti: %w", err)
	}
	return r.GetByID(ctx, userID, sessionID)
}

func (r *SessionRepository) GetByID(ctx context.Context, userID, sessionID uuid.UUID) (*model.Session, error) {
	var (
		s                model.Session
		revokedAt        time.Time
		revokedReason    string
	)
	err := r.client.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	).WithContext(ctx).Scan(
		&s.UserID, &s.ID, &s.TokenJTI, &s.FingerprintHash, &s.IP, &s.UserAgent, &s.DeviceName,
		&s.IsActive, &s.ExpiresAt, &s.LastActivity, &revokedAt, &revokedReason, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.RevokedAt = timePtr(revokedAt)
	s.RevokedReason = model.RevokeReason(revokedReason)
	return &s, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.Session, error) {
	iter := r.client.Query(
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var sessions []*model.Session
	for {
		var (
			s             model.Session
			revokedAt     time.Time
			revokedReason string
		)
		ok := iter.Scan(
			&s.UserID, &s.ID, &s.TokenJTI, &s.FingerprintHash, &s.IP, &s.UserAgent, &s.DeviceName,
			&s.IsActive, &s.ExpiresAt, &s.LastActivity, &revokedAt, &revokedReason, &s.CreatedAt,
		)
		if !ok {
			break
		}
		s.RevokedAt = timePtr(revokedAt)
		s.RevokedReason = model.RevokeReason(revokedReason)
		sessions = append(sessions, &s)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) UpdateActivity(ctx context.Context, userID, sessionID uuid.UUID, at time.Time) error {
	err := r.client.Query(
		`UPDATE sessions SET last_activity = ? WHERE user_id = ? AND session_id = ?`,
		at, userID, sessionID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, userID, sessionID uuid.UUID, reason model.RevokeReason, at time.Time) error {
	err := r.client.Query(
		`UPDATE sessions SET is_active = false, revoked_at = ?, revoked_reason = ? WHERE user_id = ? AND session_id = ?`,
		at, string(reason), userID, sessionID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
