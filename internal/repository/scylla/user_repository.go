package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/bucketing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

const userColumns = `user_bucket, user_id, email, username, password_hash, role, phone_number,
	email_verified, email_verified_at, mfa_enabled, mfa_method,
	failed_login_attempts, account_locked_until, last_login_ip, last_login_at,
	is_active, is_deleted, deleted_at, created_at, updated_at`

// UserRepository stores identity roots in the users table, partitioned by a
// murmur3 bucket. Email and username uniqueness is enforced through LWT
// inserts into dedicated lookup tables.
type UserRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.Manager) *UserRepository {
	return &UserRepository{client: client, buckets: buckets}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	// Claim the lookup rows first; losing either race means a duplicate.
	applied, err := r.client.Query(
		`INSERT INTO email_to_user (email, user_id) VALUES (?, ?) IF NOT EXISTS`,
		user.Email, user.ID,
	).WithContext(ctx).ScanCAS(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !applied {
		return fmt.Errorf("email %q: %w", user.Email, repository.ErrAlreadyExists)
	}

	applied, err = r.client.Query(
		`INSERT INTO username_to_user (username, user_id) VALUES (?, ?) IF NOT EXISTS`,
		user.Username, user.ID,
	).WithContext(ctx).ScanCAS(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to claim username: %w", err)
	}
	if !applied {
		// Roll back the email claim so a retry with another username works.
		if delErr := r.client.Query(`DELETE FROM email_to_user WHERE email = ?`, user.Email).
			WithContext(ctx).Exec(); delErr != nil {
			util.Warn("failed to roll back email claim", util.String("email", user.Email), util.ErrorField(delErr))
		}
		return fmt.Errorf("username %q: %w", user.Username, repository.ErrAlreadyExists)
	}

	err = r.client.Query(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.buckets.UserBucket(user.ID), user.ID, user.Email, user.Username, user.PasswordHash,
		string(user.Role), user.PhoneNumber,
		user.EmailVerified, derefTime(user.EmailVerifiedAt), user.MFAEnabled, string(user.MFAMethod),
		user.FailedLoginAttempts, derefTime(user.AccountLockedUntil), user.LastLoginIP, derefTime(user.LastLoginAt),
		user.IsActive, user.IsDeleted, derefTime(user.DeletedAt), user.CreatedAt, user.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.scanUser(r.client.Query(
		`SELECT `+userColumns+` FROM users WHERE user_bucket = ? AND user_id = ?`,
		r.buckets.UserBucket(id), id,
	).WithContext(ctx))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var id uuid.UUID
	err := r.client.Query(`SELECT user_id FROM email_to_user WHERE email = ?`, email).
		WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var id uuid.UUID
	err := r.client.Query(`SELECT user_id FROM username_to_user WHERE username = ?`, username).
		WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	err := r.client.Query(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
		passwordHash, time.Now().UTC(), r.buckets.UserBucket(id), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLockout(ctx context.Context, id uuid.UUID, failedAttempts int, lockedUntil *time.Time) error {
	err := r.client.Query(
		`UPDATE users SET failed_login_attempts = ?, account_locked_until = ? WHERE user_bucket = ? AND user_id = ?`,
		failedAttempts, derefTime(lockedUntil), r.buckets.UserBucket(id), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update lockout state: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateLoginStats(ctx context.Context, id uuid.UUID, ip string, at time.Time) error {
	err := r.client.Query(
		`UPDATE users SET last_login_ip = ?, last_login_at = ? WHERE user_bucket = ? AND user_id = ?`,
		ip, at, r.buckets.UserBucket(id), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update login stats: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.client.Query(
		`UPDATE users SET email_verified = true, email_verified_at = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
		at, time.Now().UTC(), r.buckets.UserBucket(id), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, method model.MFAMethod) error {
	err := r.client.Query(
		`UPDATE users SET mfa_enabled = ?, mfa_method = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
		enabled, string(method), time.Now().UTC(), r.buckets.UserBucket(id), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update MFA state: %w", err)
	}
	return nil
}

func (r *UserRepository) scanUser(q *gocql.Query) (*model.User, error) {
	var (
		u                                              model.User
		bucket                                         int
		role, mfaMethod                                string
		emailVerifiedAt, lockedUntil, lastLogin, delAt time.Time
	)

	err := q.Scan(
		&bucket, &u.ID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.PhoneNumber,
		&u.EmailVerified, &emailVerifiedAt, &u.MFAEnabled, &mfaMethod,
		&u.FailedLoginAttempts, &lockedUntil, &u.LastLoginIP, &lastLogin,
		&u.IsActive, &u.IsDeleted, &delAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Role = model.Role(role)
	u.MFAMethod = model.MFAMethod(mfaMethod)
	u.EmailVerifiedAt = timePtr(emailVerifiedAt)
	u.AccountLockedUntil = timePtr(lockedUntil)
	u.LastLoginAt = timePtr(lastLogin)
	u.DeletedAt = timePtr(delAt)
	return &u, nil
}
