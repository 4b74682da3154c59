package service

import (
	"context"
	"fmt"
	"time"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/event"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// CredentialService checks passwords and keeps the failure/lockout counters.
// Failure accounting only happens for accounts that exist; unknown
// identifiers fail upstream without touching any counter.
type CredentialService struct {
	users      repository.UserRepository
	hasher     *hashing.Hasher
	cfg        *config.Config
	dispatcher *event.Dispatcher
	auditor    *audit.Recorder
}

func NewCredentialService(
	users repository.UserRepository,
	hasher *hashing.Hasher,
	cfg *config.Config,
	dispatcher *event.Dispatcher,
	auditor *audit.Recorder,
) *CredentialService {
	return &CredentialService{
		users:      users,
		hasher:     hasher,
		cfg:        cfg,
		dispatcher: dispatcher,
		auditor:    auditor,
	}
}

// CheckLockout rejects while a lockout window is open.
func (s *CredentialService) CheckLockout(user *model.User) error {
	now := time.Now().UTC()
	if user.IsLocked(now) {
		return &LockedError{Remaining: user.LockRemaining(now)}
	}
	return nil
}

// VerifyPassword checks the password and updates the failure counter. A
// wrong password increments toward lockout; a correct one clears the counter
// even when previous attempts failed.
func (s *CredentialService) VerifyPassword(ctx context.Context, user *model.User, password, ip string) error {
	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}

	if !ok {
		return s.recordFailure(ctx, user, ip)
	}

	if user.FailedLoginAttempts > 0 || user.AccountLockedUntil != nil {
		if err := s.users.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			util.Warn("failed to clear lockout counter", util.ErrorField(err))
		}
		user.FailedLoginAttempts = 0
		user.AccountLockedUntil = nil
	}
	return nil
}

func (s *CredentialService) recordFailure(ctx context.Context, user *model.User, ip string) error {
	attempts := user.FailedLoginAttempts + 1
	maxAttempts := s.cfg.Security.MaxFailedLogins

	var lockedUntil *time.Time
	if attempts >= maxAttempts {
		until := time.Now().UTC().Add(s.cfg.Security.LockoutDuration)
		lockedUntil = &until
	}
	if err := s.users.UpdateLockout(ctx, user.ID, attempts, lockedUntil); err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	user.FailedLoginAttempts = attempts
	user.AccountLockedUntil = lockedUntil

	s.auditor.Record(audit.Entry{
		UserID: user.ID,
		Action: audit.ActionLoginFailed,
		IP:     ip,
		Detail: fmt.Sprintf("failed attempt %d of %d", attempts, maxAttempts),
	})

	if lockedUntil != nil {
		s.auditor.Record(audit.Entry{
			UserID: user.ID,
			Action: audit.ActionAccountLocked,
			IP:     ip,
		})
		s.dispatcher.Dispatch(event.New(event.TypeAccountLocked, user.ID, user.Email, map[string]string{
			"locked_until": lockedUntil.Format(time.RFC3339),
			"ip":           ip,
		}))
		util.Warn("account locked after repeated failures",
			util.String("user_id", user.ID.String()),
			util.String("ip", ip),
		)
		return &LockedError{Remaining: s.cfg.Security.LockoutDuration}
	}

	return &WrongPasswordError{AttemptsLeft: maxAttempts - attempts}
}

// RecordLogin stamps the user's last successful login.
func (s *CredentialService) RecordLogin(ctx context.Context, user *model.User, ip string) {
	now := time.Now().UTC()
	if err := s.users.UpdateLoginStats(ctx, user.ID, ip, now); err != nil {
		util.Warn("failed to record login stats", util.ErrorField(err))
	}
	user.LastLoginIP = ip
	user.LastLoginAt = &now
}
