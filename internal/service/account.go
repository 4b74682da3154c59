package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/cache"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/event"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/ratelimit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

const minPasswordLength = 8

// RegisterInput is one signup request.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	PhoneNumber string
	IP          string
}

// AccountService covers the account lifecycle around the login flow:
// registration, email verification and the three password operations.
// Lookups driven by caller-supplied email addresses are enumeration-safe:
// the response never reveals whether the address is registered.
type AccountService struct {
	users      repository.UserRepository
	otps       *OTPService
	sessions   *SessionService
	hasher     *hashing.Hasher
	pending    *cache.PendingCache
	limiter    *ratelimit.Limiter
	dispatcher *event.Dispatcher
	auditor    *audit.Recorder
	cfg        *config.Config
}

func NewAccountService(
	users repository.UserRepository,
	otps *OTPService,
	sessions *SessionService,
	hasher *hashing.Hasher,
	pending *cache.PendingCache,
	limiter *ratelimit.Limiter,
	dispatcher *event.Dispatcher,
	auditor *audit.Recorder,
	cfg *config.Config,
) *AccountService {
	return &AccountService{
		users:      users,
		otps:       otps,
		sessions:   sessions,
		hasher:     hasher,
		pending:    pending,
		limiter:    limiter,
		dispatcher: dispatcher,
		auditor:    auditor,
		cfg:        cfg,
	}
}

// Register creates an account and kicks off email verification.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)

	if !util.IsEmailShaped(in.Email) {
		return nil, fmt.Errorf("%w: malformed email address", ErrValidation)
	}
	if len(in.Username) < 3 {
		return nil, fmt.Errorf("%w: username must be at least 3 characters", ErrValidation)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	res, err := s.limiter.Allow(ctx, "register:"+in.IP, s.cfg.Security.RegisterRateLimit, s.cfg.Security.RegisterRateWindow)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return nil, &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         model.RoleUser,
		PhoneNumber:  in.PhoneNumber,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			if strings.Contains(err.Error(), "username") {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.dispatcher.Dispatch(event.New(event.TypeUserRegistered, user.ID, user.Email, nil))
	if err := s.issueEmailVerification(ctx, user, in.IP); err != nil {
		// The account exists; the caller can resend.
		util.Warn("failed to issue verification code at signup", util.ErrorField(err))
	}

	util.Info("user registered",
		util.String("user_id", user.ID.String()),
		util.String("username", user.Username),
	)
	return user, nil
}

// VerifyEmail consumes an emailed verification code.
func (s *AccountService) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return ErrInvalidCode
	}
	if user.EmailVerified {
		return ErrEmailVerified
	}

	live, err := s.otps.FindLive(ctx, user.ID, model.OTPPurposeEmailVerification, "")
	if err != nil {
		return err
	}
	if _, err := s.otps.Verify(ctx, user.ID, live.ID, code); err != nil {
		return err
	}

	if err := s.users.UpdateEmailVerified(ctx, user.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	s.dispatcher.Dispatch(event.New(event.TypeEmailVerified, user.ID, user.Email, nil))
	return nil
}

// ResendEmailVerification issues a fresh verification code. Unknown or
// already verified addresses return success without doing anything.
func (s *AccountService) ResendEmailVerification(ctx context.Context, email, ip string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil || user.EmailVerified {
		return nil
	}

	scope := "email_verify:" + user.ID.String()
	ok, wait, err := s.limiter.Cooldown(ctx, scope, s.cfg.Security.OTPResendCooldown)
	if err != nil {
		return err
	}
	if !ok {
		return &RateLimitedError{RetryAfter: wait}
	}
	res, err := s.limiter.Allow(ctx, scope, s.cfg.Security.EmailResendLimit, s.cfg.Security.EmailResendWindow)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	return s.issueEmailVerification(ctx, user, ip)
}

// ForgotPassword starts a reset flow. Always reports success to the caller.
func (s *AccountService) ForgotPassword(ctx context.Context, email, ip string) error {
	res, err := s.limiter.Allow(ctx, "forgot:"+ip, s.cfg.Security.LoginRateLimit, s.cfg.Security.LoginRateWindow)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	user, err := s.userByEmail(ctx, email)
	if err != nil || !user.IsUsable() {
		return nil
	}

	otp, code, err := s.otps.Issue(ctx, user.ID, model.OTPPurposePasswordReset, user.Email, "", ip)
	if err != nil {
		return err
	}
	if err := s.pending.StorePasswordResetRef(ctx, user.ID, otp.ID); err != nil {
		return err
	}

	s.dispatcher.Dispatch(event.New(event.TypePasswordResetRequested, user.ID, user.Email, map[string]string{
		"code": code,
		"ip":   ip,
	}))
	s.auditor.Record(audit.Entry{UserID: user.ID, Action: audit.ActionPasswordReset, IP: ip, Detail: "reset requested"})
	return nil
}

// ResetPassword finishes a reset flow and revokes every session.
func (s *AccountService) ResetPassword(ctx context.Context, email, code, newPassword, ip string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return ErrInvalidCode
	}

	otpID, err := s.pending.GetPasswordResetRef(ctx, user.ID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrOTPNotFound
		}
		return err
	}
	if _, err := s.otps.Verify(ctx, user.ID, otpID, code); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	// A successful reset proves account control; clear any lockout.
	if err := s.users.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
		util.Warn("failed to clear lockout after reset", util.ErrorField(err))
	}
	if err := s.pending.DeletePasswordResetRef(ctx, user.ID); err != nil {
		util.Warn("failed to clear reset ref", util.ErrorField(err))
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, user.ID, model.RevokeReasonPasswordReset, uuid.Nil); err != nil {
		return err
	}

	s.dispatcher.Dispatch(event.New(event.TypePasswordChanged, user.ID, user.Email, map[string]string{"via": "reset"}))
	s.auditor.Record(audit.Entry{UserID: user.ID, Action: audit.ActionPasswordReset, IP: ip})
	return nil
}

// ChangePassword rotates the password for an authenticated user and revokes
// every other session, keeping the one that made the change.
func (s *AccountService) ChangePassword(ctx context.Context, user *model.User, currentPassword, newPassword string, keepSessionID uuid.UUID, ip string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.hasher.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := s.sessions.RevokeAllForUser(ctx, user.ID, model.RevokeReasonPasswordChanged, keepSessionID); err != nil {
		return err
	}

	s.dispatcher.Dispatch(event.New(event.TypePasswordChanged, user.ID, user.Email, map[string]string{"via": "change"}))
	s.auditor.Record(audit.Entry{UserID: user.ID, Action: audit.ActionPasswordChanged, IP: ip})
	return nil
}

func (s *AccountService) issueEmailVerification(ctx context.Context, user *model.User, ip string) error {
	_, code, err := s.otps.Issue(ctx, user.ID, model.OTPPurposeEmailVerification, user.Email, "", ip)
	if err != nil {
		return err
	}
	s.dispatcher.Dispatch(event.New(event.TypeOTPIssued, user.ID, user.Email, map[string]string{
		"purpose": string(model.OTPPurposeEmailVerification),
		"code":    code,
	}))
	return nil
}

func (s *AccountService) userByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

func validatePassword(p string) error {
	if len(p) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}
