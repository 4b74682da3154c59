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
	"github.com/awaisamjad-SE/Real-MFA-1/internal/geo"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/ratelimit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// LoginStatus tells the caller which step of the flow comes next.
type LoginStatus string

const (
	LoginStatusOK               LoginStatus = "ok"
	LoginStatusMFARequired      LoginStatus = "mfa_required"
	LoginStatusDeviceUnverified LoginStatus = "device_verification_required"
)

// LoginInput is one password login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	Descriptor model.Descriptor
	IP         string
	UserAgent  string
}

// LoginResult is returned by Login and the two completion paths. Tokens and
// Session are set only when Status is LoginStatusOK.
type LoginResult struct {
	Status    LoginStatus
	User      *model.User
	Device    *model.Device
	Session   *model.Session
	Tokens    *token.Pair
	MFAMethod model.MFAMethod
	// OTPTarget is a masked delivery hint for device verification.
	OTPTarget string
}

// MFACompletionInput finishes a login parked on the MFA step.
type MFACompletionInput struct {
	UserID          uuid.UUID
	FingerprintHash string
	Code            string
	UseBackupCode   bool
	RememberDevice  bool
	TrustDays       int
	IP              string
	UserAgent       string
}

// DeviceVerificationInput finishes a login parked on new-device OTP.
type DeviceVerificationInput struct {
	UserID          uuid.UUID
	FingerprintHash string
	Code            string
	RememberDevice  bool
	TrustDays       int
	IP              string
	UserAgent       string
}

// AuthService orchestrates the login state machine. Checks run in a strict
// order; in particular the MFA gate is evaluated before any device shortcut,
// and device trust never substitutes for the second factor. Trust only lets
// a device skip the new-device OTP step.
type AuthService struct {
	users       repository.UserRepository
	credentials *CredentialService
	devices     *DeviceService
	sessions    *SessionService
	otps        *OTPService
	totps       *TOTPService
	pending     *cache.PendingCache
	limiter     *ratelimit.Limiter
	geoResolver *geo.Resolver
	tokens      *token.Manager
	blacklist   *token.Blacklist
	dispatcher  *event.Dispatcher
	auditor     *audit.Recorder
	cfg         *config.Config
}

func NewAuthService(
	users repository.UserRepository,
	credentials *CredentialService,
	devices *DeviceService,
	sessions *SessionService,
	otps *OTPService,
	totps *TOTPService,
	pending *cache.PendingCache,
	limiter *ratelimit.Limiter,
	geoResolver *geo.Resolver,
	tokens *token.Manager,
	blacklist *token.Blacklist,
	dispatcher *event.Dispatcher,
	auditor *audit.Recorder,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:       users,
		credentials: credentials,
		devices:     devices,
		sessions:    sessions,
		otps:        otps,
		totps:       totps,
		pending:     pending,
		limiter:     limiter,
		geoResolver: geoResolver,
		tokens:      tokens,
		blacklist:   blacklist,
		dispatcher:  dispatcher,
		auditor:     auditor,
		cfg:         cfg,
	}
}

// Login runs the password step of the state machine. Outcomes:
//   - LoginStatusOK with tokens, when no further proof is needed
//   - LoginStatusMFARequired, parked in the pending cache
//   - LoginStatusDeviceUnverified, with an OTP on its way
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Identifier = strings.TrimSpace(in.Identifier)
	if in.Identifier == "" || in.Password == "" || in.Descriptor.FingerprintHash == "" {
		return nil, fmt.Errorf("%w: identifier, password and fingerprint are required", ErrValidation)
	}

	scope := "login:" + in.IP + ":" + strings.ToLower(in.Identifier)
	res, err := s.limiter.Allow(ctx, scope, s.cfg.Security.LoginRateLimit, s.cfg.Security.LoginRateWindow)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		s.auditor.Record(audit.Entry{Action: audit.ActionLoginBlocked, IP: in.IP, Detail: "rate limited"})
		return nil, &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	user, err := s.identify(ctx, in.Identifier)
	if err != nil {
		return nil, err
	}

	if err := s.credentials.CheckLockout(user); err != nil {
		return nil, err
	}
	if !user.IsUsable() {
		return nil, ErrAccountDisabled
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := s.credentials.VerifyPassword(ctx, user, in.Password, in.IP); err != nil {
		return nil, err
	}

	location := s.geoResolver.Resolve(ctx, in.IP)
	device, created, err := s.devices.Touch(ctx, user.ID, in.Descriptor, location)
	if err != nil {
		return nil, err
	}
	if created {
		s.dispatcher.Dispatch(event.New(event.TypeNewDeviceLogin, user.ID, user.Email, map[string]string{
			"device_name": device.DeviceName,
			"ip":          in.IP,
			"city":        location.City,
			"country":     location.Country,
		}))
	}
	if device.IsCompromised {
		return nil, ErrDeviceCompromised
	}

	// MFA gate comes before any trust shortcut. Device trust never stands
	// in for the second factor.
	if user.MFAEnabled {
		if err := s.pending.StorePendingMFA(ctx, &cache.PendingMFALogin{
			UserID:          user.ID,
			FingerprintHash: device.FingerprintHash,
			Descriptor:      in.Descriptor,
			Location:        location,
			MFAMethod:       user.MFAMethod,
			CreatedAt:       time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
		s.auditor.Record(audit.Entry{
			UserID: user.ID, Action: audit.ActionMFAChallenge,
			FingerprintHash: device.FingerprintHash, IP: in.IP,
		})
		return &LoginResult{Status: LoginStatusMFARequired, User: user, Device: device, MFAMethod: user.MFAMethod}, nil
	}

	trusted, err := s.devices.Trusted(ctx, device)
	if err != nil {
		return nil, err
	}
	if trusted || device.IsVerified {
		return s.completeLogin(ctx, user, device, in.IP, in.UserAgent)
	}

	return s.beginDeviceVerification(ctx, user, device, in.Descriptor, location, in.IP)
}

// CompleteMFA verifies an authenticator or backup code for a parked login.
func (s *AuthService) CompleteMFA(ctx context.Context, in MFACompletionInput) (*LoginResult, error) {
	if in.Code == "" || in.FingerprintHash == "" {
		return nil, fmt.Errorf("%w: code and fingerprint are required", ErrValidation)
	}

	pending, err := s.pending.GetPendingMFA(ctx, in.UserID, in.FingerprintHash)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNoPendingLogin
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := s.credentials.CheckLockout(user); err != nil {
		return nil, err
	}
	if !user.IsUsable() {
		return nil, ErrAccountDisabled
	}

	if in.UseBackupCode {
		err = s.totps.VerifyBackupCode(ctx, user.ID, in.Code, in.IP)
	} else {
		err = s.totps.Verify(ctx, user.ID, in.Code)
	}
	if err != nil {
		s.auditor.Record(audit.Entry{
			UserID: user.ID, Action: audit.ActionMFAFailed,
			FingerprintHash: in.FingerprintHash, IP: in.IP,
		})
		return nil, err
	}

	if err := s.pending.DeletePendingMFA(ctx, in.UserID, in.FingerprintHash); err != nil {
		util.Warn("failed to clear pending MFA entry", util.ErrorField(err))
	}

	device, _, err := s.devices.Touch(ctx, user.ID, pending.Descriptor, pending.Location)
	if err != nil {
		return nil, err
	}
	if !device.IsVerified {
		if err := s.devices.MarkVerified(ctx, user.ID, device.FingerprintHash); err != nil {
			return nil, err
		}
		device.IsVerified = true
	}
	if in.RememberDevice {
		if err := s.devices.GrantTrust(ctx, user.ID, device.FingerprintHash, in.TrustDays); err != nil {
			return nil, err
		}
	}

	s.auditor.Record(audit.Entry{
		UserID: user.ID, Action: audit.ActionMFAVerified,
		FingerprintHash: device.FingerprintHash, IP: in.IP,
	})
	return s.completeLogin(ctx, user, device, in.IP, in.UserAgent)
}

// VerifyNewDevice consumes the OTP issued for an unrecognized device. A
// retry that arrives after the code was consumed but the device already
// verified is treated as a duplicate completion, not a failure.
func (s *AuthService) VerifyNewDevice(ctx context.Context, in DeviceVerificationInput) (*LoginResult, error) {
	if in.Code == "" || in.FingerprintHash == "" {
		return nil, fmt.Errorf("%w: code and fingerprint are required", ErrValidation)
	}

	otpID, err := s.pending.GetPendingOTPRef(ctx, in.UserID, in.FingerprintHash)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrNoPendingVerification
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := s.credentials.CheckLockout(user); err != nil {
		return nil, err
	}
	if !user.IsUsable() {
		return nil, ErrAccountDisabled
	}

	_, verifyErr := s.otps.Verify(ctx, user.ID, otpID, in.Code)
	if verifyErr != nil {
		if errors.Is(verifyErr, ErrOTPAlreadyUsed) {
			existing, derr := s.deviceByFingerprint(ctx, user.ID, in.FingerprintHash)
			if derr == nil && existing.IsVerified {
				return s.finishDeviceVerification(ctx, user, existing, in)
			}
		}
		if errors.Is(verifyErr, ErrOTPExpired) || errors.Is(verifyErr, ErrOTPAttemptsExceeded) {
			s.clearDeviceVerification(ctx, in.UserID, in.FingerprintHash)
		}
		return nil, verifyErr
	}

	device, err := s.deviceByFingerprint(ctx, user.ID, in.FingerprintHash)
	if err != nil {
		return nil, err
	}
	if !device.IsVerified {
		if err := s.devices.MarkVerified(ctx, user.ID, device.FingerprintHash); err != nil {
			return nil, err
		}
		device.IsVerified = true
	}
	s.dispatcher.Dispatch(event.New(event.TypeDeviceVerified, user.ID, user.Email, map[string]string{
		"device_name": device.DeviceName,
		"ip":          in.IP,
	}))
	return s.finishDeviceVerification(ctx, user, device, in)
}

// ResendDeviceOTP issues a replacement code for a pending device
// verification, subject to a cooldown and a resend budget.
func (s *AuthService) ResendDeviceOTP(ctx context.Context, userID uuid.UUID, fingerprintHash, ip string) error {
	if _, err := s.pending.GetPendingDevice(ctx, userID, fingerprintHash); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return ErrNoPendingVerification
		}
		return err
	}

	scope := "otp_resend:" + userID.String() + ":" + fingerprintHash
	ok, wait, err := s.limiter.Cooldown(ctx, scope, s.cfg.Security.OTPResendCooldown)
	if err != nil {
		return err
	}
	if !ok {
		return &RateLimitedError{RetryAfter: wait}
	}
	res, err := s.limiter.Allow(ctx, scope, s.cfg.Security.OTPResendLimit, s.cfg.Security.OTPResendWindow)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	otp, code, err := s.otps.Issue(ctx, userID, model.OTPPurposeDeviceVerification, user.Email, fingerprintHash, ip)
	if err != nil {
		return err
	}
	if err := s.pending.StorePendingOTPRef(ctx, userID, fingerprintHash, otp.ID); err != nil {
		return err
	}

	s.dispatcher.Dispatch(event.New(event.TypeOTPIssued, userID, user.Email, map[string]string{
		"purpose": string(model.OTPPurposeDeviceVerification),
		"code":    code,
	}))
	return nil
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is untouched; its session must still pass the validity chain.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", time.Time{}, ErrSessionExpired
		}
		return "", time.Time{}, err
	}

	blocked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	if blocked {
		return "", time.Time{}, ErrTokenBlacklisted
	}

	session, err := s.sessions.sessions.GetByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", time.Time{}, ErrSessionNotFound
		}
		return "", time.Time{}, fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.sessions.Validate(ctx, session); err != nil {
		return "", time.Time{}, err
	}

	access, expiresAt, err := s.tokens.IssueAccess(claims.UserID, claims.FingerprintHash)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to issue access token: %w", err)
	}
	return access, expiresAt, nil
}

// Logout blacklists the caller's tokens and revokes the backing session.
// A replayed logout fails with ErrTokenBlacklisted instead of silently
// succeeding, so clients notice stolen-token reuse.
func (s *AuthService) Logout(ctx context.Context, accessClaims *token.Claims, refreshToken string) error {
	fresh, err := s.blacklist.Add(ctx, accessClaims.ID, s.tokens.RemainingLifetime(accessClaims))
	if err != nil {
		return err
	}
	if !fresh {
		return ErrTokenBlacklisted
	}

	var session *model.Session
	if refreshToken != "" {
		claims, err := s.tokens.Parse(refreshToken, token.TypeRefresh)
		if err == nil {
			if _, err := s.blacklist.Add(ctx, claims.ID, s.tokens.RemainingLifetime(claims)); err != nil {
				util.Warn("failed to blacklist refresh token", util.ErrorField(err))
			}
			if sess, err := s.sessions.sessions.GetByJTI(ctx, claims.ID); err == nil {
				session = sess
			}
		}
	}
	if session == nil {
		sess, err := s.sessions.Resolve(ctx, accessClaims.UserID, "", accessClaims.FingerprintHash)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return nil
			}
			return err
		}
		session = sess
	}

	if session.IsActive {
		if err := s.sessions.Revoke(ctx, session.UserID, session.ID, model.RevokeReasonUserLogout); err != nil && !errors.Is(err, ErrSessionRevoked) {
			return err
		}
	}
	return nil
}

func (s *AuthService) identify(ctx context.Context, identifier string) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if util.IsEmailShaped(identifier) {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same error as a wrong password; identifiers are not probeable.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

func (s *AuthService) deviceByFingerprint(ctx context.Context, userID uuid.UUID, fingerprintHash string) (*model.Device, error) {
	device, err := s.devices.devices.GetByUserAndFingerprint(ctx, userID, fingerprintHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return device, nil
}

func (s *AuthService) beginDeviceVerification(ctx context.Context, user *model.User, device *model.Device, desc model.Descriptor, loc model.Location, ip string) (*LoginResult, error) {
	otp, code, err := s.otps.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, device.FingerprintHash, ip)
	if err != nil {
		return nil, err
	}

	if err := s.pending.StorePendingDevice(ctx, &cache.PendingDeviceData{
		UserID:          user.ID,
		FingerprintHash: device.FingerprintHash,
		Descriptor:      desc,
		Location:        loc,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if err := s.pending.StorePendingOTPRef(ctx, user.ID, device.FingerprintHash, otp.ID); err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(event.New(event.TypeOTPIssued, user.ID, user.Email, map[string]string{
		"purpose": string(model.OTPPurposeDeviceVerification),
		"code":    code,
	}))

	return &LoginResult{
		Status:    LoginStatusDeviceUnverified,
		User:      user,
		Device:    device,
		OTPTarget: util.MaskEmail(user.Email),
	}, nil
}

func (s *AuthService) finishDeviceVerification(ctx context.Context, user *model.User, device *model.Device, in DeviceVerificationInput) (*LoginResult, error) {
	if in.RememberDevice {
		if err := s.devices.GrantTrust(ctx, user.ID, device.FingerprintHash, in.TrustDays); err != nil {
			return nil, err
		}
	}
	s.clearDeviceVerification(ctx, user.ID, device.FingerprintHash)
	return s.completeLogin(ctx, user, device, in.IP, in.UserAgent)
}

func (s *AuthService) clearDeviceVerification(ctx context.Context, userID uuid.UUID, fingerprintHash string) {
	if err := s.pending.DeletePendingOTPRef(ctx, userID, fingerprintHash); err != nil {
		util.Warn("failed to clear pending OTP ref", util.ErrorField(err))
	}
	if err := s.pending.DeletePendingDevice(ctx, userID, fingerprintHash); err != nil {
		util.Warn("failed to clear pending device data", util.ErrorField(err))
	}
}

func (s *AuthService) completeLogin(ctx context.Context, user *model.User, device *model.Device, ip, userAgent string) (*LoginResult, error) {
	session, pair, err := s.sessions.Create(ctx, user, device, ip, userAgent)
	if err != nil {
		return nil, err
	}

	s.credentials.RecordLogin(ctx, user, ip)
	s.auditor.Record(audit.Entry{
		UserID:          user.ID,
		Action:          audit.ActionLoginSuccess,
		FingerprintHash: device.FingerprintHash,
		IP:              ip,
		UserAgent:       userAgent,
	})
	util.Info("login completed",
		util.String("user_id", user.ID.String()),
		util.String("session_id", session.ID.String()),
	)

	return &LoginResult{
		Status:  LoginStatusOK,
		User:    user,
		Device:  device,
		Session: session,
		Tokens:  pair,
	}, nil
}
