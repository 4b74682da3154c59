package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/event"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// Alphabet for backup codes; ambiguous glyphs (0/O, 1/I) are excluded so the
// codes survive being read off paper.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// SetupInfo is handed back when TOTP enrollment begins. The secret is shown
// exactly once; afterwards only verification results are observable.
type SetupInfo struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// MFAStatus summarizes a user's authenticator state.
type MFAStatus struct {
	Enabled              bool       `json:"enabled"`
	Verified             bool       `json:"verified"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// TOTPService manages authenticator credentials and backup codes.
type TOTPService struct {
	totps      repository.TOTPRepository
	backups    repository.BackupCodeRepository
	users      repository.UserRepository
	cfg        *config.Config
	dispatcher *event.Dispatcher
}

func NewTOTPService(
	totps repository.TOTPRepository,
	backups repository.BackupCodeRepository,
	users repository.UserRepository,
	cfg *config.Config,
	dispatcher *event.Dispatcher,
) *TOTPService {
	return &TOTPService{totps: totps, backups: backups, users: users, cfg: cfg, dispatcher: dispatcher}
}

// BeginSetup generates a secret and provisioning URI. Refused while a
// verified credential exists; an unverified leftover from an abandoned setup
// is silently replaced.
func (s *TOTPService) BeginSetup(ctx context.Context, user *model.User) (*SetupInfo, error) {
	existing, err := s.totps.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing credential: %w", err)
	}
	if existing != nil && existing.IsVerified {
		return nil, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Security.TOTPIssuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	now := time.Now().UTC()
	cred := &model.TOTPCredential{
		ID:        uuid.New(),
		UserID:    user.ID,
		Secret:    key.Secret(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	}
	if err := s.totps.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	return &SetupInfo{Secret: key.Secret(), URI: key.URL()}, nil
}

// ConfirmSetup validates the first code from the authenticator, marks the
// credential verified, enables MFA on the account and mints the backup code
// batch. The plaintext codes are returned once and never again.
func (s *TOTPService) ConfirmSetup(ctx context.Context, user *model.User, code string) ([]string, error) {
	cred, err := s.totps.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTOTPNotConfigured
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred.IsVerified {
		return nil, ErrTOTPAlreadyEnabled
	}

	if !s.validateCode(cred.Secret, code) {
		return nil, ErrInvalidCode
	}

	now := time.Now().UTC()
	cred.IsVerified = true
	cred.VerifiedAt = &now
	cred.UpdatedAt = now
	if err := s.totps.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	// Enable MFA before minting backup codes. If the account flip fails
	// the credential is rolled back to unverified, so no half-enrolled
	// state survives; a failed mint afterwards leaves MFA on and codes
	// recoverable through regeneration.
	if err := s.users.UpdateMFA(ctx, user.ID, true, model.MFAMethodTOTP); err != nil {
		cred.IsVerified = false
		cred.VerifiedAt = nil
		cred.UpdatedAt = time.Now().UTC()
		if saveErr := s.totps.Save(ctx, cred); saveErr != nil {
			util.Warn("failed to roll back credential after MFA enable failure", util.ErrorField(saveErr))
		}
		return nil, fmt.Errorf("failed to enable MFA: %w", err)
	}

	plaintext, err := s.mintBackupCodes(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(event.New(event.TypeMFAEnabled, user.ID, user.Email, nil))
	util.Info("TOTP enabled", util.String("user_id", user.ID.String()))
	return plaintext, nil
}

// Verify checks an authenticator code against the verified credential,
// accepting one time step of clock skew in each direction.
func (s *TOTPService) Verify(ctx context.Context, userID uuid.UUID, code string) error {
	cred, err := s.totps.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTOTPNotConfigured
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if !cred.IsVerified {
		return ErrTOTPNotConfigured
	}

	now := time.Now().UTC()
	if !s.validateCode(cred.Secret, code) {
		if err := s.totps.UpdateStats(ctx, userID, cred.LastUsedAt, cred.TotalVerifications, cred.FailedAttempts+1); err != nil {
			util.Warn("failed to record TOTP failure", util.ErrorField(err))
		}
		return ErrInvalidCode
	}

	if err := s.totps.UpdateStats(ctx, userID, &now, cred.TotalVerifications+1, cred.FailedAttempts); err != nil {
		util.Warn("failed to record TOTP success", util.ErrorField(err))
	}
	return nil
}

// VerifyBackupCode consumes one unused backup code. Each code works exactly
// once; resubmitting a consumed code reports it as already used rather than
// merely wrong.
func (s *TOTPService) VerifyBackupCode(ctx context.Context, userID uuid.UUID, code, ip string) error {
	codes, err := s.backups.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load backup codes: %w", err)
	}

	submitted := hashing.HashBackupCode(code)
	for _, c := range codes {
		if !hashing.CompareCodeHash(c.CodeHash, submitted) {
			continue
		}
		if c.IsUsed {
			return ErrBackupCodeAlreadyUsed
		}
		if err := s.backups.MarkUsed(ctx, userID, c.ID, time.Now().UTC(), ip); err != nil {
			return fmt.Errorf("failed to consume backup code: %w", err)
		}
		util.Info("backup code consumed",
			util.String("user_id", userID.String()),
			util.String("ip", ip),
		)
		return nil
	}
	return ErrInvalidCode
}

// Disable tears down the credential and all backup codes.
func (s *TOTPService) Disable(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.totps.Get(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTOTPNotConfigured
		}
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if err := s.totps.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := s.backups.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	if err := s.users.UpdateMFA(ctx, userID, false, ""); err != nil {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}

	if user, err := s.users.GetByID(ctx, userID); err == nil {
		s.dispatcher.Dispatch(event.New(event.TypeMFADisabled, userID, user.Email, nil))
	}
	util.Info("TOTP disabled", util.String("user_id", userID.String()))
	return nil
}

// RegenerateBackupCodes replaces the whole batch. Requires a verified
// credential; unused codes from the old batch stop working immediately.
func (s *TOTPService) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	cred, err := s.totps.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTOTPNotConfigured
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !cred.IsVerified {
		return nil, ErrTOTPNotConfigured
	}
	return s.mintBackupCodes(ctx, userID)
}

// Status reports the authenticator state without exposing secret material.
func (s *TOTPService) Status(ctx context.Context, userID uuid.UUID) (*MFAStatus, error) {
	status := &MFAStatus{}

	cred, err := s.totps.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return status, nil
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	status.Enabled = cred.IsVerified
	status.Verified = cred.IsVerified
	status.VerifiedAt = cred.VerifiedAt
	status.LastUsedAt = cred.LastUsedAt

	codes, err := s.backups.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup codes: %w", err)
	}
	for _, c := range codes {
		if !c.IsUsed {
			status.BackupCodesRemaining++
		}
	}
	return status, nil
}

func (s *TOTPService) validateCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *TOTPService) mintBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	count := s.cfg.Security.BackupCodeCount
	if count <= 0 {
		count = 10
	}

	now := time.Now().UTC()
	plaintext := make([]string, 0, count)
	rows := make([]*model.BackupCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		plaintext = append(plaintext, code)
		rows = append(rows, &model.BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  hashing.HashBackupCode(code),
			CreatedAt: now,
		})
	}

	if err := s.backups.ReplaceAll(ctx, userID, rows); err != nil {
		return nil, fmt.Errorf("failed to store backup codes: %w", err)
	}
	return plaintext, nil
}

// generateBackupCode produces a code shaped like "A3KF-9XTZ".
func generateBackupCode() (string, error) {
	raw := make([]byte, 8)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := range raw {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		raw[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(raw[:4]) + "-" + string(raw[4:]), nil
}
