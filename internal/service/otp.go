package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// OTPService issues and verifies short numeric codes. Issuing a new code for
// a (user, purpose, fingerprint) scope invalidates any earlier unused code in
// the same scope, so at most one code is live per scope at any moment.
type OTPService struct {
	otps repository.OTPRepository
	cfg  *config.Config
}

func NewOTPService(otps repository.OTPRepository, cfg *config.Config) *OTPService {
	return &OTPService{otps: otps, cfg: cfg}
}

// Issue creates a fresh code and returns both the stored row and the
// plaintext code. The plaintext exists only in memory for delivery; storage
// sees the hash.
func (s *OTPService) Issue(ctx context.Context, userID uuid.UUID, purpose model.OTPPurpose, target, fingerprintHash, ip string) (*model.OTP, string, error) {
	if err := s.otps.InvalidateUnused(ctx, userID, purpose, fingerprintHash); err != nil {
		return nil, "", fmt.Errorf("failed to invalidate previous codes: %w", err)
	}

	code, err := generateNumericCode(s.cfg.Security.OTPLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate code: %w", err)
	}

	now := time.Now().UTC()
	otp := &model.OTP{
		ID:              uuid.New(),
		UserID:          userID,
		Purpose:         purpose,
		CodeHash:        hashing.HashCode(code),
		Target:          target,
		FingerprintHash: fingerprintHash,
		MaxAttempts:     s.cfg.Security.OTPMaxAttempts,
		ExpiresAt:       now.Add(s.cfg.Security.OTPTTL),
		IssuedIP:        ip,
		CreatedAt:       now,
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return nil, "", fmt.Errorf("failed to store code: %w", err)
	}

	util.Debug("issued one-time code",
		util.String("user_id", userID.String()),
		util.String("purpose", string(purpose)),
		util.String("otp_id", otp.ID.String()),
	)
	return otp, code, nil
}

// Verify checks a submitted code against a specific issued row. State checks
// run in a fixed order so a consumed code always reports as used rather than
// expired, and a wrong submission burns an attempt.
func (s *OTPService) Verify(ctx context.Context, userID, otpID uuid.UUID, code string) (*model.OTP, error) {
	otp, err := s.otps.GetByID(ctx, userID, otpID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	now := time.Now().UTC()
	switch {
	case otp.IsUsed:
		return nil, ErrOTPAlreadyUsed
	case now.After(otp.ExpiresAt):
		return nil, ErrOTPExpired
	case otp.Attempts >= otp.MaxAttempts:
		return nil, ErrOTPAttemptsExceeded
	}

	if !hashing.CompareCodeHash(otp.CodeHash, hashing.HashCode(code)) {
		otp.Attempts++
		if err := s.otps.UpdateAttempts(ctx, userID, otpID, otp.Attempts); err != nil {
			return nil, fmt.Errorf("failed to record attempt: %w", err)
		}
		if otp.RemainingAttempts() == 0 {
			return nil, ErrOTPAttemptsExceeded
		}
		return nil, &WrongCodeError{AttemptsLeft: otp.RemainingAttempts()}
	}

	if err := s.otps.MarkUsed(ctx, userID, otpID, now); err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	otp.IsUsed = true
	otp.UsedAt = &now
	return otp, nil
}

// FindLive returns the single usable code in a (user, purpose, fingerprint)
// scope, or ErrOTPNotFound. Issue keeps the one-live-code invariant, so the
// newest usable match is the only one.
func (s *OTPService) FindLive(ctx context.Context, userID uuid.UUID, purpose model.OTPPurpose, fingerprintHash string) (*model.OTP, error) {
	all, err := s.otps.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}

	now := time.Now().UTC()
	var live *model.OTP
	for _, o := range all {
		if o.Purpose != purpose || o.FingerprintHash != fingerprintHash || !o.Usable(now) {
			continue
		}
		if live == nil || o.CreatedAt.After(live.CreatedAt) {
			live = o
		}
	}
	if live == nil {
		return nil, ErrOTPNotFound
	}
	return live, nil
}

func generateNumericCode(length int) (string, error) {
	if length < 4 {
		length = 6
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
