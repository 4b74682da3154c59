package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
)

var backupCodeShape = regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)

func TestTOTPSetupFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	svc := env.sf.TOTPService()

	info, err := svc.BeginSetup(ctx, user)
	require.NoError(t, err)
	assert.NotEmpty(t, info.Secret)
	assert.Contains(t, info.URI, "otpauth://totp/")
	assert.Contains(t, info.URI, "TestMFA")

	codes, err := svc.ConfirmSetup(ctx, user, totpCode(t, info.Secret))
	require.NoError(t, err)
	require.Len(t, codes, 10)
	for _, code := range codes {
		assert.Regexp(t, backupCodeShape, code)
	}

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.MFAEnabled)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 10, status.BackupCodesRemaining)
}

func TestTOTPBeginSetupRefusedWhenVerified(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	env.enrollTOTP(t, user)

	_, err := env.sf.TOTPService().BeginSetup(context.Background(), user)
	assert.ErrorIs(t, err, ErrTOTPAlreadyEnabled)
}

func TestTOTPBeginSetupReplacesAbandonedAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	svc := env.sf.TOTPService()

	first, err := svc.BeginSetup(ctx, user)
	require.NoError(t, err)
	second, err := svc.BeginSetup(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret confirms.
	_, err = svc.ConfirmSetup(ctx, user, totpCode(t, first.Secret))
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = svc.ConfirmSetup(ctx, user, totpCode(t, second.Secret))
	assert.NoError(t, err)
}

func TestTOTPConfirmSetupRequiresBegin(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")

	_, err := env.sf.TOTPService().ConfirmSetup(context.Background(), user, "123456")
	assert.ErrorIs(t, err, ErrTOTPNotConfigured)
}

// mfaFlipFailRepo fails the account-level MFA flip while every other user
// operation keeps working.
type mfaFlipFailRepo struct {
	repository.UserRepository
}

func (r *mfaFlipFailRepo) UpdateMFA(ctx context.Context, id uuid.UUID, enabled bool, method model.MFAMethod) error {
	return errors.New("users table unavailable")
}

func TestTOTPConfirmSetupRollsBackOnEnableFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	svc := NewTOTPService(env.totps, env.backups, &mfaFlipFailRepo{UserRepository: env.users}, env.cfg, nil)

	info, err := svc.BeginSetup(ctx, user)
	require.NoError(t, err)
	_, err = svc.ConfirmSetup(ctx, user, totpCode(t, info.Secret))
	require.Error(t, err)

	// No half-enrolled state: the credential is back to unverified, no
	// backup codes exist and the account flag never flipped.
	cred, err := env.totps.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, cred.IsVerified)

	codes, err := env.backups.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, codes)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, fresh.MFAEnabled)
}

func TestTOTPVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	secret, _ := env.enrollTOTP(t, user)
	svc := env.sf.TOTPService()

	require.NoError(t, svc.Verify(ctx, user.ID, totpCode(t, secret)))
	assert.ErrorIs(t, svc.Verify(ctx, user.ID, "000000"), ErrInvalidCode)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, status.LastUsedAt)
}

func TestTOTPVerifyWithoutCredential(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")

	err := env.sf.TOTPService().Verify(context.Background(), user.ID, "123456")
	assert.ErrorIs(t, err, ErrTOTPNotConfigured)
}

func TestBackupCodeSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	_, codes := env.enrollTOTP(t, user)
	svc := env.sf.TOTPService()

	require.NoError(t, svc.VerifyBackupCode(ctx, user.ID, codes[0], "1.2.3.4"))

	// The same code never works twice, and the caller is told why.
	err := svc.VerifyBackupCode(ctx, user.ID, codes[0], "1.2.3.4")
	assert.ErrorIs(t, err, ErrBackupCodeAlreadyUsed)

	// A code from outside the batch is just wrong.
	err = svc.VerifyBackupCode(ctx, user.ID, "ZZZZ-ZZZZ", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCode)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, status.BackupCodesRemaining)
}

func TestBackupCodeCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	_, codes := env.enrollTOTP(t, user)

	lowered := "  " + strings.ToLower(codes[0]) + "  "
	require.NoError(t, env.sf.TOTPService().VerifyBackupCode(ctx, user.ID, lowered, "1.2.3.4"))
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	_, old := env.enrollTOTP(t, user)
	svc := env.sf.TOTPService()

	fresh, err := svc.RegenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 10)
	assert.NotEqual(t, old, fresh)

	// Unused codes from the old batch stop working immediately.
	err = svc.VerifyBackupCode(ctx, user.ID, old[0], "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCode)
	require.NoError(t, svc.VerifyBackupCode(ctx, user.ID, fresh[0], "1.2.3.4"))
}

func TestRegenerateBackupCodesRequiresVerifiedCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	svc := env.sf.TOTPService()

	_, err := svc.RegenerateBackupCodes(ctx, user.ID)
	assert.ErrorIs(t, err, ErrTOTPNotConfigured)

	_, err = svc.BeginSetup(ctx, user)
	require.NoError(t, err)
	_, err = svc.RegenerateBackupCodes(ctx, user.ID)
	assert.ErrorIs(t, err, ErrTOTPNotConfigured, "an unconfirmed setup must not mint codes")
}

func TestTOTPDisable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")
	secret, codes := env.enrollTOTP(t, user)
	svc := env.sf.TOTPService()

	require.NoError(t, svc.Disable(ctx, user.ID))

	assert.ErrorIs(t, svc.Verify(ctx, user.ID, totpCode(t, secret)), ErrTOTPNotConfigured)
	assert.ErrorIs(t, svc.VerifyBackupCode(ctx, user.ID, codes[0], "1.2.3.4"), ErrInvalidCode)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, fresh.MFAEnabled)

	status, err := svc.Status(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Zero(t, status.BackupCodesRemaining)
}

func TestTOTPDisableWithoutCredential(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "totp@example.com", "totpuser", "password123")

	err := env.sf.TOTPService().Disable(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrTOTPNotConfigured)
}
