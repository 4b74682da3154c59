package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

func TestOTPIssueAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")

	issued, code, err := env.sf.OTPService().Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.NotEqual(t, code, issued.CodeHash, "plaintext must never be stored")

	verified, err := env.sf.OTPService().Verify(ctx, user.ID, issued.ID, code)
	require.NoError(t, err)
	assert.True(t, verified.IsUsed)
	require.NotNil(t, verified.UsedAt)
}

func TestOTPIssueInvalidatesPreviousInScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")
	svc := env.sf.OTPService()

	first, firstCode, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)
	second, _, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)

	// The superseded code is dead even when the submission is correct.
	_, err = svc.Verify(ctx, user.ID, first.ID, firstCode)
	assert.ErrorIs(t, err, ErrOTPAlreadyUsed)

	live, err := svc.FindLive(ctx, user.ID, model.OTPPurposeDeviceVerification, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
}

func TestOTPIssueScopesAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")
	svc := env.sf.OTPService()

	forA, codeA, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-a", "1.2.3.4")
	require.NoError(t, err)
	_, _, err = svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-b", "1.2.3.4")
	require.NoError(t, err)

	// Issuing for a different fingerprint leaves fp-a's code usable.
	got, err := svc.Verify(ctx, user.ID, forA.ID, codeA)
	require.NoError(t, err)
	assert.True(t, got.IsUsed)
}

func TestOTPVerifyWrongCodeBurnsAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")
	svc := env.sf.OTPService()

	issued, code, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, user.ID, issued.ID, "000000")
	var wrong *WrongCodeError
	require.ErrorAs(t, err, &wrong)
	assert.Equal(t, 2, wrong.AttemptsLeft)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Verify(ctx, user.ID, issued.ID, "000000")
	require.ErrorAs(t, err, &wrong)
	assert.Equal(t, 1, wrong.AttemptsLeft)

	// The third miss exhausts the budget.
	_, err = svc.Verify(ctx, user.ID, issued.ID, "000000")
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)

	// Even the right code is refused afterwards.
	_, err = svc.Verify(ctx, user.ID, issued.ID, code)
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)
}

func TestOTPVerifyExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")

	expiredCfg := testConfig()
	expiredCfg.Security.OTPTTL = -time.Minute
	svc := NewOTPService(env.otps, expiredCfg)

	issued, code, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, user.ID, issued.ID, code)
	assert.ErrorIs(t, err, ErrOTPExpired)

	_, err = svc.FindLive(ctx, user.ID, model.OTPPurposeDeviceVerification, "fp-1")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPVerifyUsedWinsOverExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")
	svc := env.sf.OTPService()

	issued, code, err := svc.Issue(ctx, user.ID, model.OTPPurposeDeviceVerification, user.Email, "fp-1", "1.2.3.4")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, user.ID, issued.ID, code)
	require.NoError(t, err)

	// A consumed code reports as used, not as anything else.
	_, err = svc.Verify(ctx, user.ID, issued.ID, code)
	assert.ErrorIs(t, err, ErrOTPAlreadyUsed)
}

func TestOTPVerifyUnknownID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "otp@example.com", "otpuser", "password123")

	_, err := env.sf.OTPService().Verify(ctx, user.ID, user.ID, "123456")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}
