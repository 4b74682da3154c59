package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/cache"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
)

func registerInput(email, username string) RegisterInput {
	return RegisterInput{
		Email:    email,
		Username: username,
		Password: "password123",
		IP:       "1.2.3.4",
	}
}

// issueEmailCode plants a fresh, observable verification code for the user.
// It lands in the same scope as the code sent at signup, superseding it.
func (e *testEnv) issueEmailCode(t *testing.T, user *model.User) string {
	t.Helper()
	_, code, err := e.sf.OTPService().Issue(context.Background(), user.ID, model.OTPPurposeEmailVerification, user.Email, "", "1.2.3.4")
	require.NoError(t, err)
	return code
}

// issueResetCode plants an observable password reset code and its pending
// reference, mirroring what ForgotPassword does internally.
func (e *testEnv) issueResetCode(t *testing.T, user *model.User) string {
	t.Helper()
	ctx := context.Background()
	otpRow, code, err := e.sf.OTPService().Issue(ctx, user.ID, model.OTPPurposePasswordReset, user.Email, "", "1.2.3.4")
	require.NoError(t, err)
	require.NoError(t, e.pending.StorePasswordResetRef(ctx, user.ID, otpRow.ID))
	return code
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.sf.AccountService().Register(ctx, registerInput("New@Example.com", "newuser"))
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email, "email is normalized")
	assert.Equal(t, model.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.EmailVerified)
	assert.NotEqual(t, "password123", user.PasswordHash)

	// Signup leaves a live verification code behind.
	_, err = env.sf.OTPService().FindLive(ctx, user.ID, model.OTPPurposeEmailVerification, "")
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.sf.AccountService()

	_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Username: "someone", Password: "password123", IP: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Username: "ab", Password: "password123", IP: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.com", Username: "someone", Password: "short", IP: "1.2.3.4"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.sf.AccountService()

	_, err := svc.Register(ctx, registerInput("taken@example.com", "taken"))
	require.NoError(t, err)

	_, err = svc.Register(ctx, registerInput("taken@example.com", "someoneelse"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Register(ctx, registerInput("fresh@example.com", "taken"))
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Security.RegisterRateLimit = 2
	ctx := context.Background()
	svc := env.sf.AccountService()

	for i := 0; i < 2; i++ {
		in := registerInput(uuid.NewString()+"@example.com", "user"+uuid.NewString()[:8])
		_, err := svc.Register(ctx, in)
		require.NoError(t, err)
	}

	_, err := svc.Register(ctx, registerInput("last@example.com", "lastuser"))
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.sf.AccountService().Register(ctx, registerInput("alice@example.com", "alice"))
	require.NoError(t, err)
	code := env.issueEmailCode(t, user)

	require.NoError(t, env.sf.AccountService().VerifyEmail(ctx, "alice@example.com", code))

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, fresh.EmailVerified)
	require.NotNil(t, fresh.EmailVerifiedAt)

	// A second verification reports the address as already done.
	err = env.sf.AccountService().VerifyEmail(ctx, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrEmailVerified)
}

func TestVerifyEmailWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.sf.AccountService().Register(ctx, registerInput("alice@example.com", "alice"))
	require.NoError(t, err)
	env.issueEmailCode(t, user)

	err = env.sf.AccountService().VerifyEmail(ctx, "alice@example.com", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, fresh.EmailVerified)
}

func TestVerifyEmailUnknownAddress(t *testing.T) {
	env := newTestEnv(t)

	err := env.sf.AccountService().VerifyEmail(context.Background(), "ghost@example.com", "123456")
	assert.ErrorIs(t, err, ErrInvalidCode, "unknown addresses are not distinguishable")
}

func TestResendEmailVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := env.sf.AccountService()

	user, err := svc.Register(ctx, registerInput("alice@example.com", "alice"))
	require.NoError(t, err)

	require.NoError(t, svc.ResendEmailVerification(ctx, "alice@example.com", "1.2.3.4"))

	// An immediate retry hits the cooldown.
	err = svc.ResendEmailVerification(ctx, "alice@example.com", "1.2.3.4")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Unknown and already-verified addresses succeed silently.
	assert.NoError(t, svc.ResendEmailVerification(ctx, "ghost@example.com", "1.2.3.4"))
	require.NoError(t, env.users.UpdateEmailVerified(ctx, user.ID, time.Now().UTC()))
	assert.NoError(t, svc.ResendEmailVerification(ctx, "alice@example.com", "1.2.3.4"))
}

func TestForgotPasswordStoresResetRef(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com", "alice", "password123")

	require.NoError(t, env.sf.AccountService().ForgotPassword(ctx, "alice@example.com", "1.2.3.4"))

	otpID, err := env.pending.GetPasswordResetRef(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, otpID)

	// Unknown addresses report success and leave no trace.
	assert.NoError(t, env.sf.AccountService().ForgotPassword(ctx, "ghost@example.com", "1.2.3.4"))
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com", "alice", "password123")

	// An open lockout and a live session, both to be cleared by the reset.
	until := time.Now().UTC().Add(time.Hour)
	require.NoError(t, env.users.UpdateLockout(ctx, user.ID, 5, &until))
	device := env.createDevice(t, user.ID, "fp-1")
	session, _, err := env.sf.SessionService().Create(ctx, user, device, "1.2.3.4", "ua")
	require.NoError(t, err)

	code := env.issueResetCode(t, user)
	require.NoError(t, env.sf.AccountService().ResetPassword(ctx, "alice@example.com", code, "brand-new-pass", "1.2.3.4"))

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := env.hasher.VerifyPassword("brand-new-pass", fresh.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, fresh.IsLocked(time.Now().UTC()), "a successful reset clears the lockout")

	stored, err := env.sessions.GetByID(ctx, user.ID, session.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "every session dies on reset")

	// The reset reference is single-use.
	_, err = env.pending.GetPasswordResetRef(ctx, user.ID)
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestResetPasswordWithoutRequest(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice@example.com", "alice", "password123")

	err := env.sf.AccountService().ResetPassword(context.Background(), "alice@example.com", "123456", "brand-new-pass", "1.2.3.4")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestResetPasswordWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com", "alice", "password123")
	env.issueResetCode(t, user)

	err := env.sf.AccountService().ResetPassword(ctx, "alice@example.com", "000000", "brand-new-pass", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCode)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := env.hasher.VerifyPassword("password123", fresh.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok, "the old password survives a failed reset")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com", "alice", "password123")
	svc := env.sf.SessionService()

	current := env.createDevice(t, user.ID, "fp-current")
	other := env.createDevice(t, user.ID, "fp-other")
	keep, _, err := svc.Create(ctx, user, current, "1.2.3.4", "ua")
	require.NoError(t, err)
	drop, _, err := svc.Create(ctx, user, other, "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, env.sf.AccountService().ChangePassword(ctx, user, "password123", "brand-new-pass", keep.ID, "1.2.3.4"))

	stored, err := env.sessions.GetByID(ctx, user.ID, keep.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive, "the session that made the change survives")

	stored, err = env.sessions.GetByID(ctx, user.ID, drop.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	fresh, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	ok, err := env.hasher.VerifyPassword("brand-new-pass", fresh.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com", "alice", "password123")

	err := env.sf.AccountService().ChangePassword(context.Background(), user, "not-the-password", "brand-new-pass", uuid.Nil, "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePasswordValidatesNew(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com", "alice", "password123")

	err := env.sf.AccountService().ChangePassword(context.Background(), user, "password123", "short", uuid.Nil, "1.2.3.4")
	assert.ErrorIs(t, err, ErrValidation)
}
