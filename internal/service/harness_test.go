package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/cache"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/geo"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/keyvalue"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/ratelimit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository/memory"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
)

// testEnv wires the full service graph onto in-memory backends.
type testEnv struct {
	users    *memory.UserRepository
	devices  *memory.DeviceRepository
	sessions *memory.SessionRepository
	otps     *memory.OTPRepository
	totps    *memory.TOTPRepository
	backups  *memory.BackupCodeRepository

	store     *keyvalue.MemoryStore
	pending   *cache.PendingCache
	limiter   *ratelimit.Limiter
	tokens    *token.Manager
	blacklist *token.Blacklist
	hasher    *hashing.Hasher
	cfg       *config.Config

	sf *ServiceFactory
}

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.JWT = config.JWTConfig{
		Secret:          "test-secret",
		Issuer:          "test-issuer",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
	cfg.Security = config.SecurityConfig{
		MaxFailedLogins:    5,
		LockoutDuration:    30 * time.Minute,
		OTPLength:          6,
		OTPTTL:             10 * time.Minute,
		OTPMaxAttempts:     3,
		OTPResendCooldown:  time.Minute,
		OTPResendLimit:     3,
		OTPResendWindow:    10 * time.Minute,
		EmailResendLimit:   4,
		EmailResendWindow:  time.Hour,
		PendingTTL:         10 * time.Minute,
		DefaultTrustDays:   30,
		SessionTTL:         7 * 24 * time.Hour,
		LoginRateLimit:     5,
		LoginRateWindow:    time.Minute,
		RegisterRateLimit:  10,
		RegisterRateWindow: time.Minute,
		BackupCodeCount:    10,
		TOTPIssuer:         "TestMFA",
	}
	// Light argon2 parameters; production cost is irrelevant here.
	cfg.Hashing = config.HashingConfig{
		Argon2MemoryCost:  8 * 1024,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
	}
	cfg.Geo = config.GeoConfig{Enabled: false}
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	store := keyvalue.NewMemoryStore()
	t.Cleanup(store.Close)

	tokens, err := token.NewManager(cfg.JWT)
	require.NoError(t, err)

	env := &testEnv{
		users:     memory.NewUserRepository(),
		devices:   memory.NewDeviceRepository(),
		sessions:  memory.NewSessionRepository(),
		otps:      memory.NewOTPRepository(),
		totps:     memory.NewTOTPRepository(),
		backups:   memory.NewBackupCodeRepository(),
		store:     store,
		pending:   cache.NewPendingCache(store, cfg.Security.PendingTTL),
		limiter:   ratelimit.NewLimiter(store),
		tokens:    tokens,
		blacklist: token.NewBlacklist(store),
		hasher:    hashing.NewHasher(cfg),
		cfg:       cfg,
	}

	env.sf = NewServiceFactory(
		Repositories{
			Users:       env.users,
			Devices:     env.devices,
			Sessions:    env.sessions,
			OTPs:        env.otps,
			TOTPs:       env.totps,
			BackupCodes: env.backups,
		},
		Infrastructure{
			Hasher:      env.hasher,
			Tokens:      env.tokens,
			Blacklist:   env.blacklist,
			Pending:     env.pending,
			Limiter:     env.limiter,
			GeoResolver: geo.NewResolver(cfg.Geo),
			Dispatcher:  nil,
			Auditor:     nil,
		},
		cfg,
	)
	return env
}

type userOption func(*model.User)

func withUnverifiedEmail() userOption {
	return func(u *model.User) {
		u.EmailVerified = false
		u.EmailVerifiedAt = nil
	}
}

func withInactive() userOption {
	return func(u *model.User) { u.IsActive = false }
}

// createUser seeds an active user with a verified email.
func (e *testEnv) createUser(t *testing.T, email, username, password string, opts ...userOption) *model.User {
	t.Helper()

	hash, err := e.hasher.HashPassword(password)
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &model.User{
		ID:              uuid.New(),
		Email:           email,
		Username:        username,
		PasswordHash:    hash,
		Role:            model.RoleUser,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// enrollTOTP runs the real setup flow and returns the shared secret and the
// plaintext backup codes.
func (e *testEnv) enrollTOTP(t *testing.T, user *model.User) (string, []string) {
	t.Helper()
	ctx := context.Background()

	info, err := e.sf.TOTPService().BeginSetup(ctx, user)
	require.NoError(t, err)

	code := totpCode(t, info.Secret)
	backupCodes, err := e.sf.TOTPService().ConfirmSetup(ctx, user, code)
	require.NoError(t, err)

	fresh, err := e.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	*user = *fresh
	return info.Secret, backupCodes
}

// totpCode mints a currently valid authenticator code for the secret.
func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	return code
}

func descriptor(fingerprint string) model.Descriptor {
	return model.Descriptor{
		FingerprintHash: fingerprint,
		DeviceName:      "Test Laptop",
		DeviceType:      "desktop",
		Browser:         "Firefox",
		OS:              "Linux",
	}
}
