package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
)

func newTestHasher(pepper string) *Hasher {
	cfg := &config.Config{}
	cfg.Hashing.Argon2MemoryCost = 8 * 1024
	cfg.Hashing.Argon2TimeCost = 1
	cfg.Hashing.Argon2Parallelism = 1
	cfg.Hashing.Pepper = pepper
	return NewHasher(cfg)
}

func TestHashAndVerifyPassword(t *testing.T) {
	h := newTestHasher("")

	encoded, err := h.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	h := newTestHasher("")

	a, err := h.HashPassword("same password")
	require.NoError(t, err)
	b, err := h.HashPassword("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordPepperMismatch(t *testing.T) {
	withPepper := newTestHasher("pepper-a")
	encoded, err := withPepper.HashPassword("secret")
	require.NoError(t, err)

	other := newTestHasher("pepper-b")
	ok, err := other.VerifyPassword("secret", encoded)
	require.NoError(t, err)
	assert.False(t, ok, "a different pepper must not verify")
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	h := newTestHasher("")
	_, err := h.VerifyPassword("x", "not-an-encoded-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestHashCode(t *testing.T) {
	assert.Equal(t, HashCode("123456"), HashCode("123456"))
	assert.NotEqual(t, HashCode("123456"), HashCode("123457"))
	assert.Len(t, HashCode("123456"), 64)
}

func TestHashBackupCodeNormalizes(t *testing.T) {
	assert.Equal(t, HashBackupCode("a3kf-9xtz"), HashBackupCode("A3KF-9XTZ"))
	assert.Equal(t, HashBackupCode("  A3KF-9XTZ  "), HashBackupCode("A3KF-9XTZ"))
}

func TestCompareCodeHash(t *testing.T) {
	a := HashCode("111111")
	assert.True(t, CompareCodeHash(a, HashCode("111111")))
	assert.False(t, CompareCodeHash(a, HashCode("222222")))
}
