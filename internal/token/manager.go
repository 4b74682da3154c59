package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongType     = errors.New("wrong token type")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingSecret = errors.New("jwt secret not configured")
)

// Claims carried by both access and refresh tokens. TokenType prevents a
// refresh token from being replayed as an access token and vice versa.
type Claims struct {
	UserID          uuid.UUID `json:"uid"`
	TokenType       string    `json:"typ"`
	FingerprintHash string    `json:"fph,omitempty"`
	jwt.RegisteredClaims
}

// Pair is one issued access+refresh set. RefreshJTI is what the session row
// keys off; AccessJTI rotates on every refresh.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessJTI        string    `json:"-"`
	RefreshJTI       string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.JWTConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	return &Manager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

// IssuePair mints a fresh access+refresh token set for a user/device.
func (m *Manager) IssuePair(userID uuid.UUID, fingerprintHash string) (*Pair, error) {
	now := time.Now().UTC()

	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	access, accessExp, err := m.sign(userID, fingerprintHash, TypeAccess, accessJTI, now, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, refreshExp, err := m.sign(userID, fingerprintHash, TypeRefresh, refreshJTI, now, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessJTI:        accessJTI,
		RefreshJTI:       refreshJTI,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess mints a new access token only, reusing the session's
// fingerprint binding. Used on refresh; the refresh token is untouched.
func (m *Manager) IssueAccess(userID uuid.UUID, fingerprintHash string) (string, time.Time, error) {
	now := time.Now().UTC()
	return m.sign(userID, fingerprintHash, TypeAccess, uuid.NewString(), now, m.accessTTL)
}

func (m *Manager) sign(userID uuid.UUID, fingerprintHash, typ, jti string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:          userID,
		TokenType:       typ,
		FingerprintHash: fingerprintHash,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates signature, expiry and token type.
func (m *Manager) Parse(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		return nil, ErrWrongType
	}
	return claims, nil
}

// RemainingLifetime reports how long a parsed token is still valid for,
// which bounds how long a blacklist entry has to live.
func (m *Manager) RemainingLifetime(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return m.refreshTTL
	}
	if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
		return remaining
	}
	return 0
}
