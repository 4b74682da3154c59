package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
)

// FingerprintHeader carries the client's device fingerprint on every call.
const FingerprintHeader = "X-Device-Fingerprint"

type contextKey string

const (
	ctxKeyUser    contextKey = "auth_user"
	ctxKeyClaims  contextKey = "auth_claims"
	ctxKeySession contextKey = "auth_session"
)

// AuthMiddleware authenticates requests with a bearer access token and binds
// the backing session. The full chain runs on every request: signature,
// blacklist, user state, session validity and device state.
type AuthMiddleware struct {
	tokens    *token.Manager
	blacklist *token.Blacklist
	sessions  *service.SessionService
	users     repository.UserRepository
}

func NewAuthMiddleware(
	tokens *token.Manager,
	blacklist *token.Blacklist,
	sessions *service.SessionService,
	users repository.UserRepository,
) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, blacklist: blacklist, sessions: sessions, users: users}
}

// Handler is the chi middleware entry point.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			respondWithError(w, token.ErrInvalidToken, "Missing bearer token")
			return
		}

		claims, err := m.tokens.Parse(raw, token.TypeAccess)
		if err != nil {
			respondWithError(w, err, "Invalid access token")
			return
		}

		blocked, err := m.blacklist.Contains(r.Context(), claims.ID)
		if err != nil {
			respondWithError(w, err, "Failed to check token")
			return
		}
		if blocked {
			respondWithError(w, service.ErrTokenBlacklisted, "Token has been revoked")
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				respondWithError(w, service.ErrUserNotFound, "Account not found")
				return
			}
			respondWithError(w, err, "Failed to load account")
			return
		}
		if !user.IsUsable() {
			respondWithError(w, service.ErrAccountDisabled, "Account disabled")
			return
		}

		fingerprint := r.Header.Get(FingerprintHeader)
		if fingerprint == "" {
			fingerprint = claims.FingerprintHash
		}
		session, err := m.sessions.Resolve(r.Context(), claims.UserID, "", fingerprint)
		if err != nil {
			respondWithError(w, err, "No active session")
			return
		}
		if err := m.sessions.Validate(r.Context(), session); err != nil {
			respondWithError(w, err, "Session is not valid")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser, user)
		ctx = context.WithValue(ctx, ctxKeyClaims, claims)
		ctx = context.WithValue(ctx, ctxKeySession, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(ctxKeyUser).(*model.User)
	return user
}

// ClaimsFromContext returns the parsed access token claims, or nil.
func ClaimsFromContext(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(ctxKeyClaims).(*token.Claims)
	return claims
}

// SessionFromContext returns the resolved session, or nil.
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(ctxKeySession).(*model.Session)
	return session
}
