package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/audit"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/config"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/repository"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/token"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// SessionService creates, validates and revokes server-side sessions. Every
// session is keyed by the refresh token's jti; revocation writes both the
// session row and a blacklist entry so the token dies immediately.
type SessionService struct {
	sessions  repository.SessionRepository
	devices   repository.DeviceRepository
	tokens    *token.Manager
	blacklist *token.Blacklist
	cfg       *config.Config
	auditor   *audit.Recorder
}

func NewSessionService(
	sessions repository.SessionRepository,
	devices repository.DeviceRepository,
	tokens *token.Manager,
	blacklist *token.Blacklist,
	cfg *config.Config,
	auditor *audit.Recorder,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		devices:   devices,
		tokens:    tokens,
		blacklist: blacklist,
		cfg:       cfg,
		auditor:   auditor,
	}
}

// Create issues a token pair and records the session it belongs to.
func (s *SessionService) Create(ctx context.Context, user *model.User, device *model.Device, ip, userAgent string) (*model.Session, *token.Pair, error) {
	pair, err := s.tokens.IssuePair(user.ID, device.FingerprintHash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID:              uuid.New(),
		UserID:          user.ID,
		TokenJTI:        pair.RefreshJTI,
		FingerprintHash: device.FingerprintHash,
		IP:              ip,
		UserAgent:       userAgent,
		DeviceName:      device.DeviceName,
		IsActive:        true,
		ExpiresAt:       pair.RefreshExpiresAt,
		LastActivity:    now,
		CreatedAt:       now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, pair, nil
}

// Validate runs the full session validity chain and bumps last_activity on
// success. Checks run in a fixed priority order: missing, revoked, expired,
// then device state. A session seen past its expiry is revoked in place.
func (s *SessionService) Validate(ctx context.Context, session *model.Session) error {
	if session == nil {
		return ErrSessionNotFound
	}
	now := time.Now().UTC()

	if !session.IsActive {
		return ErrSessionRevoked
	}
	if session.Expired(now) {
		if err := s.sessions.Revoke(ctx, session.UserID, session.ID, model.RevokeReasonSessionExpired, now); err != nil {
			util.Warn("failed to revoke expired session", util.ErrorField(err))
		}
		return ErrSessionExpired
	}

	if session.FingerprintHash != "" {
		device, err := s.devices.GetByUserAndFingerprint(ctx, session.UserID, session.FingerprintHash)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to load session device: %w", err)
		}
		if device != nil {
			if device.IsDeleted {
				return ErrDeviceRevoked
			}
			if device.IsCompromised {
				return ErrDeviceCompromised
			}
		}
	}

	if err := s.sessions.UpdateActivity(ctx, session.UserID, session.ID, now); err != nil {
		util.Warn("failed to update session activity", util.ErrorField(err))
	}
	session.LastActivity = now
	return nil
}

// Resolve finds the session behind an authenticated request. Lookup order:
// the refresh jti carried in the access token's session binding, then the
// fingerprint header, and only when no fingerprint was supplied at all, the
// user's most recently active session.
func (s *SessionService) Resolve(ctx context.Context, userID uuid.UUID, refreshJTI, fingerprintHash string) (*model.Session, error) {
	if refreshJTI != "" {
		session, err := s.sessions.GetByJTI(ctx, refreshJTI)
		if err == nil && session.UserID == userID {
			return session, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve session by jti: %w", err)
		}
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	// A supplied fingerprint must match; it never degrades into the
	// most-recently-active fallback, which would hand back another
	// device's session.
	if fingerprintHash != "" {
		var best *model.Session
		for _, sess := range sessions {
			if sess.IsActive && sess.FingerprintHash == fingerprintHash {
				if best == nil || sess.LastActivity.After(best.LastActivity) {
					best = sess
				}
			}
		}
		if best == nil {
			return nil, ErrSessionNotFound
		}
		return best, nil
	}

	var best *model.Session
	for _, sess := range sessions {
		if sess.IsActive {
			if best == nil || sess.LastActivity.After(best.LastActivity) {
				best = sess
			}
		}
	}
	if best == nil {
		return nil, ErrSessionNotFound
	}
	return best, nil
}

// Get returns one of the user's sessions.
func (s *SessionService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// List returns the user's active sessions, most recently active first.
func (s *SessionService) List(ctx context.Context, userID uuid.UUID) ([]*model.Session, error) {
	all, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]*model.Session, 0, len(all))
	for _, sess := range all {
		if sess.IsActive {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// Revoke terminates one session and blacklists its refresh token for its
// remaining lifetime.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID uuid.UUID, reason model.RevokeReason) error {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return ErrSessionRevoked
	}

	now := time.Now().UTC()
	if err := s.sessions.Revoke(ctx, userID, sessionID, reason, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if _, err := s.blacklist.Add(ctx, session.TokenJTI, time.Until(session.ExpiresAt)); err != nil {
		util.Warn("failed to blacklist session token", util.ErrorField(err))
	}

	s.auditor.Record(audit.Entry{
		UserID:          userID,
		Action:          audit.ActionSessionRevoked,
		FingerprintHash: session.FingerprintHash,
		Detail:          string(reason),
	})
	return nil
}

// RevokeAllForUser terminates every active session, optionally sparing one
// (the caller's own, during password change).
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason model.RevokeReason, exclude uuid.UUID) (int, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now().UTC()
	revoked := 0
	for _, sess := range sessions {
		if !sess.IsActive || sess.ID == exclude {
			continue
		}
		if err := s.sessions.Revoke(ctx, userID, sess.ID, reason, now); err != nil {
			return revoked, fmt.Errorf("failed to revoke session %s: %w", sess.ID, err)
		}
		if _, err := s.blacklist.Add(ctx, sess.TokenJTI, time.Until(sess.ExpiresAt)); err != nil {
			util.Warn("failed to blacklist session token", util.ErrorField(err))
		}
		revoked++
	}

	if revoked > 0 {
		s.auditor.Record(audit.Entry{
			UserID: userID,
			Action: audit.ActionSessionRevoked,
			Detail: fmt.Sprintf("%d sessions revoked (%s)", revoked, reason),
		})
	}
	return revoked, nil
}
