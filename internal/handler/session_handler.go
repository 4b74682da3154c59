package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
)

// SessionHandler lets users inspect and revoke their own sessions.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) RegisterRoutes(r chi.Router, authMW *AuthMiddleware) {
	r.Route("/sessions", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Get("/", h.List)
		r.Delete("/{sessionID}", h.Revoke)
		r.Delete("/", h.RevokeOthers)
	})
}

type sessionView struct {
	Session *model.Session `json:"session"`
	Current bool           `json:"current"`
}

// List returns the caller's active sessions, flagging the one backing this
// request.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	current := SessionFromContext(r.Context())

	sessions, err := h.sessions.List(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, err, "Failed to list sessions")
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{Session: sess, Current: current != nil && sess.ID == current.ID})
	}
	respondWithJSON(w, http.StatusOK, successResponse(views, "Sessions retrieved"))
}

// Revoke terminates one session.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid session ID format")
		return
	}

	if err := h.sessions.Revoke(r.Context(), user.ID, sessionID, model.RevokeReasonUserRevoked); err != nil {
		respondWithError(w, err, "Failed to revoke session")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Session revoked"))
}

// RevokeOthers terminates every session except the caller's own.
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	current := SessionFromContext(r.Context())

	exclude := uuid.Nil
	if current != nil {
		exclude = current.ID
	}
	revoked, err := h.sessions.RevokeAllForUser(r.Context(), user.ID, model.RevokeReasonUserRevoked, exclude)
	if err != nil {
		respondWithError(w, err, "Failed to revoke sessions")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"revoked": revoked}, "Other sessions revoked"))
}
