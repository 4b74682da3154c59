package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/hashing"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// TOTPHandler manages authenticator enrollment and backup codes. Disabling
// MFA and regenerating codes both re-check the password; a stolen session
// alone must not be enough to weaken the account.
type TOTPHandler struct {
	totps  *service.TOTPService
	hasher *hashing.Hasher
}

func NewTOTPHandler(totps *service.TOTPService, hasher *hashing.Hasher) *TOTPHandler {
	return &TOTPHandler{totps: totps, hasher: hasher}
}

func (h *TOTPHandler) RegisterRoutes(r chi.Router, authMW *AuthMiddleware) {
	r.Route("/mfa", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Get("/status", h.Status)
		r.Post("/totp/setup", h.BeginSetup)
		r.Post("/totp/confirm", h.ConfirmSetup)
		r.Post("/totp/disable", h.Disable)
		r.Post("/backup-codes/regenerate", h.RegenerateBackupCodes)
	})
}

// Status reports whether MFA is enabled and how many backup codes remain.
func (h *TOTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	status, err := h.totps.Status(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, err, "Failed to load MFA status")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(status, "MFA status retrieved"))
}

// BeginSetup starts enrollment and returns the secret and provisioning URI.
func (h *TOTPHandler) BeginSetup(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	info, err := h.totps.BeginSetup(r.Context(), user)
	if err != nil {
		respondWithError(w, err, "Failed to start TOTP setup")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(info, "Scan the URI with your authenticator, then confirm with a code"))
}

// ConfirmSetup finishes enrollment and returns the backup codes. They are
// shown exactly once.
func (h *TOTPHandler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	user := UserFromContext(r.Context())
	codes, err := h.totps.ConfirmSetup(r.Context(), user, req.Code)
	if err != nil {
		respondWithError(w, err, "Failed to confirm TOTP setup")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"backup_codes": codes,
	}, "MFA enabled, store these backup codes somewhere safe"))
	util.Info("MFA enabled via HTTP", util.String("user_id", user.ID.String()))
}

// Disable turns MFA off after re-checking the password.
func (h *TOTPHandler) Disable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	user := UserFromContext(r.Context())
	if !h.checkPassword(w, user.PasswordHash, req.Password) {
		return
	}

	if err := h.totps.Disable(r.Context(), user.ID); err != nil {
		respondWithError(w, err, "Failed to disable MFA")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "MFA disabled"))
}

// RegenerateBackupCodes replaces the batch after re-checking the password.
func (h *TOTPHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	user := UserFromContext(r.Context())
	if !h.checkPassword(w, user.PasswordHash, req.Password) {
		return
	}

	codes, err := h.totps.RegenerateBackupCodes(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, err, "Failed to regenerate backup codes")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"backup_codes": codes,
	}, "Backup codes regenerated, the old batch no longer works"))
}

func (h *TOTPHandler) checkPassword(w http.ResponseWriter, encoded, password string) bool {
	ok, err := h.hasher.VerifyPassword(password, encoded)
	if err != nil {
		respondWithError(w, err, "Failed to verify password")
		return false
	}
	if !ok {
		respondWithError(w, service.ErrInvalidCredentials, "Password is incorrect")
		return false
	}
	return true
}
