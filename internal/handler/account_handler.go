package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// AccountHandler exposes registration, email verification and the password
// lifecycle.
type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) RegisterRoutes(r chi.Router, authMW *AuthMiddleware) {
	r.Route("/account", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/email/verify", h.VerifyEmail)
		r.Post("/email/resend", h.ResendVerification)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Handler)
			r.Get("/me", h.Me)
			r.Post("/password/change", h.ChangePassword)
		})
	})
}

type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Register creates an account and sends the email verification code.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		IP:          clientIP(r),
	})
	if err != nil {
		respondWithError(w, err, "Registration failed")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(user, "Account created, check your email for the verification code"))
	util.Info("User registered via HTTP", util.String("user_id", user.ID.String()))
}

// VerifyEmail consumes an emailed verification code.
func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		respondWithError(w, err, "Email verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Email verified"))
}

// ResendVerification issues a fresh verification code. The response is the
// same whether or not the address is registered.
func (h *AccountHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	if err := h.accounts.ResendEmailVerification(r.Context(), req.Email, clientIP(r)); err != nil {
		respondWithError(w, err, "Failed to resend verification code")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "If the address is registered, a code is on its way"))
}

// ForgotPassword starts a reset flow. Always reports success.
func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email, clientIP(r)); err != nil {
		respondWithError(w, err, "Failed to start password reset")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "If the address is registered, a reset code is on its way"))
}

// ResetPassword finishes a reset flow.
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword, clientIP(r)); err != nil {
		respondWithError(w, err, "Password reset failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password reset, sign in with your new password"))
}

// Me returns the authenticated user's profile.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	respondWithJSON(w, http.StatusOK, successResponse(user, "Profile retrieved"))
}

// ChangePassword rotates the password for an authenticated user. Every
// other session is revoked; the current one survives.
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	user := UserFromContext(r.Context())
	session := SessionFromContext(r.Context())

	if err := h.accounts.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword, session.ID, clientIP(r)); err != nil {
		respondWithError(w, err, "Password change failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password changed, other sessions were signed out"))
}
