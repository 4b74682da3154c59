package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/model"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
	"github.com/awaisamjad-SE/Real-MFA-1/internal/util"
)

// AuthHandler exposes the login state machine over HTTP.
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes mounts the login flow. Everything here is reachable without
// a bearer token except logout.
func (h *AuthHandler) RegisterRoutes(r chi.Router, authMW *AuthMiddleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/login/mfa", h.CompleteMFA)
		r.Post("/login/device", h.VerifyDevice)
		r.Post("/login/device/resend", h.ResendDeviceOTP)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Handler)
			r.Post("/logout", h.Logout)
		})
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
}

type loginResponse struct {
	Status           service.LoginStatus `json:"status"`
	AccessToken      string              `json:"access_token,omitempty"`
	RefreshToken     string              `json:"refresh_token,omitempty"`
	AccessExpiresAt  *time.Time          `json:"access_expires_at,omitempty"`
	RefreshExpiresAt *time.Time          `json:"refresh_expires_at,omitempty"`
	User             *model.User         `json:"user,omitempty"`
	MFAMethod        model.MFAMethod     `json:"mfa_method,omitempty"`
	OTPTarget        string              `json:"otp_target,omitempty"`
}

func loginResponseFrom(result *service.LoginResult) loginResponse {
	resp := loginResponse{
		Status:    result.Status,
		MFAMethod: result.MFAMethod,
		OTPTarget: result.OTPTarget,
	}
	if result.Status == service.LoginStatusOK {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
		resp.AccessExpiresAt = &result.Tokens.AccessExpiresAt
		resp.RefreshExpiresAt = &result.Tokens.RefreshExpiresAt
		resp.User = result.User
	}
	return resp
}

// Login runs the password step. 200 means tokens were issued; 202 means the
// flow parked on an MFA or device-verification challenge.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		Descriptor: model.Descriptor{
			FingerprintHash: r.Header.Get(FingerprintHeader),
			DeviceName:      req.DeviceName,
			DeviceType:      req.DeviceType,
			Browser:         req.Browser,
			OS:              req.OS,
		},
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respondWithError(w, err, "Login failed")
		return
	}

	switch result.Status {
	case service.LoginStatusOK:
		respondWithJSON(w, http.StatusOK, successResponse(loginResponseFrom(result), "Login successful"))
	default:
		respondWithJSON(w, http.StatusAccepted, successResponse(loginResponseFrom(result), "Additional verification required"))
	}
}

type mfaCompletionRequest struct {
	UserID         string `json:"user_id"`
	Code           string `json:"code"`
	UseBackupCode  bool   `json:"use_backup_code,omitempty"`
	RememberDevice bool   `json:"remember_device,omitempty"`
	TrustDays      int    `json:"trust_days,omitempty"`
}

// CompleteMFA finishes a login parked on the MFA challenge.
func (h *AuthHandler) CompleteMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid user ID format")
		return
	}

	result, err := h.auth.CompleteMFA(r.Context(), service.MFACompletionInput{
		UserID:          userID,
		FingerprintHash: r.Header.Get(FingerprintHeader),
		Code:            req.Code,
		UseBackupCode:   req.UseBackupCode,
		RememberDevice:  req.RememberDevice,
		TrustDays:       req.TrustDays,
		IP:              clientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		respondWithError(w, err, "MFA verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(loginResponseFrom(result), "Login successful"))
}

type deviceVerificationRequest struct {
	UserID         string `json:"user_id"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
	TrustDays      int    `json:"trust_days,omitempty"`
}

// VerifyDevice finishes a login parked on new-device OTP verification.
func (h *AuthHandler) VerifyDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid user ID format")
		return
	}

	result, err := h.auth.VerifyNewDevice(r.Context(), service.DeviceVerificationInput{
		UserID:          userID,
		FingerprintHash: r.Header.Get(FingerprintHeader),
		Code:            req.Code,
		RememberDevice:  req.RememberDevice,
		TrustDays:       req.TrustDays,
		IP:              clientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		respondWithError(w, err, "Device verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(loginResponseFrom(result), "Login successful"))
}

// ResendDeviceOTP issues a fresh code for a pending device verification.
func (h *AuthHandler) ResendDeviceOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, service.ErrValidation, "Invalid request body")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid user ID format")
		return
	}

	if err := h.auth.ResendDeviceOTP(r.Context(), userID, r.Header.Get(FingerprintHeader), clientIP(r)); err != nil {
		respondWithError(w, err, "Failed to resend code")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code sent"))
}

// Refresh exchanges a refresh token for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondWithError(w, service.ErrValidation, "Refresh token is required")
		return
	}

	access, expiresAt, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondWithError(w, err, "Failed to refresh token")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"access_token":      access,
		"access_expires_at": expiresAt,
	}, "Token refreshed"))
}

// Logout revokes the caller's session and blacklists both tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token,omitempty"`
	}
	// Body is optional on logout.
	_ = json.NewDecoder(r.Body).Decode(&req)

	claims := ClaimsFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), claims, req.RefreshToken); err != nil {
		respondWithError(w, err, "Logout failed")
		return
	}

	util.Info("User logged out", util.String("user_id", claims.UserID.String()))
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// clientIP returns the caller address without the port. The RealIP
// middleware has already unwrapped proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
