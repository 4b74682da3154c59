package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/awaisamjad-SE/Real-MFA-1/internal/service"
)

// DeviceHandler exposes device listing and trust management. All routes
// require authentication.
type DeviceHandler struct {
	devices *service.DeviceService
}

func NewDeviceHandler(devices *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) RegisterRoutes(r chi.Router, authMW *AuthMiddleware) {
	r.Route("/devices", func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Get("/", h.List)
		r.Get("/{deviceID}", h.Get)
		r.Post("/{deviceID}/trust", h.Trust)
		r.Delete("/{deviceID}/trust", h.Untrust)
		r.Post("/{deviceID}/compromised", h.ReportCompromised)
		r.Delete("/{deviceID}", h.Remove)
	})
}

// List returns the caller's devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	devices, err := h.devices.List(r.Context(), user.ID)
	if err != nil {
		respondWithError(w, err, "Failed to list devices")
		return
	}

	current := r.Header.Get(FingerprintHeader)
	type deviceView struct {
		Device  interface{} `json:"device"`
		Current bool        `json:"current"`
	}
	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView{Device: d, Current: current != "" && d.FingerprintHash == current})
	}
	respondWithJSON(w, http.StatusOK, successResponse(views, "Devices retrieved"))
}

// Get returns one device.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid device ID format")
		return
	}

	device, err := h.devices.Get(r.Context(), user.ID, deviceID)
	if err != nil {
		respondWithError(w, err, "Failed to get device")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(device, "Device retrieved"))
}

// Trust opens a trust window on a device.
func (h *DeviceHandler) Trust(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid device ID format")
		return
	}

	var req struct {
		Days int `json:"days,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	device, err := h.devices.Get(r.Context(), user.ID, deviceID)
	if err != nil {
		respondWithError(w, err, "Failed to get device")
		return
	}
	if err := h.devices.GrantTrust(r.Context(), user.ID, device.FingerprintHash, req.Days); err != nil {
		respondWithError(w, err, "Failed to trust device")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Device trusted"))
}

// Untrust clears the trust grant.
func (h *DeviceHandler) Untrust(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid device ID format")
		return
	}

	device, err := h.devices.Get(r.Context(), user.ID, deviceID)
	if err != nil {
		respondWithError(w, err, "Failed to get device")
		return
	}
	if err := h.devices.RevokeTrust(r.Context(), user.ID, device.FingerprintHash); err != nil {
		respondWithError(w, err, "Failed to revoke trust")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Device trust revoked"))
}

// ReportCompromised flags a device and kills its sessions.
func (h *DeviceHandler) ReportCompromised(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid device ID format")
		return
	}

	device, err := h.devices.Get(r.Context(), user.ID, deviceID)
	if err != nil {
		respondWithError(w, err, "Failed to get device")
		return
	}
	if err := h.devices.MarkCompromised(r.Context(), user.ID, device.FingerprintHash); err != nil {
		respondWithError(w, err, "Failed to flag device")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Device flagged, its sessions were revoked"))
}

// Remove soft-deletes a device.
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondWithError(w, service.ErrValidation, "Invalid device ID format")
		return
	}

	if err := h.devices.Remove(r.Context(), user.ID, deviceID, r.Header.Get(FingerprintHeader)); err != nil {
		respondWithError(w, err, "Failed to remove device")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Device removed"))
}
