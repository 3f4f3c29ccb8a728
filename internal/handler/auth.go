package handler

import (
	"net/http"

	"github.com/pawpantry/pawpantry-go/internal/apperr"
	"github.com/pawpantry/pawpantry-go/internal/middleware"
	"github.com/pawpantry/pawpantry-go/internal/model"
	"github.com/pawpantry/pawpantry-go/internal/service"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service *service.AuthService
	devMode bool
}

// NewAuthHandler creates a new AuthHandler. devMode adds internal error
// details to responses.
func NewAuthHandler(svc *service.AuthService, devMode bool) *AuthHandler {
	return &AuthHandler{service: svc, devMode: devMode}
}

// HandleRegister handles POST /api/v1/auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /api/v1/auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleForgotPassword handles POST /api/v1/auth/forgot-password requests.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.ForgotPassword(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleResetPassword handles POST /api/v1/auth/reset-password requests.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.ResetPassword(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleChangePassword handles POST /api/v1/auth/change-password requests.
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "unauthorized"), h.devMode)
		return
	}

	var req model.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.ChangePassword(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleMe handles GET /api/v1/auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "unauthorized"), h.devMode)
		return
	}

	resp, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleUpdateMe handles PUT /api/v1/auth/me requests.
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.New(apperr.KindUnauthorized, "unauthorized"), h.devMode)
		return
	}

	var req model.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	resp, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err, h.devMode)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
