package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/domain"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/internal/service"
	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/httputil"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/middleware"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/validator"
)

const maxBodyBytes = 1 << 20

// AuthService is the subset of *service.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput, meta domain.SessionMeta) (*domain.User, *domain.TokenPair, error)
	Login(ctx context.Context, input service.LoginInput, meta domain.SessionMeta) (*domain.User, *domain.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string, meta domain.SessionMeta) (*domain.TokenPair, error)
	VerifyAccessToken(ctx context.Context, token string) (*domain.Claims, error)
	ValidateAccessToken(ctx context.Context, token string) (*service.ValidationResult, error)
	RevokeAllUserTokens(ctx context.Context, actor *domain.Claims, targetUserID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]*domain.RefreshRecord, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	CleanupExpiredTokens(ctx context.Context) (service.CleanupResult, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,bcryptmax"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Role      string `json:"role" validate:"omitempty,oneof=standard merchant admin"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest is the optional JSON body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RevokeAllRequest is the optional JSON body for revoke-all.
type RevokeAllRequest struct {
	UserID string `json:"user_id" validate:"omitempty,uuid"`
}

// ChangePasswordRequest is the JSON request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,bcryptmax,nefield=CurrentPassword"`
}

// --- Response types ---

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// RevokeAllResponse reports how many sessions were ended.
type RevokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		Role:      req.Role,
	}, sessionMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, sessionMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AuthResponse{User: user, Tokens: tokens},
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("missing or malformed authorization header"), h.logger)
		return
	}

	var req LogoutRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]bool{"success": true},
	})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken, sessionMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// Validate handles GET /api/v1/auth/validate. A missing or bad token is an
// answer, not an error.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: service.ValidationResult{Valid: false}})
		return
	}

	res, err := h.service.ValidateAccessToken(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// RevokeAll handles POST /api/v1/auth/revoke-all
func (h *AuthHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor == nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req RevokeAllRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	n, err := h.service.RevokeAllUserTokens(r.Context(), actor, req.UserID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: RevokeAllResponse{Revoked: n}})
}

// ListSessions handles GET /api/v1/auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sessions})
}

// RevokeSession handles DELETE /api/v1/auth/sessions/{id}
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.RevokeSession(r.Context(), userID, id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "password changed, all sessions have been signed out"},
	})
}

// Cleanup handles POST /api/v1/auth/admin/cleanup. It runs the same pass as
// the background janitor.
func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CleanupExpiredTokens(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// --- helpers ---

// decode reads and validates a JSON body into dst, writing a 400 on failure.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional is decode for endpoints whose body may be omitted.
func (h *AuthHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decodeBody(w, r, dst, true)
}

func (h *AuthHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := validator.DecodeAndValidate(r, dst)
	var verr *validator.ValidationError
	switch {
	case err == nil:
		return true
	case optional && errors.Is(err, validator.ErrEmptyBody):
		return true
	case errors.As(err, &verr):
		httputil.WriteValidationError(w, err)
	default:
		writeBadBody(w, err)
	}
	return false
}

func writeBadBody(w http.ResponseWriter, err error) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
	})
}

func sessionMeta(r *http.Request) domain.SessionMeta {
	return domain.SessionMeta{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func actorFromContext(ctx context.Context) *domain.Claims {
	c := middleware.ClaimsFromContext(ctx)
	if c == nil {
		return nil
	}
	return &domain.Claims{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   c.Role,
		JTI:    c.JTI,
		Kind:   domain.TokenKindAccess,
	}
}
