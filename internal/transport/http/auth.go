// Package http holds the REST handlers for the auth surface.
package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/internal/service/authn"
	"github.com/rentiva/rentiva-backend/internal/service/session"
	"github.com/rentiva/rentiva-backend/internal/token"
	"github.com/rentiva/rentiva-backend/internal/transport/http/middleware"
	"github.com/rentiva/rentiva-backend/pkg/httputil"
	"github.com/rentiva/rentiva-backend/pkg/useragent"
)

type AuthHandler struct {
	Auth     *authn.Service
	Sessions *session.Service
	Tokens   *token.Issuer

	Transport  string
	Production bool
	AccessTTL  time.Duration
	SessionTTL time.Duration
}

func NewAuthHandler(auth *authn.Service, sessions *session.Service, tokens *token.Issuer, transport string, production bool, accessTTL, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		Auth:       auth,
		Sessions:   sessions,
		Tokens:     tokens,
		Transport:  transport,
		Production: production,
		AccessTTL:  accessTTL,
		SessionTTL: sessionTTL,
	}
}

// SendOTP handles POST /api/auth/send-otp.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string            `json:"email"`
		Purpose domain.OTPPurpose `json:"otp_type_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	id, expiresAt, err := h.Auth.SendOTP(req.Email, req.Purpose)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"otpId":     id,
		"expiresAt": expiresAt,
	})
}

// VerifyOTP handles POST /api/auth/verify-otp.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string            `json:"email"`
		OTPCode string            `json:"otpCode"`
		Purpose domain.OTPPurpose `json:"otp_type_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if err := h.Auth.VerifyOTP(req.Email, req.OTPCode, req.Purpose); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":    req.Email,
		"verified": true,
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string            `json:"email"`
		OTPCode  string            `json:"otpCode"`
		Purpose  domain.OTPPurpose `json:"otp_type_id"`
		DeviceID string            `json:"deviceId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	result, err := h.Auth.LoginWithOTP(
		req.Email, req.OTPCode, req.Purpose,
		req.DeviceID,
		useragent.DeviceName(r),
		useragent.ClientIP(r),
		r.Header.Get("User-Agent"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Transport == httputil.TransportCookie {
		httputil.SetTokenCookies(w,
			result.AccessToken, result.SessionToken,
			int(h.AccessTTL.Seconds()), int(h.SessionTTL.Seconds()),
			h.Production)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":     result.AccessToken,
		"session_token":    result.SessionToken,
		"token_expires_at": result.TokenExpiresAt,
	})
}

// Logout handles POST /api/auth/logout. Requires an access token; the access
// token itself stays valid until its TTL lapses, only the session dies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionToken, err := httputil.SessionTokenFromRequest(r, h.Transport)
	if err == nil && sessionToken != "" {
		if _, err := h.Sessions.Invalidate(sessionToken); err != nil {
			writeError(w, err)
			return
		}
	}
	if h.Transport == httputil.TransportCookie {
		httputil.ClearTokenCookies(w)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

// CompleteRegistration handles POST /api/auth/complete-registration.
func (h *AuthHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req domain.RegistrationInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body"))
		return
	}
	req.BusinessEmail = strings.TrimSpace(strings.ToLower(req.BusinessEmail))
	req.OwnerEmail = strings.TrimSpace(strings.ToLower(req.OwnerEmail))

	result, err := h.Auth.CompleteRegistration(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// DecryptToken handles POST /api/auth/decrypt-token: returns the principal
// fields inside an access token carried in the body or the usual transport.
func (h *AuthHandler) DecryptToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	tokenString := req.Token
	if tokenString == "" {
		carried, err := httputil.AccessTokenFromRequest(r, h.Transport)
		if err != nil {
			writeError(w, apperr.ErrMissingToken)
			return
		}
		tokenString = carried
	}

	principal, err := h.Tokens.Verify(tokenString)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// ExtendSession handles POST /api/auth/extend-session. Routed behind
// RequireBoth, so the principal here is already known to match the session.
func (h *AuthHandler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperr.ErrMissingToken)
		return
	}
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperr.ErrSessionNotFound)
		return
	}

	newToken, expiresAt, err := h.Sessions.Extend(principal.UserID, sess.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Transport == httputil.TransportCookie {
		httputil.SetSessionCookie(w, newToken, int(time.Until(expiresAt).Seconds()), h.Production)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_token":      newToken,
		"session_expires_at": expiresAt,
	})
}

// SessionHistory handles GET /api/auth/sessions.
func (h *AuthHandler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperr.ErrMissingToken)
		return
	}
	sessions, err := h.Sessions.History(principal.UserID, 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
