// Package middleware composes the per-route request gate: access token,
// session token, both, and permission guards on top.
package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/pkg/httputil"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	sessionKey
)

// PrincipalFromContext returns the principal attached by RequireAccessToken.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*domain.Principal)
	return p, ok
}

// SessionFromContext returns the session attached by RequireSessionToken or
// RequireBoth.
func SessionFromContext(ctx context.Context) (*domain.UserSession, bool) {
	s, ok := ctx.Value(sessionKey).(*domain.UserSession)
	return s, ok
}

type AccessVerifier interface {
	Verify(token string) (*domain.Principal, error)
}

type SessionValidator interface {
	Validate(token string) (*domain.UserSession, error)
	ValidateForUser(token string, userID int64) (*domain.UserSession, error)
	Touch(token string)
}

type PermissionChecker interface {
	HasPermission(userID int64, code string) (bool, error)
}

// Gate holds the verifiers and the deployment's token transport. One Gate is
// constructed at bootstrap and shared by all routes.
type Gate struct {
	Access    AccessVerifier
	Sessions  SessionValidator
	Perms     PermissionChecker
	Transport string
}

func NewGate(access AccessVerifier, sessions SessionValidator, perms PermissionChecker, transport string) *Gate {
	return &Gate{Access: access, Sessions: sessions, Perms: perms, Transport: transport}
}

// RequireAccessToken verifies the access token and attaches the principal.
func (g *Gate) RequireAccessToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.verifyAccess(r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), principalKey, principal)))
	}
}

// RequireSessionToken validates the session token and attaches the session.
func (g *Gate) RequireSessionToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := httputil.SessionTokenFromRequest(r, g.Transport)
		if err != nil {
			writeAuthError(w, r, apperr.ErrMissingToken)
			return
		}
		sess, err := g.Sessions.Validate(token)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		g.Sessions.Touch(token)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), sessionKey, sess)))
	}
}

// RequireBoth verifies the access token first (cheap, no I/O), then validates
// the session with the lookup scoped to the access token's user. A session
// belonging to another user is a hard authentication failure.
func (g *Gate) RequireBoth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.verifyAccess(r)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}

		token, err := httputil.SessionTokenFromRequest(r, g.Transport)
		if err != nil {
			writeAuthError(w, r, apperr.ErrMissingToken)
			return
		}
		sess, err := g.Sessions.ValidateForUser(token, principal.UserID)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		g.Sessions.Touch(token)

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequirePermission layers a single permission check over an established
// principal: 401 without one, 403 without the grant, 500 if the lookup fails.
func (g *Gate) RequirePermission(code string, next http.HandlerFunc) http.HandlerFunc {
	return g.RequireAnyPermission([]string{code}, next)
}

// RequireAnyPermission passes when the principal holds at least one of codes.
func (g *Gate) RequireAnyPermission(codes []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeAuthError(w, r, apperr.ErrMissingToken)
			return
		}
		for _, code := range codes {
			granted, err := g.Perms.HasPermission(principal.UserID, code)
			if err != nil {
				log.Printf("[AUTH] Permission lookup failed for user %d: %v", principal.UserID, err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if granted {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeJSONError(w, http.StatusForbidden, apperr.ErrPermissionDenied.Message)
	}
}

func (g *Gate) verifyAccess(r *http.Request) (*domain.Principal, error) {
	token, err := httputil.AccessTokenFromRequest(r, g.Transport)
	if err != nil {
		return nil, apperr.ErrMissingToken
	}
	return g.Access.Verify(token)
}

// writeAuthError distinguishes failure causes in the log but collapses them
// in the response, so token failures reveal nothing about why they failed.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("[AUTH] %s %s rejected: %v", r.Method, r.URL.Path, err)
	writeJSONError(w, apperr.HTTPStatus(err), apperr.PublicMessage(err))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
