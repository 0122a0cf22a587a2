// Package httputil carries the two auth tokens between client and server.
// A deployment picks exactly one transport (header or cookie); the request
// gate enforces the choice uniformly.
package httputil

import (
	"errors"
	"net/http"
)

const (
	AccessTokenHeader  = "x-access-token"
	SessionTokenHeader = "x-session-token"

	AccessTokenCookie  = "access_token"
	SessionTokenCookie = "session_token"
)

const (
	TransportHeader = "header"
	TransportCookie = "cookie"
)

var ErrTokenNotFound = errors.New("token not found in request")

// AccessTokenFromRequest extracts the access token using the configured
// transport only. Mixing carriers per request is deliberately not supported.
func AccessTokenFromRequest(r *http.Request, transport string) (string, error) {
	return tokenFromRequest(r, transport, AccessTokenHeader, AccessTokenCookie)
}

// SessionTokenFromRequest extracts the session token using the configured
// transport only.
func SessionTokenFromRequest(r *http.Request, transport string) (string, error) {
	return tokenFromRequest(r, transport, SessionTokenHeader, SessionTokenCookie)
}

func tokenFromRequest(r *http.Request, transport, header, cookieName string) (string, error) {
	switch transport {
	case TransportCookie:
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return "", ErrTokenNotFound
		}
		return cookie.Value, nil
	default:
		value := r.Header.Get(header)
		if value == "" {
			return "", ErrTokenNotFound
		}
		return value, nil
	}
}

// SetTokenCookies writes both tokens for cookie-based deployments.
// SameSite=None requires Secure, so development falls back to Lax.
func SetTokenCookies(w http.ResponseWriter, accessToken, sessionToken string, accessMaxAge, sessionMaxAge int, production bool) {
	setTokenCookie(w, AccessTokenCookie, accessToken, accessMaxAge, production)
	setTokenCookie(w, SessionTokenCookie, sessionToken, sessionMaxAge, production)
}

// SetSessionCookie refreshes only the session cookie, for the extend path.
func SetSessionCookie(w http.ResponseWriter, sessionToken string, maxAge int, production bool) {
	setTokenCookie(w, SessionTokenCookie, sessionToken, maxAge, production)
}

func setTokenCookie(w http.ResponseWriter, name, value string, maxAge int, production bool) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
	}
	if production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, cookie)
}

// ClearTokenCookies expires both auth cookies (logout).
func ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, SessionTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
