package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/internal/token"
	"github.com/rentiva/rentiva-backend/pkg/httputil"
	"github.com/rentiva/rentiva-backend/pkg/tokencrypt"
)

type fakeSessions struct {
	byToken map[string]*domain.UserSession
	touched int
}

func (f *fakeSessions) Validate(tok string) (*domain.UserSession, error) {
	s, ok := f.byToken[tok]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) ValidateForUser(tok string, userID int64) (*domain.UserSession, error) {
	s, ok := f.byToken[tok]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	if s.UserID != userID {
		return nil, apperr.ErrSessionMismatch
	}
	return s, nil
}

func (f *fakeSessions) Touch(string) { f.touched++ }

type fakePerms struct {
	grants map[string]bool
}

func (f *fakePerms) HasPermission(userID int64, code string) (bool, error) {
	return f.grants[code], nil
}

func newTestGate() (*Gate, *token.Issuer, *fakeSessions) {
	issuer := token.NewIssuer(tokencrypt.DeriveKey("gate-test", "access_token"), 15*time.Minute)
	sessions := &fakeSessions{byToken: map[string]*domain.UserSession{}}
	perms := &fakePerms{grants: map[string]bool{"rentals.read": true}}
	return NewGate(issuer, sessions, perms, httputil.TransportHeader), issuer, sessions
}

func mintAccess(t *testing.T, issuer *token.Issuer, userID int64) string {
	t.Helper()
	tok, _, err := issuer.Issue(domain.Principal{
		UserID: userID, BusinessID: 1, BranchID: 1, RoleID: 1, Email: "u@b.com",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func okHandler(called *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequireAccessToken(t *testing.T) {
	gate, issuer, _ := newTestGate()

	var called bool
	handler := gate.RequireAccessToken(func(w http.ResponseWriter, r *http.Request) {
		called = true
		p, ok := PrincipalFromContext(r.Context())
		if !ok || p.UserID != 42 {
			t.Errorf("principal not attached: %+v", p)
		}
	})

	// Missing token.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status %d, want 401", rec.Code)
	}

	// Garbage token is a structure failure, 400.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, "@@@")
	handler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed token: status %d, want 400", rec.Code)
	}

	// Valid token passes and attaches the principal.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, mintAccess(t, issuer, 42))
	handler(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("valid token: called=%v status=%d", called, rec.Code)
	}
}

func TestRequireBoth_UserMismatch(t *testing.T) {
	gate, issuer, sessions := newTestGate()
	sessions.byToken["sess-1"] = &domain.UserSession{
		UserID: 99, SessionToken: "sess-1", IsActive: true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	var called bool
	handler := gate.RequireBoth(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, mintAccess(t, issuer, 42))
	req.Header.Set(httputil.SessionTokenHeader, "sess-1")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if called {
		t.Error("handler ran despite user mismatch")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "does not match session") {
		t.Errorf("body %q should name the mismatch", rec.Body.String())
	}
}

func TestRequireBoth_HappyPath(t *testing.T) {
	gate, issuer, sessions := newTestGate()
	sessions.byToken["sess-1"] = &domain.UserSession{
		UserID: 42, SessionToken: "sess-1", IsActive: true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	var called bool
	handler := gate.RequireBoth(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			t.Error("principal missing from context")
		}
		if s, ok := SessionFromContext(r.Context()); !ok || s.SessionToken != "sess-1" {
			t.Error("session missing from context")
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, mintAccess(t, issuer, 42))
	req.Header.Set(httputil.SessionTokenHeader, "sess-1")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Errorf("called=%v status=%d", called, rec.Code)
	}
	if sessions.touched != 1 {
		t.Errorf("activity touched %d times, want 1", sessions.touched)
	}
}

func TestRequirePermission(t *testing.T) {
	gate, issuer, _ := newTestGate()

	var called bool
	handler := gate.RequireAccessToken(
		gate.RequirePermission("rentals.read", okHandler(&called)))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, mintAccess(t, issuer, 42))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if !called || rec.Code != http.StatusOK {
		t.Errorf("granted permission: called=%v status=%d", called, rec.Code)
	}

	called = false
	denied := gate.RequireAccessToken(
		gate.RequirePermission("rentals.delete", okHandler(&called)))
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(httputil.AccessTokenHeader, mintAccess(t, issuer, 42))
	rec = httptest.NewRecorder()
	denied(rec, req)
	if called || rec.Code != http.StatusForbidden {
		t.Errorf("missing permission: called=%v status=%d, want 403", called, rec.Code)
	}

	// No principal at all: 401 before any grant lookup.
	called = false
	bare := gate.RequirePermission("rentals.read", okHandler(&called))
	rec = httptest.NewRecorder()
	bare(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("no principal: called=%v status=%d, want 401", called, rec.Code)
	}
}

func TestCollapsedCredentialMessages(t *testing.T) {
	gate, issuer, _ := newTestGate()

	var called bool
	handler := gate.RequireAccessToken(okHandler(&called))

	// An expired and a tampered token must be indistinguishable to clients.
	expiredIssuer := token.NewIssuer(tokencrypt.DeriveKey("gate-test", "access_token"), -time.Minute)
	expired, _, err := expiredIssuer.Issue(domain.Principal{UserID: 1, BusinessID: 1, BranchID: 1, RoleID: 1})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(mintAccess(t, issuer, 1))
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	raw[10] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	var bodies []string
	for _, tok := range []string{expired, tampered} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(httputil.AccessTokenHeader, tok)
		rec := httptest.NewRecorder()
		handler(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Errorf("expired and tampered responses differ: %q vs %q", bodies[0], bodies[1])
	}
}
