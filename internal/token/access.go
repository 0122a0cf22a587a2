// Package token issues and verifies the self-contained access token: an
// encrypted snapshot of the authenticated principal with a short TTL.
// Access tokens are not revocable before expiry; logout only invalidates the
// session token, and a still-valid access token keeps working until its TTL
// lapses. This is an accepted tradeoff given the short TTL.
package token

import (
	"errors"
	"time"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/pkg/tokencrypt"
)

// TypeAccess marks the claim set as an access token. A session-keyed token
// presented here fails decryption; an access-keyed token carrying another
// type marker fails the type check.
const TypeAccess = "access_token"

type accessClaims struct {
	domain.Principal
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
	TokenType string `json:"token_type"`
}

// Issuer mints and verifies access tokens with one key and TTL. The clock is
// injectable for expiry tests.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// WithClock replaces the issuer's clock. Test use only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue encodes the principal into an access token. Every identity field the
// request gate depends on is individually checked and named on failure.
func (i *Issuer) Issue(p domain.Principal) (string, time.Time, error) {
	switch {
	case p.UserID == 0:
		return "", time.Time{}, apperr.Validationf("user_id is required")
	case p.BusinessID == 0:
		return "", time.Time{}, apperr.Validationf("business_id is required")
	case p.BranchID == 0:
		return "", time.Time{}, apperr.Validationf("branch_id is required")
	case p.RoleID == 0:
		return "", time.Time{}, apperr.Validationf("role_id is required")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := accessClaims{
		Principal: p,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
		TokenType: TypeAccess,
	}

	encoded, err := tokencrypt.Encode(claims, i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return encoded, expiresAt, nil
}

// Verify checks structure, decrypts, and validates type and expiry. The
// returned principal has the issuance metadata stripped.
func (i *Issuer) Verify(tokenString string) (*domain.Principal, error) {
	if !tokencrypt.StructureCheck(tokenString) {
		return nil, apperr.ErrMalformedToken
	}

	var claims accessClaims
	if err := tokencrypt.Decode(tokenString, i.key, &claims); err != nil {
		switch {
		case errors.Is(err, tokencrypt.ErrMalformedToken):
			return nil, apperr.WrapAs(apperr.ErrMalformedToken, err)
		case errors.Is(err, tokencrypt.ErrCorruptToken):
			return nil, apperr.WrapAs(apperr.ErrCorruptToken, err)
		default:
			return nil, apperr.WrapAs(apperr.ErrTamperedToken, err)
		}
	}

	if claims.TokenType != TypeAccess {
		return nil, apperr.ErrWrongTokenType
	}
	if i.now().Unix() >= claims.ExpiresAt {
		return nil, apperr.ErrTokenExpired
	}

	principal := claims.Principal
	return &principal, nil
}
