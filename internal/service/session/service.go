// Package session owns the database-backed session token lifecycle:
// creation, validation, activity touch, extension and invalidation.
package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/pkg/uid"
)

const cacheKeyPrefix = "session:"
const cacheTTL = 10 * time.Minute

type Repository interface {
	Create(s *domain.UserSession) error
	GetByToken(token string) (*domain.UserSession, error)
	GetByTokenAndUser(token string, userID int64) (*domain.UserSession, error)
	Deactivate(token string) (bool, error)
	ReplaceToken(userID int64, oldToken, newToken string, expiresAt time.Time) (bool, error)
	TouchActivity(token string) error
	HistoryByUser(userID int64, limit int) ([]domain.UserSession, error)
}

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Service validates against the DB row as the source of truth; the cache is
// a read accelerator and its failures are logged, never surfaced.
type Service struct {
	repo      Repository
	cache     Cache // optional, can be nil
	ttl       time.Duration
	extension time.Duration
	now       func() time.Time
}

func NewService(repo Repository, cache Cache, ttl, extension time.Duration) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		ttl:       ttl,
		extension: extension,
		now:       time.Now,
	}
}

// WithClock replaces the service clock. Test use only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create opens a new session bound to the user's device and network context
// and returns the row carrying its opaque token.
func (s *Service) Create(userID int64, deviceID, deviceName, ip, userAgent string) (*domain.UserSession, error) {
	sessionToken, err := uid.NewSessionToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "session creation failed", err)
	}

	sess := &domain.UserSession{
		UserID:       userID,
		SessionToken: sessionToken,
		DeviceID:     deviceID,
		DeviceName:   deviceName,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ExpiresAt:    s.now().Add(s.ttl),
	}
	if err := s.repo.Create(sess); err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "session creation failed", err)
	}

	s.cacheSet(sess)
	return sess, nil
}

// Validate looks the token up and checks active flag and expiry. It is
// side-effect free; activity touch is a separate explicit operation.
func (s *Service) Validate(token string) (*domain.UserSession, error) {
	if sess := s.cacheGet(token); sess != nil {
		return s.checkSession(sess)
	}

	sess, err := s.repo.GetByToken(token)
	if err != nil {
		return nil, apperr.WrapAs(apperr.ErrSessionValidationFailed, err)
	}
	if sess == nil {
		return nil, apperr.ErrSessionNotFound
	}

	checked, err := s.checkSession(sess)
	if err != nil {
		return nil, err
	}
	s.cacheSet(checked)
	return checked, nil
}

// ValidateForUser validates with the lookup scoped to the access token's
// user id. A token that exists but belongs to another user is reported as a
// mismatch, which the gate turns into a hard authentication failure.
func (s *Service) ValidateForUser(token string, userID int64) (*domain.UserSession, error) {
	sess, err := s.repo.GetByTokenAndUser(token, userID)
	if err != nil {
		return nil, apperr.WrapAs(apperr.ErrSessionValidationFailed, err)
	}
	if sess == nil {
		other, err := s.repo.GetByToken(token)
		if err != nil {
			return nil, apperr.WrapAs(apperr.ErrSessionValidationFailed, err)
		}
		if other != nil {
			return nil, apperr.ErrSessionMismatch
		}
		return nil, apperr.ErrSessionNotFound
	}
	return s.checkSession(sess)
}

func (s *Service) checkSession(sess *domain.UserSession) (*domain.UserSession, error) {
	if !sess.IsActive {
		return nil, apperr.ErrSessionInactive
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, apperr.ErrSessionExpired
	}
	return sess, nil
}

// Touch updates last_active_at, best effort. A failed touch never fails the
// request it rides on.
func (s *Service) Touch(token string) {
	if err := s.repo.TouchActivity(token); err != nil {
		log.Printf("[SESSION] Warning: failed to touch activity: %v", err)
	}
}

// Extend atomically replaces the old session token with a fresh one and a
// new expiry. Zero rows changed means no active session matched the
// (user, token) pair.
func (s *Service) Extend(userID int64, oldToken string) (string, time.Time, error) {
	newToken, err := uid.NewSessionToken()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindDatabase, "session extension failed", err)
	}

	expiresAt := s.now().Add(s.extension)
	replaced, err := s.repo.ReplaceToken(userID, oldToken, newToken, expiresAt)
	if err != nil {
		return "", time.Time{}, apperr.WrapAs(apperr.ErrSessionValidationFailed, err)
	}
	if !replaced {
		return "", time.Time{}, apperr.ErrSessionNotFound
	}

	s.cacheDel(oldToken)
	return newToken, expiresAt, nil
}

// Invalidate deactivates the session (logout). Idempotent: invalidating an
// already-inactive session reports false without error.
func (s *Service) Invalidate(token string) (bool, error) {
	changed, err := s.repo.Deactivate(token)
	if err != nil {
		return false, apperr.WrapAs(apperr.ErrSessionValidationFailed, err)
	}
	s.cacheDel(token)
	return changed, nil
}

// History lists recent sessions for a user.
func (s *Service) History(userID int64, limit int) ([]domain.UserSession, error) {
	sessions, err := s.repo.HistoryByUser(userID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "failed to load session history", err)
	}
	return sessions, nil
}

func (s *Service) cacheSet(sess *domain.UserSession) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(context.Background(), cacheKeyPrefix+sess.SessionToken, data, cacheTTL); err != nil {
		log.Printf("[SESSION] Warning: failed to store session in cache: %v", err)
	}
}

func (s *Service) cacheGet(token string) *domain.UserSession {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(context.Background(), cacheKeyPrefix+token)
	if err != nil {
		return nil
	}
	var sess domain.UserSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil
	}
	return &sess
}

func (s *Service) cacheDel(token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(context.Background(), cacheKeyPrefix+token); err != nil {
		log.Printf("[SESSION] Warning: failed to evict session from cache: %v", err)
	}
}
