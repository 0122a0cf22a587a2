package session

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	redisrepo "github.com/rentiva/rentiva-backend/internal/repository/redis"
)

type fakeRepo struct {
	byToken map[string]*domain.UserSession
	failAll bool
	touched []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byToken: map[string]*domain.UserSession{}}
}

var errDriver = errors.New("pq: connection refused")

func (f *fakeRepo) Create(s *domain.UserSession) error {
	if f.failAll {
		return errDriver
	}
	s.ID = int64(len(f.byToken) + 1)
	s.IsActive = true
	s.CreatedAt = time.Now()
	f.byToken[s.SessionToken] = s
	return nil
}

func (f *fakeRepo) GetByToken(token string) (*domain.UserSession, error) {
	if f.failAll {
		return nil, errDriver
	}
	return f.byToken[token], nil
}

func (f *fakeRepo) GetByTokenAndUser(token string, userID int64) (*domain.UserSession, error) {
	if f.failAll {
		return nil, errDriver
	}
	s := f.byToken[token]
	if s == nil || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}

func (f *fakeRepo) Deactivate(token string) (bool, error) {
	if f.failAll {
		return false, errDriver
	}
	s := f.byToken[token]
	if s == nil || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	return true, nil
}

func (f *fakeRepo) ReplaceToken(userID int64, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	if f.failAll {
		return false, errDriver
	}
	s := f.byToken[oldToken]
	if s == nil || s.UserID != userID || !s.IsActive {
		return false, nil
	}
	delete(f.byToken, oldToken)
	s.SessionToken = newToken
	s.ExpiresAt = expiresAt
	f.byToken[newToken] = s
	return true, nil
}

func (f *fakeRepo) TouchActivity(token string) error {
	f.touched = append(f.touched, token)
	return nil
}

func (f *fakeRepo) HistoryByUser(userID int64, limit int) ([]domain.UserSession, error) {
	var out []domain.UserSession
	for _, s := range f.byToken {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func newService(repo *fakeRepo) *Service {
	return NewService(repo, nil, time.Hour, time.Hour)
}

func TestCreateAndValidate(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	sess, err := svc.Create(7, "dev-1", "Chrome on Linux", "10.0.0.4", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.SessionToken == "" {
		t.Fatal("empty session token")
	}

	got, err := svc.Validate(sess.SessionToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.UserID != 7 || got.DeviceID != "dev-1" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestValidate_Taxonomy(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	if _, err := svc.Validate("no-such-token"); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("unknown token: got %v, want ErrSessionNotFound", err)
	}

	inactive, _ := svc.Create(1, "d", "n", "ip", "ua")
	repo.byToken[inactive.SessionToken].IsActive = false
	if _, err := svc.Validate(inactive.SessionToken); !errors.Is(err, apperr.ErrSessionInactive) {
		t.Errorf("inactive: got %v, want ErrSessionInactive", err)
	}

	expired, _ := svc.Create(1, "d", "n", "ip", "ua")
	repo.byToken[expired.SessionToken].ExpiresAt = time.Now().Add(-time.Minute)
	if _, err := svc.Validate(expired.SessionToken); !errors.Is(err, apperr.ErrSessionExpired) {
		t.Errorf("expired: got %v, want ErrSessionExpired", err)
	}
}

func TestValidate_DBFailureWrapped(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)
	repo.failAll = true

	_, err := svc.Validate("anything")
	if !errors.Is(err, apperr.ErrSessionValidationFailed) {
		t.Fatalf("got %v, want ErrSessionValidationFailed", err)
	}
	// Driver text stays internal.
	if apperr.PublicMessage(err) != "internal server error" {
		t.Errorf("public message leaks detail: %q", apperr.PublicMessage(err))
	}
}

func TestValidateForUser_Mismatch(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	sess, _ := svc.Create(7, "d", "n", "ip", "ua")

	if _, err := svc.ValidateForUser(sess.SessionToken, 7); err != nil {
		t.Fatalf("same user: %v", err)
	}
	if _, err := svc.ValidateForUser(sess.SessionToken, 99); !errors.Is(err, apperr.ErrSessionMismatch) {
		t.Errorf("cross user: got %v, want ErrSessionMismatch", err)
	}
	if _, err := svc.ValidateForUser("missing", 7); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("missing: got %v, want ErrSessionNotFound", err)
	}
}

func TestExtend_ReplacesTokenAtomically(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	sess, _ := svc.Create(7, "d", "n", "ip", "ua")
	oldToken := sess.SessionToken

	newToken, expiresAt, err := svc.Extend(7, oldToken)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if newToken == oldToken {
		t.Error("token not rotated")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("new expiry not in the future")
	}

	if _, err := svc.Validate(oldToken); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("old token still valid: %v", err)
	}
	if _, err := svc.Validate(newToken); err != nil {
		t.Errorf("new token invalid: %v", err)
	}

	// Extending a consumed token fails: old and new are never active together.
	if _, _, err := svc.Extend(7, oldToken); !errors.Is(err, apperr.ErrSessionNotFound) {
		t.Errorf("re-extend old token: got %v, want ErrSessionNotFound", err)
	}
}

func TestInvalidate_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo)

	sess, _ := svc.Create(7, "d", "n", "ip", "ua")

	changed, err := svc.Invalidate(sess.SessionToken)
	if err != nil || !changed {
		t.Fatalf("first invalidate: changed=%v err=%v", changed, err)
	}
	changed, err = svc.Invalidate(sess.SessionToken)
	if err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if changed {
		t.Error("second invalidate reported a change")
	}
}

func TestValidate_CacheAside(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := redisrepo.NewCache(client)

	repo := newFakeRepo()
	svc := NewService(repo, cache, time.Hour, time.Hour)

	sess, err := svc.Create(7, "d", "n", "ip", "ua")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// First validate populates the cache; a repo outage afterwards must not
	// break reads for cached sessions.
	if _, err := svc.Validate(sess.SessionToken); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	repo.failAll = true
	if _, err := svc.Validate(sess.SessionToken); err != nil {
		t.Errorf("cached validate during outage: %v", err)
	}

	// Invalidation evicts the cache entry.
	repo.failAll = false
	if _, err := svc.Invalidate(sess.SessionToken); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := svc.Validate(sess.SessionToken); !errors.Is(err, apperr.ErrSessionInactive) {
		t.Errorf("after invalidate: got %v, want ErrSessionInactive", err)
	}
}
