package authn

import (
	"errors"
	"testing"
	"time"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
	"github.com/rentiva/rentiva-backend/internal/token"
	"github.com/rentiva/rentiva-backend/pkg/tokencrypt"
)

type fakeOTPRepo struct {
	records []*domain.OTPRecord
}

func (f *fakeOTPRepo) ExpirePending(email string, purpose domain.OTPPurpose) error {
	for _, r := range f.records {
		if r.Email == email && r.Purpose == purpose && r.Status == domain.OTPStatusPending {
			r.Status = domain.OTPStatusExpired
		}
	}
	return nil
}

func (f *fakeOTPRepo) Create(rec *domain.OTPRecord) error {
	rec.Status = domain.OTPStatusPending
	rec.CreatedAt = time.Now()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeOTPRepo) ConsumePending(email, codeHash string, purpose domain.OTPPurpose, now time.Time) (bool, error) {
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		if r.Email == email && r.Purpose == purpose && r.CodeHash == codeHash &&
			r.Status == domain.OTPStatusPending && r.ExpiresAt.After(now) {
			r.Status = domain.OTPStatusVerified
			return true, nil
		}
	}
	return false, nil
}

type fakeAccounts struct {
	principals map[string]domain.Principal
	taken      map[string]bool
	registered int
}

func (f *fakeAccounts) GetLoginPrincipal(email string) (*domain.Principal, error) {
	p, ok := f.principals[email]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeAccounts) EmailExists(email string) (bool, error) {
	return f.taken[email], nil
}

func (f *fakeAccounts) RegisterBusiness(in domain.RegistrationInput) (*domain.RegistrationResult, error) {
	f.registered++
	return &domain.RegistrationResult{BusinessID: 10, BranchID: 20, OwnerID: 30}, nil
}

type fakeSessions struct {
	fail    bool
	created int
}

func (f *fakeSessions) Create(userID int64, deviceID, deviceName, ip, userAgent string) (*domain.UserSession, error) {
	if f.fail {
		return nil, errors.New("pq: relation does not exist")
	}
	f.created++
	return &domain.UserSession{UserID: userID, SessionToken: "sess-token-1"}, nil
}

type fakeMailer struct {
	sent []string // bodies
	fail bool
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.fail {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, body)
	return nil
}

type fixture struct {
	svc      *Service
	otps     *fakeOTPRepo
	accounts *fakeAccounts
	sessions *fakeSessions
	mailer   *fakeMailer
	issuer   *token.Issuer
}

func newFixture() *fixture {
	otps := &fakeOTPRepo{}
	accounts := &fakeAccounts{
		principals: map[string]domain.Principal{
			"a@b.com": {
				UserID: 1, BusinessID: 2, BranchID: 3, RoleID: 4,
				Name: "A", Email: "a@b.com", BusinessName: "B Rentals",
			},
		},
		taken: map[string]bool{"a@b.com": true},
	}
	sessions := &fakeSessions{}
	mailer := &fakeMailer{}
	issuer := token.NewIssuer(tokencrypt.DeriveKey("test", "access_token"), 15*time.Minute)
	return &fixture{
		svc:      NewService(otps, accounts, sessions, issuer, mailer, 10*time.Minute),
		otps:     otps,
		accounts: accounts,
		sessions: sessions,
		mailer:   mailer,
		issuer:   issuer,
	}
}

// codeFor digs the plaintext code back out of the mail body for tests.
func (f *fixture) lastCode(t *testing.T) string {
	t.Helper()
	if len(f.mailer.sent) == 0 {
		t.Fatal("no mail sent")
	}
	body := f.mailer.sent[len(f.mailer.sent)-1]
	// Body shape: "Your verification code is NNNNNN. ..."
	const prefix = "Your verification code is "
	if len(body) < len(prefix)+6 {
		t.Fatalf("unexpected mail body: %q", body)
	}
	return body[len(prefix) : len(prefix)+6]
}

func TestSendOTP_StoresHashNotCode(t *testing.T) {
	f := newFixture()

	id, expiresAt, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin)
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if id == "" {
		t.Error("empty otp record id")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiry not in the future")
	}

	code := f.lastCode(t)
	rec := f.otps.records[0]
	if rec.CodeHash == code {
		t.Error("plaintext code persisted")
	}
	if rec.CodeHash != HashOTP(code) {
		t.Error("stored hash does not match the shared hash of the sent code")
	}
}

func TestSendOTP_ReplacesPriorPending(t *testing.T) {
	f := newFixture()

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("first SendOTP: %v", err)
	}
	firstCode := f.lastCode(t)
	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("second SendOTP: %v", err)
	}

	if err := f.svc.VerifyOTP("a@b.com", firstCode, domain.OTPPurposeLogin); !errors.Is(err, apperr.ErrInvalidOrExpiredOTP) {
		t.Errorf("stale code verified: got %v, want ErrInvalidOrExpiredOTP", err)
	}
}

func TestSendOTP_DeliveryFailure(t *testing.T) {
	f := newFixture()
	f.mailer.fail = true

	_, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin)
	if !errors.Is(err, apperr.ErrNotificationDeliveryFailed) {
		t.Errorf("got %v, want ErrNotificationDeliveryFailed", err)
	}
}

func TestVerifyOTP_SingleUse(t *testing.T) {
	f := newFixture()

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	if err := f.svc.VerifyOTP("a@b.com", code, domain.OTPPurposeLogin); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := f.svc.VerifyOTP("a@b.com", code, domain.OTPPurposeLogin); !errors.Is(err, apperr.ErrInvalidOrExpiredOTP) {
		t.Errorf("second verify: got %v, want ErrInvalidOrExpiredOTP", err)
	}
}

func TestVerifyOTP_WrongPurpose(t *testing.T) {
	f := newFixture()

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	err := f.svc.VerifyOTP("a@b.com", code, domain.OTPPurposeRegistration)
	if !errors.Is(err, apperr.ErrInvalidOrExpiredOTP) {
		t.Errorf("got %v, want ErrInvalidOrExpiredOTP", err)
	}
}

func TestVerifyOTP_Expired(t *testing.T) {
	f := newFixture()
	issued := time.Now()
	clock := issued
	f.svc.WithClock(func() time.Time { return clock })

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	clock = issued.Add(11 * time.Minute)
	if err := f.svc.VerifyOTP("a@b.com", code, domain.OTPPurposeLogin); !errors.Is(err, apperr.ErrInvalidOrExpiredOTP) {
		t.Errorf("got %v, want ErrInvalidOrExpiredOTP", err)
	}
}

func TestLoginWithOTP_HappyPath(t *testing.T) {
	f := newFixture()

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	result, err := f.svc.LoginWithOTP("a@b.com", code, domain.OTPPurposeLogin, "dev-9", "Chrome on macOS", "1.2.3.4", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("LoginWithOTP: %v", err)
	}
	if result.AccessToken == "" || result.SessionToken == "" {
		t.Fatalf("missing tokens: %+v", result)
	}

	principal, err := f.issuer.Verify(result.AccessToken)
	if err != nil {
		t.Fatalf("Verify minted token: %v", err)
	}
	if principal.Email != "a@b.com" {
		t.Errorf("token email = %q, want a@b.com", principal.Email)
	}
}

func TestLoginWithOTP_UnknownAccount(t *testing.T) {
	f := newFixture()

	if _, _, err := f.svc.SendOTP("ghost@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	_, err := f.svc.LoginWithOTP("ghost@b.com", code, domain.OTPPurposeLogin, "d", "n", "ip", "ua")
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Errorf("got %v, want ErrAccountNotFound", err)
	}
}

func TestLoginWithOTP_DegradedWithoutSession(t *testing.T) {
	f := newFixture()
	f.sessions.fail = true

	if _, _, err := f.svc.SendOTP("a@b.com", domain.OTPPurposeLogin); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := f.lastCode(t)

	result, err := f.svc.LoginWithOTP("a@b.com", code, domain.OTPPurposeLogin, "d", "n", "ip", "ua")
	if err != nil {
		t.Fatalf("login must not fail on session-creation failure: %v", err)
	}
	if result.AccessToken == "" {
		t.Error("missing access token")
	}
	if result.SessionToken != "" {
		t.Error("session token should be empty in degraded mode")
	}
}

func TestCompleteRegistration_Conflict(t *testing.T) {
	f := newFixture()

	in := domain.RegistrationInput{
		BusinessName:  "New Rentals",
		BusinessEmail: "new@biz.com",
		OwnerName:     "Owner",
		OwnerEmail:    "a@b.com", // already registered
	}
	_, err := f.svc.CompleteRegistration(in)
	if !errors.Is(err, apperr.ErrEmailConflict) {
		t.Fatalf("got %v, want ErrEmailConflict", err)
	}
	if f.accounts.registered != 0 {
		t.Error("registration ran despite conflict")
	}
}

func TestCompleteRegistration_Success(t *testing.T) {
	f := newFixture()

	in := domain.RegistrationInput{
		BusinessName:  "New Rentals",
		BusinessEmail: "new@biz.com",
		OwnerName:     "Owner",
		OwnerEmail:    "owner@biz.com",
	}
	result, err := f.svc.CompleteRegistration(in)
	if err != nil {
		t.Fatalf("CompleteRegistration: %v", err)
	}
	if result.BusinessID == 0 || result.BranchID == 0 || result.OwnerID == 0 {
		t.Errorf("missing generated ids: %+v", result)
	}
}
