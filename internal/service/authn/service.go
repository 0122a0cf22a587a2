// Package authn orchestrates the OTP login flow: code issuance and
// verification, login token minting, and business registration.
package authn

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rentiva/rentiva-backend/internal/apperr"
	"github.com/rentiva/rentiva-backend/internal/domain"
)

type OTPRepository interface {
	ExpirePending(email string, purpose domain.OTPPurpose) error
	Create(rec *domain.OTPRecord) error
	ConsumePending(email, codeHash string, purpose domain.OTPPurpose, now time.Time) (bool, error)
}

type AccountRepository interface {
	GetLoginPrincipal(email string) (*domain.Principal, error)
	EmailExists(email string) (bool, error)
	RegisterBusiness(in domain.RegistrationInput) (*domain.RegistrationResult, error)
}

type SessionCreator interface {
	Create(userID int64, deviceID, deviceName, ip, userAgent string) (*domain.UserSession, error)
}

type AccessIssuer interface {
	Issue(p domain.Principal) (string, time.Time, error)
}

// Mailer delivers a rendered message out-of-band. Implementations live at the
// edge; the orchestrator only sees success or failure.
type Mailer interface {
	Send(to, subject, body string) error
}

type Service struct {
	otps     OTPRepository
	accounts AccountRepository
	sessions SessionCreator
	tokens   AccessIssuer
	mailer   Mailer
	otpTTL   time.Duration
	now      func() time.Time
}

func NewService(otps OTPRepository, accounts AccountRepository, sessions SessionCreator, tokens AccessIssuer, mailer Mailer, otpTTL time.Duration) *Service {
	return &Service{
		otps:     otps,
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		otpTTL:   otpTTL,
		now:      time.Now,
	}
}

// WithClock replaces the service clock. Test use only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LoginResult carries both tokens minted on a successful login. SessionToken
// is empty when session creation failed and the login proceeded degraded.
type LoginResult struct {
	AccessToken    string           `json:"access_token"`
	SessionToken   string           `json:"session_token"`
	TokenExpiresAt time.Time        `json:"token_expires_at"`
	Principal      domain.Principal `json:"-"`
}

// SendOTP issues a fresh code for (email, purpose), expiring any prior
// pending codes, and dispatches it by mail. The code itself is never
// returned; callers get the record id and expiry.
func (s *Service) SendOTP(email string, purpose domain.OTPPurpose) (string, time.Time, error) {
	if email == "" {
		return "", time.Time{}, apperr.Validationf("email is required")
	}

	code, err := GenerateOTP()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindDatabase, "failed to generate otp", err)
	}

	if err := s.otps.ExpirePending(email, purpose); err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindDatabase, "failed to issue otp", err)
	}

	rec := &domain.OTPRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Purpose:   purpose,
		CodeHash:  HashOTP(code),
		ExpiresAt: s.now().Add(s.otpTTL),
	}
	if err := s.otps.Create(rec); err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindDatabase, "failed to issue otp", err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(s.otpTTL.Minutes()))
	if err := s.mailer.Send(email, "Your verification code", body); err != nil {
		return "", time.Time{}, apperr.WrapAs(apperr.ErrNotificationDeliveryFailed, err)
	}

	return rec.ID, rec.ExpiresAt, nil
}

// VerifyOTP consumes the newest pending code for (email, purpose). Consuming
// is a compare-and-set on the stored record, so a code verifies exactly once
// even under concurrent attempts.
func (s *Service) VerifyOTP(email, code string, purpose domain.OTPPurpose) error {
	if email == "" || code == "" {
		return apperr.Validationf("email and otpCode are required")
	}

	consumed, err := s.otps.ConsumePending(email, HashOTP(code), purpose, s.now())
	if err != nil {
		return apperr.Wrap(apperr.KindDatabase, "failed to verify otp", err)
	}
	if !consumed {
		return apperr.ErrInvalidOrExpiredOTP
	}
	return nil
}

// LoginWithOTP verifies the code, loads the principal and mints both tokens.
// A session-creation failure does not abort a successful login: the result
// then carries only the access token and the failure is logged.
func (s *Service) LoginWithOTP(email, code string, purpose domain.OTPPurpose, deviceID, deviceName, ip, userAgent string) (*LoginResult, error) {
	if err := s.VerifyOTP(email, code, purpose); err != nil {
		return nil, err
	}

	principal, err := s.accounts.GetLoginPrincipal(email)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "failed to load account", err)
	}
	if principal == nil {
		return nil, apperr.ErrAccountNotFound
	}

	accessToken, expiresAt, err := s.tokens.Issue(*principal)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{
		AccessToken:    accessToken,
		TokenExpiresAt: expiresAt,
		Principal:      *principal,
	}

	sess, err := s.sessions.Create(principal.UserID, deviceID, deviceName, ip, userAgent)
	if err != nil {
		log.Printf("[OTP] Warning: session creation failed for user %d, continuing with access token only: %v",
			principal.UserID, err)
		return result, nil
	}
	result.SessionToken = sess.SessionToken

	return result, nil
}

// CompleteRegistration pre-checks both emails for conflicts, then creates
// business, branch and owner through one atomic stored operation.
func (s *Service) CompleteRegistration(in domain.RegistrationInput) (*domain.RegistrationResult, error) {
	switch {
	case in.BusinessName == "":
		return nil, apperr.Validationf("business_name is required")
	case in.BusinessEmail == "":
		return nil, apperr.Validationf("business_email is required")
	case in.OwnerName == "":
		return nil, apperr.Validationf("owner_name is required")
	case in.OwnerEmail == "":
		return nil, apperr.Validationf("owner_email is required")
	}

	for _, email := range []string{in.BusinessEmail, in.OwnerEmail} {
		exists, err := s.accounts.EmailExists(email)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDatabase, "failed to check registration emails", err)
		}
		if exists {
			return nil, apperr.ErrEmailConflict
		}
	}

	result, err := s.accounts.RegisterBusiness(in)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDatabase, "registration failed", err)
	}
	return result, nil
}
