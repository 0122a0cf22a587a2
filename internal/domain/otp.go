package domain

import "time"

// OTPPurpose tells why a one-time code was issued. Codes are bound to
// (email, purpose); a login code cannot complete a registration.
type OTPPurpose int

const (
	OTPPurposeLogin        OTPPurpose = 1
	OTPPurposeRegistration OTPPurpose = 2
	OTPPurposeDevicePair   OTPPurpose = 3
)

// OTP record statuses. A fresh send expires prior pending codes for the same
// (email, purpose); verification flips pending to verified exactly once.
const (
	OTPStatusPending  = "pending"
	OTPStatusVerified = "verified"
	OTPStatusExpired  = "expired"
)

// OTPRecord stores a hash of the code, never the plaintext.
type OTPRecord struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Purpose   OTPPurpose `json:"otp_type_id"`
	CodeHash  string     `json:"-"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}
