package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rentiva/rentiva-backend/internal/domain"
)

type OTPRepo struct {
	DB *sql.DB
}

func NewOTPRepo(db *sql.DB) *OTPRepo {
	return &OTPRepo{DB: db}
}

// ExpirePending marks earlier pending codes for the same (email, purpose) as
// expired, so only the freshest code can verify.
func (r *OTPRepo) ExpirePending(email string, purpose domain.OTPPurpose) error {
	query := `
	UPDATE otp_codes
	SET status = $1
	WHERE email = $2 AND otp_type_id = $3 AND status = $4;
	`
	if _, err := r.DB.Exec(query, domain.OTPStatusExpired, email, int(purpose), domain.OTPStatusPending); err != nil {
		return fmt.Errorf("failed to expire pending otp codes: %v", err)
	}
	return nil
}

// Create inserts a fresh pending record. Only the code's hash is stored.
func (r *OTPRepo) Create(rec *domain.OTPRecord) error {
	query := `
	INSERT INTO otp_codes (id, email, otp_type_id, code_hash, status, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at;
	`
	err := r.DB.QueryRow(query,
		rec.ID, rec.Email, int(rec.Purpose), rec.CodeHash, domain.OTPStatusPending, rec.ExpiresAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp record: %v", err)
	}
	rec.Status = domain.OTPStatusPending
	return nil
}

// ConsumePending flips the newest matching pending record to verified in a
// single compare-and-set UPDATE. Two concurrent verifications of the same
// code see exactly one row change between them.
func (r *OTPRepo) ConsumePending(email, codeHash string, purpose domain.OTPPurpose, now time.Time) (bool, error) {
	query := `
	UPDATE otp_codes
	SET status = $1
	WHERE status = $2
	  AND id = (
		SELECT id FROM otp_codes
		WHERE email = $3 AND otp_type_id = $4 AND code_hash = $5
		  AND status = $2 AND expires_at > $6
		ORDER BY created_at DESC
		LIMIT 1
	  );
	`
	result, err := r.DB.Exec(query,
		domain.OTPStatusVerified, domain.OTPStatusPending, email, int(purpose), codeHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return affected > 0, nil
}

// DeleteExpiredBefore prunes stale rows for the cleanup worker.
func (r *OTPRepo) DeleteExpiredBefore(cutoff time.Time) (int64, error) {
	query := `
	DELETE FROM otp_codes
	WHERE expires_at < $1;
	`
	result, err := r.DB.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup otp codes: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return affected, nil
}
