package postgres

import (
	"database/sql"
	"fmt"

	"github.com/rentiva/rentiva-backend/internal/domain"
)

// AccountRepo wraps the stored-procedure surface of the business schema.
// Principal lookup, registration and permission checks all live server-side;
// this repo only formats the calls.
type AccountRepo struct {
	DB *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// GetLoginPrincipal loads the identity/tenant snapshot for an email via the
// get_login_principal stored function. Returns (nil, nil) for unknown emails.
func (r *AccountRepo) GetLoginPrincipal(email string) (*domain.Principal, error) {
	query := `
	SELECT user_id, business_id, branch_id, role_id, is_owner, name, contact_number, business_name, email
	FROM get_login_principal($1);
	`
	var p domain.Principal
	err := r.DB.QueryRow(query, email).Scan(
		&p.UserID,
		&p.BusinessID,
		&p.BranchID,
		&p.RoleID,
		&p.IsOwner,
		&p.Name,
		&p.ContactNumber,
		&p.BusinessName,
		&p.Email,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get login principal: %v", err)
	}
	return &p, nil
}

// EmailExists reports whether an email is taken by any business or user
// account. Used as a pre-check so registration surfaces a conflict instead of
// a constraint-violation leak.
func (r *AccountRepo) EmailExists(email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`SELECT account_email_exists($1);`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %v", err)
	}
	return exists, nil
}

// RegisterBusiness creates business, branch and owner atomically through the
// register_business stored procedure and returns the three generated ids.
func (r *AccountRepo) RegisterBusiness(in domain.RegistrationInput) (*domain.RegistrationResult, error) {
	query := `
	SELECT business_id, branch_id, owner_id
	FROM register_business($1, $2, $3, $4, $5, $6, $7);
	`
	var res domain.RegistrationResult
	err := r.DB.QueryRow(query,
		in.BusinessName, in.BusinessEmail, in.BusinessContact,
		in.BranchName,
		in.OwnerName, in.OwnerEmail, in.OwnerContact,
	).Scan(&res.BusinessID, &res.BranchID, &res.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to register business: %v", err)
	}
	return &res, nil
}

// HasPermission checks a single permission grant for a user.
func (r *AccountRepo) HasPermission(userID int64, code string) (bool, error) {
	var granted bool
	err := r.DB.QueryRow(`SELECT has_permission($1, $2);`, userID, code).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %v", err)
	}
	return granted, nil
}
