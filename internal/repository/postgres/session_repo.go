package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rentiva/rentiva-backend/internal/domain"
)

type SessionRepo struct {
	DB *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

const sessionColumns = `id, user_id, session_token, device_id, device_name, ip_address, user_agent,
	created_at, updated_at, last_active_at, expires_at, is_active`

func scanSession(row interface{ Scan(...any) error }) (*domain.UserSession, error) {
	var s domain.UserSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.SessionToken,
		&s.DeviceID,
		&s.DeviceName,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.LastActiveAt,
		&s.ExpiresAt,
		&s.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new active session row and fills in its generated id.
func (r *SessionRepo) Create(s *domain.UserSession) error {
	query := `
	INSERT INTO user_sessions (user_id, session_token, device_id, device_name, ip_address, user_agent, expires_at, is_active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	RETURNING id, created_at, updated_at, last_active_at;
	`
	err := r.DB.QueryRow(query,
		s.UserID, s.SessionToken, s.DeviceID, s.DeviceName, s.IPAddress, s.UserAgent, s.ExpiresAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.LastActiveAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %v", err)
	}
	s.IsActive = true
	return nil
}

// GetByToken retrieves a session row by its token. Returns (nil, nil) when no
// row exists.
func (r *SessionRepo) GetByToken(token string) (*domain.UserSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE session_token = $1;`
	s, err := scanSession(r.DB.QueryRow(query, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	return s, nil
}

// GetByTokenAndUser retrieves a session scoped to a user id, so a cross-user
// session token is never matched. Returns (nil, nil) when no row exists.
func (r *SessionRepo) GetByTokenAndUser(token string, userID int64) (*domain.UserSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE session_token = $1 AND user_id = $2;`
	s, err := scanSession(r.DB.QueryRow(query, token, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	return s, nil
}

// Deactivate marks a session inactive. Idempotent: reports whether a row
// actually changed.
func (r *SessionRepo) Deactivate(token string) (bool, error) {
	query := `
	UPDATE user_sessions
	SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
	WHERE session_token = $1 AND is_active = TRUE;
	`
	result, err := r.DB.Exec(query, token)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return affected > 0, nil
}

// ReplaceToken atomically swaps the old token for a new one with a new
// expiry. A single UPDATE means a crash can never leave both tokens active.
func (r *SessionRepo) ReplaceToken(userID int64, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	query := `
	UPDATE user_sessions
	SET session_token = $1, expires_at = $2, updated_at = CURRENT_TIMESTAMP, last_active_at = CURRENT_TIMESTAMP
	WHERE session_token = $3 AND user_id = $4 AND is_active = TRUE;
	`
	result, err := r.DB.Exec(query, newToken, expiresAt, oldToken, userID)
	if err != nil {
		return false, fmt.Errorf("failed to replace session token: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return affected > 0, nil
}

// TouchActivity updates last_active_at. Callers treat failures as advisory.
func (r *SessionRepo) TouchActivity(token string) error {
	query := `
	UPDATE user_sessions
	SET last_active_at = CURRENT_TIMESTAMP
	WHERE session_token = $1;
	`
	if _, err := r.DB.Exec(query, token); err != nil {
		return fmt.Errorf("failed to update session activity: %v", err)
	}
	return nil
}

// HistoryByUser lists recent sessions for a user, newest first.
func (r *SessionRepo) HistoryByUser(userID int64, limit int) ([]domain.UserSession, error) {
	query := `
	SELECT ` + sessionColumns + `
	FROM user_sessions
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2;
	`
	rows, err := r.DB.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %v", err)
	}
	defer rows.Close()

	var sessions []domain.UserSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %v", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %v", err)
	}
	return sessions, nil
}

// DeleteInactiveBefore removes long-dead session rows, keeping the table from
// growing without bound.
func (r *SessionRepo) DeleteInactiveBefore(cutoff time.Time) (int64, error) {
	query := `
	DELETE FROM user_sessions
	WHERE is_active = FALSE AND updated_at < $1;
	`
	result, err := r.DB.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sessions: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}
	return affected, nil
}
