package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/infrastructure/database"
)

// timeLayout matches the audit trail's storage format so timestamps across
// tables sort consistently.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sessionColumns = `token, user_id, ip_address, user_agent,
	created_at, last_activity_at, expires_at, active, logout_reason`

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Deactivate(ctx context.Context, token, reason string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID, reason string) (int, error)
	ListActiveByUser(ctx context.Context, userID string) ([]Summary, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a session repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a newly issued session.
func (r *SQLiteRepository) Insert(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.Token,
		s.UserID,
		s.Fingerprint.IPAddress,
		s.Fingerprint.UserAgent,
		s.CreatedAt.UTC().Format(timeLayout),
		s.LastActivityAt.UTC().Format(timeLayout),
		s.ExpiresAt.UTC().Format(timeLayout),
		boolToInt(s.Active),
		nullString(s.LogoutReason),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByToken returns the session for a token, or (nil, nil) when the token
// is unknown. Absence is a normal lookup outcome here, not an error.
func (r *SQLiteRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// Touch refreshes a session's last-activity timestamp.
func (r *SQLiteRepository) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = ? WHERE token = ?`,
		at.UTC().Format(timeLayout), token)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Deactivate marks an active session inactive with the given reason.
// It reports whether a row actually transitioned; an already-inactive or
// unknown token yields false with no error, making the operation idempotent.
// The WHERE active = 1 guard is what makes deactivation one-way: a stored
// logout reason is never overwritten.
func (r *SQLiteRepository) Deactivate(ctx context.Context, token, reason string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0, logout_reason = ? WHERE token = ? AND active = 1`,
		reason, token)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// DeactivateAllForUser marks every active session owned by userID inactive
// and returns the count affected.
func (r *SQLiteRepository) DeactivateAllForUser(ctx context.Context, userID, reason string) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0, logout_reason = ? WHERE user_id = ? AND active = 1`,
		reason, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// ListActiveByUser returns summaries of a user's active, unexpired sessions,
// most recently active first.
func (r *SQLiteRepository) ListActiveByUser(ctx context.Context, userID string) ([]Summary, error) {
	query := `
		SELECT token, ip_address, user_agent, created_at, last_activity_at, expires_at
		FROM sessions
		WHERE user_id = ? AND active = 1 AND expires_at > ?
		ORDER BY last_activity_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		var created, lastActivity, expires string
		if err := rows.Scan(&s.Token, &s.IPAddress, &s.UserAgent, &created, &lastActivity, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
		}
		if s.LastActivityAt, err = time.Parse(timeLayout, lastActivity); err != nil {
			return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
		}
		if s.ExpiresAt, err = time.Parse(timeLayout, expires); err != nil {
			return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return summaries, nil
}

// DeactivateExpired marks every still-active session whose expiry has passed
// as inactive. Each row transition is an independent idempotent update, so
// interrupting the reaper between calls leaves no inconsistent state.
func (r *SQLiteRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0, logout_reason = ? WHERE active = 1 AND expires_at <= ?`,
		ReasonExpired, now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// DeleteCreatedBefore prunes sessions created before the retention cutoff.
func (r *SQLiteRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var created, lastActivity, expires string
	var active int
	var reason sql.NullString

	err := row.Scan(
		&s.Token, &s.UserID, &s.Fingerprint.IPAddress, &s.Fingerprint.UserAgent,
		&created, &lastActivity, &expires, &active, &reason,
	)
	if err != nil {
		return nil, err
	}

	s.Active = active == 1
	s.LogoutReason = reason.String

	if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
	}
	if s.LastActivityAt, err = time.Parse(timeLayout, lastActivity); err != nil {
		return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
	}
	if s.ExpiresAt, err = time.Parse(timeLayout, expires); err != nil {
		return nil, fmt.Errorf("failed to parse session timestamp: %w", err)
	}

	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
