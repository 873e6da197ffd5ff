package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/infrastructure/database"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200

	// burstWindow and burstThreshold define a suspicious login burst:
	// more than burstThreshold failures from one (identity, address)
	// pair within the trailing burstWindow.
	burstWindow    = time.Hour
	burstThreshold = 3
)

const eventColumns = `id, actor_id, actor_role, category, type, details,
	resource_type, resource_id, previous_values, new_values,
	ip_address, user_agent, success, error_message, risk_level, timestamp`

// Repository persists audit events and login attempts.
type Repository interface {
	InsertEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, filter Filter) (*QueryResult, error)
	Summarize(ctx context.Context, since time.Time) (*Summary, error)
	InsertLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
	LoginStats(ctx context.Context, since, burstSince time.Time) (*LoginStats, error)
	AccessStats(ctx context.Context, since time.Time) (*AccessStats, error)
}

// SQLiteRepository implements Repository backed by SQLite.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates an audit repository.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertEvent stores one audit event. Events are append-only; there is no
// update or delete path.
func (r *SQLiteRepository) InsertEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.ActorID),
		nullString(event.ActorRole),
		event.Category,
		event.Type,
		nullString(event.Details),
		nullString(event.ResourceType),
		nullString(event.ResourceID),
		nullString(string(event.PreviousValues)),
		nullString(string(event.NewValues)),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		boolToInt(event.Success),
		nullString(event.ErrorMessage),
		string(event.RiskLevel),
		event.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListEvents returns a page of events matching the filter, newest first,
// together with the total count of the filtered set.
func (r *SQLiteRepository) ListEvents(ctx context.Context, filter Filter) (*QueryResult, error) {
	conditions := []string{}
	args := []any{}

	if filter.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.RiskLevel != "" {
		conditions = append(conditions, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From.UTC().Format(timeLayout))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.To.UTC().Format(timeLayout))
	}
	if filter.FailedOnly {
		conditions = append(conditions, "success = 0")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	// Total count runs against the filter, not the page.
	var total int
	countQuery := "SELECT COUNT(*) FROM audit_events" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	// id is a deterministic tiebreak for the rare identical timestamp.
	query := "SELECT " + eventColumns + " FROM audit_events" + where +
		" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return &QueryResult{
		Events:     events,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// Summarize aggregates events recorded at or after the given instant.
func (r *SQLiteRepository) Summarize(ctx context.Context, since time.Time) (*Summary, error) {
	cutoff := since.UTC().Format(timeLayout)

	summary := &Summary{ByCategory: map[string]int{}}

	query := `
		SELECT category, COUNT(*),
		       SUM(CASE WHEN risk_level = 'high' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM audit_events
		WHERE timestamp >= ?
		GROUP BY category`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count, highRisk, failed int
		if err := rows.Scan(&category, &count, &highRisk, &failed); err != nil {
			return nil, fmt.Errorf("failed to scan audit summary row: %w", err)
		}
		summary.ByCategory[category] = count
		summary.TotalActions += count
		summary.HighRiskCount += highRisk
		summary.FailedCount += failed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit summary: %w", err)
	}

	return summary, nil
}

// InsertLoginAttempt stores one authentication attempt.
func (r *SQLiteRepository) InsertLoginAttempt(ctx context.Context, attempt *LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (id, identity, ip_address, user_agent, success, failure_reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.Identity,
		nullString(attempt.IPAddress),
		nullString(attempt.UserAgent),
		boolToInt(attempt.Success),
		nullString(attempt.FailureReason),
		attempt.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}
	return nil
}

// LoginStats aggregates attempts recorded at or after since. burstSince is
// the separate cutoff for burst detection; the trail pins it to the trailing
// burst window so an old since cannot widen what counts as a burst.
func (r *SQLiteRepository) LoginStats(ctx context.Context, since, burstSince time.Time) (*LoginStats, error) {
	cutoff := since.UTC().Format(timeLayout)

	stats := &LoginStats{SuspiciousBursts: []Burst{}}

	query := `
		SELECT COUNT(*),
		       SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		       COUNT(DISTINCT identity)
		FROM login_attempts
		WHERE timestamp >= ?`
	if err := r.db.QueryRowContext(ctx, query, cutoff).Scan(&stats.Attempts, &nullInt{&stats.Successes}, &stats.UniqueActors); err != nil {
		return nil, fmt.Errorf("failed to aggregate login attempts: %w", err)
	}
	stats.Failures = stats.Attempts - stats.Successes
	if stats.Attempts > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Attempts)
	}

	burstCutoff := burstSince.UTC().Format(timeLayout)
	burstQuery := `
		SELECT identity, ip_address, COUNT(*), MAX(timestamp)
		FROM login_attempts
		WHERE success = 0 AND timestamp >= ?
		GROUP BY identity, ip_address
		HAVING COUNT(*) > ?
		ORDER BY COUNT(*) DESC`

	rows, err := r.db.QueryContext(ctx, burstQuery, burstCutoff, burstThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query login bursts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var burst Burst
		var addr sql.NullString
		var last string
		if err := rows.Scan(&burst.Identity, &addr, &burst.AttemptCount, &last); err != nil {
			return nil, fmt.Errorf("failed to scan login burst: %w", err)
		}
		burst.IPAddress = addr.String
		if t, err := time.Parse(timeLayout, last); err == nil {
			burst.LastAttempt = t
		}
		stats.SuspiciousBursts = append(stats.SuspiciousBursts, burst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate login bursts: %w", err)
	}

	return stats, nil
}

// AccessStats aggregates authorization decisions recorded at or after the
// given instant.
func (r *SQLiteRepository) AccessStats(ctx context.Context, since time.Time) (*AccessStats, error) {
	cutoff := since.UTC().Format(timeLayout)

	stats := &AccessStats{DeniedByResource: map[string]int{}}

	query := `
		SELECT COUNT(*),
		       SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END)
		FROM audit_events
		WHERE category = ? AND timestamp >= ?`
	if err := r.db.QueryRowContext(ctx, query, CategoryAccess, cutoff).Scan(&stats.Checks, &nullInt{&stats.Granted}); err != nil {
		return nil, fmt.Errorf("failed to aggregate access decisions: %w", err)
	}
	stats.Denied = stats.Checks - stats.Granted
	if stats.Checks > 0 {
		stats.DenialRate = float64(stats.Denied) / float64(stats.Checks)
	}

	denialQuery := `
		SELECT COALESCE(resource_type, ''), COUNT(*)
		FROM audit_events
		WHERE category = ? AND success = 0 AND timestamp >= ?
		GROUP BY resource_type`

	rows, err := r.db.QueryContext(ctx, denialQuery, CategoryAccess, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query denials by resource: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resourceType string
		var count int
		if err := rows.Scan(&resourceType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan denial row: %w", err)
		}
		stats.DeniedByResource[resourceType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate denials by resource: %w", err)
	}

	return stats, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*Event, error) {
	var event Event
	var actorID, actorRole, details, resourceType, resourceID sql.NullString
	var prevValues, newValues, ipAddress, userAgent, errMsg sql.NullString
	var success int
	var riskLevel, timestamp string

	err := s.Scan(
		&event.ID, &actorID, &actorRole, &event.Category, &event.Type, &details,
		&resourceType, &resourceID, &prevValues, &newValues,
		&ipAddress, &userAgent, &success, &errMsg, &riskLevel, &timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	event.ActorID = actorID.String
	event.ActorRole = actorRole.String
	event.Details = details.String
	event.ResourceType = resourceType.String
	event.ResourceID = resourceID.String
	if prevValues.Valid {
		event.PreviousValues = Values(prevValues.String)
	}
	if newValues.Valid {
		event.NewValues = Values(newValues.String)
	}
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.Success = success == 1
	event.ErrorMessage = errMsg.String
	event.RiskLevel = RiskLevel(riskLevel)

	t, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit event timestamp: %w", err)
	}
	event.Timestamp = t

	return &event, nil
}

// nullInt scans a nullable integer aggregate into an int, treating NULL as 0.
type nullInt struct{ v *int }

func (n *nullInt) Scan(src any) error {
	if src == nil {
		*n.v = 0
		return nil
	}
	switch x := src.(type) {
	case int64:
		*n.v = int(x)
	case float64:
		*n.v = int(x)
	default:
		return fmt.Errorf("unexpected aggregate type %T", src)
	}
	return nil
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
