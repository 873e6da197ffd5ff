package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/infrastructure/database"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
	_ "github.com/marlowe-systems/aegis-core/migrations"
)

func testTrail(t *testing.T) (*Trail, *SQLiteRepository) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	repo := NewSQLiteRepository(db)
	return NewTrail(repo, logging.Default(), nil), repo
}

func TestRecordAndQuery(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	if ok := trail.Record(ctx, Event{
		ActorID:   "usr-11111111",
		ActorRole: "admin",
		Category:  CategorySession,
		Type:      "session_created",
		Success:   true,
	}); !ok {
		t.Fatal("expected record to succeed")
	}
	if ok := trail.Record(ctx, Event{
		ActorID:   "usr-22222222",
		Category:  CategoryAccess,
		Type:      "access_denied",
		Success:   false,
		RiskLevel: RiskHigh,
	}); !ok {
		t.Fatal("expected record to succeed")
	}

	result, err := trail.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result.TotalCount != 2 {
		t.Errorf("expected total 2, got %d", result.TotalCount)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result.Events))
	}

	// Defaults: unset risk becomes low, ID and timestamp are assigned.
	for _, e := range result.Events {
		if e.ID == "" {
			t.Error("expected event ID to be assigned")
		}
		if e.Timestamp.IsZero() {
			t.Error("expected event timestamp to be assigned")
		}
	}

	byCategory, err := trail.Query(ctx, Filter{Category: CategorySession})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if byCategory.TotalCount != 1 {
		t.Errorf("expected 1 session event, got %d", byCategory.TotalCount)
	}
	if byCategory.Events[0].RiskLevel != RiskLow {
		t.Errorf("expected default risk low, got %s", byCategory.Events[0].RiskLevel)
	}

	failed, err := trail.Query(ctx, Filter{FailedOnly: true})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if failed.TotalCount != 1 || failed.Events[0].Type != "access_denied" {
		t.Errorf("expected only the failed event, got %+v", failed.Events)
	}
}

func TestQueryPagination(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		trail.Record(ctx, Event{
			Category: CategorySession,
			Type:     fmt.Sprintf("event_%d", i),
			Success:  true,
		})
	}

	page, err := trail.Query(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(page.Events) != 2 {
		t.Errorf("expected page of 2, got %d", len(page.Events))
	}
	// Total reflects the filter, not the page.
	if page.TotalCount != 5 {
		t.Errorf("expected total 5, got %d", page.TotalCount)
	}
}

func TestQueryOrderSurvivesSameSecond(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	// Events recorded in the same wall-clock second must still come back
	// newest first thanks to nanosecond timestamp precision.
	for i := 0; i < 10; i++ {
		trail.Record(ctx, Event{
			Category: CategorySession,
			Type:     fmt.Sprintf("event_%d", i),
			Success:  true,
		})
	}

	result, err := trail.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for i := 1; i < len(result.Events); i++ {
		if result.Events[i].Timestamp.After(result.Events[i-1].Timestamp) {
			t.Fatalf("events out of order at index %d", i)
		}
	}
	if result.Events[0].Type != "event_9" {
		t.Errorf("expected newest event first, got %s", result.Events[0].Type)
	}
}

type failingRepo struct{}

func (failingRepo) InsertEvent(context.Context, *Event) error { return errors.New("disk full") }
func (failingRepo) ListEvents(context.Context, Filter) (*QueryResult, error) {
	return nil, errors.New("disk full")
}
func (failingRepo) Summarize(context.Context, time.Time) (*Summary, error) {
	return nil, errors.New("disk full")
}
func (failingRepo) InsertLoginAttempt(context.Context, *LoginAttempt) error {
	return errors.New("disk full")
}
func (failingRepo) LoginStats(context.Context, time.Time, time.Time) (*LoginStats, error) {
	return nil, errors.New("disk full")
}
func (failingRepo) AccessStats(context.Context, time.Time) (*AccessStats, error) {
	return nil, errors.New("disk full")
}

func TestRecordSwallowsStorageFailure(t *testing.T) {
	trail := NewTrail(failingRepo{}, logging.Default(), nil)

	if ok := trail.Record(context.Background(), Event{Category: CategorySession, Type: "session_created"}); ok {
		t.Error("expected false when storage fails")
	}
	if ok := trail.RecordLoginAttempt(context.Background(), LoginAttempt{Identity: "a@b.c"}); ok {
		t.Error("expected false when storage fails")
	}
}

func TestSummarize(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	trail.Record(ctx, Event{Category: CategorySession, Type: "session_created", Success: true})
	trail.Record(ctx, Event{Category: CategorySession, Type: "hijack_detected", Success: false, RiskLevel: RiskHigh})
	trail.Record(ctx, Event{Category: CategoryAccess, Type: "access_granted", Success: true})

	summary, err := trail.Summarize(ctx, 7)
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if summary.TotalActions != 3 {
		t.Errorf("expected 3 actions, got %d", summary.TotalActions)
	}
	if summary.ByCategory[CategorySession] != 2 {
		t.Errorf("expected 2 session events, got %d", summary.ByCategory[CategorySession])
	}
	if summary.HighRiskCount != 1 {
		t.Errorf("expected 1 high risk event, got %d", summary.HighRiskCount)
	}
	if summary.FailedCount != 1 {
		t.Errorf("expected 1 failed event, got %d", summary.FailedCount)
	}
}

func TestViolations(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	trail.Record(ctx, Event{Category: CategorySession, Type: "session_created", Success: true})
	trail.Record(ctx, Event{Category: CategorySession, Type: "hijack_detected", Success: false, RiskLevel: RiskHigh})

	violations, err := trail.Violations(ctx, 10)
	if err != nil {
		t.Fatalf("violations failed: %v", err)
	}
	if len(violations) != 1 || violations[0].Type != "hijack_detected" {
		t.Errorf("expected only the hijack event, got %+v", violations)
	}
}

func TestLoginStatistics(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	trail.RecordLoginAttempt(ctx, LoginAttempt{Identity: "alice@example.com", IPAddress: "10.0.0.1", Success: true})
	trail.RecordLoginAttempt(ctx, LoginAttempt{Identity: "bob@example.com", IPAddress: "10.0.0.2", Success: false, FailureReason: "bad_password"})

	stats, err := trail.LoginStatistics(ctx, 7)
	if err != nil {
		t.Fatalf("login statistics failed: %v", err)
	}
	if stats.Attempts != 2 || stats.Successes != 1 || stats.Failures != 1 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.SuccessRate != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", stats.SuccessRate)
	}
	if stats.UniqueActors != 2 {
		t.Errorf("expected 2 unique actors, got %d", stats.UniqueActors)
	}
	if len(stats.SuspiciousBursts) != 0 {
		t.Errorf("expected no bursts, got %+v", stats.SuspiciousBursts)
	}
}

func TestLoginStatisticsDetectsBurst(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	// Four failures from one (identity, address) pair crosses the
	// threshold; three does not.
	for i := 0; i < 4; i++ {
		trail.RecordLoginAttempt(ctx, LoginAttempt{
			Identity:      "mallory@example.com",
			IPAddress:     "203.0.113.9",
			Success:       false,
			FailureReason: "bad_password",
		})
	}
	for i := 0; i < 3; i++ {
		trail.RecordLoginAttempt(ctx, LoginAttempt{
			Identity:      "trent@example.com",
			IPAddress:     "203.0.113.10",
			Success:       false,
			FailureReason: "bad_password",
		})
	}

	stats, err := trail.LoginStatistics(ctx, 7)
	if err != nil {
		t.Fatalf("login statistics failed: %v", err)
	}
	if len(stats.SuspiciousBursts) != 1 {
		t.Fatalf("expected 1 burst, got %d", len(stats.SuspiciousBursts))
	}
	burst := stats.SuspiciousBursts[0]
	if burst.Identity != "mallory@example.com" || burst.AttemptCount != 4 {
		t.Errorf("unexpected burst: %+v", burst)
	}
	if burst.LastAttempt.IsZero() {
		t.Error("expected last attempt timestamp")
	}
}

func TestBurstWindowSlidesWithClock(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		trail.RecordLoginAttempt(ctx, LoginAttempt{
			Identity:      "mallory@example.com",
			IPAddress:     "203.0.113.9",
			Success:       false,
			FailureReason: "bad_password",
		})
	}

	stats, err := trail.LoginStatistics(ctx, 7)
	if err != nil {
		t.Fatalf("login statistics failed: %v", err)
	}
	if len(stats.SuspiciousBursts) != 1 {
		t.Fatalf("expected 1 burst while attempts are fresh, got %d", len(stats.SuspiciousBursts))
	}

	// Two hours later the same failures are outside the trailing hour: no
	// burst, even though the 7-day window still counts them.
	trail.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	stats, err = trail.LoginStatistics(ctx, 7)
	if err != nil {
		t.Fatalf("login statistics failed: %v", err)
	}
	if stats.Failures != 4 {
		t.Errorf("expected 4 failures in window, got %d", stats.Failures)
	}
	if len(stats.SuspiciousBursts) != 0 {
		t.Errorf("expected no bursts after the window slid past, got %+v", stats.SuspiciousBursts)
	}
}

func TestQueryOrderDeterministicOnEqualTimestamps(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	// Pin the clock so every event carries the identical timestamp.
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trail.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		trail.Record(ctx, Event{Category: CategorySession, Type: "session_validated", Success: true})
	}

	first, err := trail.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	second, err := trail.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(first.Events) != 5 || len(second.Events) != 5 {
		t.Fatalf("expected 5 events per query, got %d and %d", len(first.Events), len(second.Events))
	}
	for i := range first.Events {
		if first.Events[i].ID != second.Events[i].ID {
			t.Fatalf("order not deterministic at index %d: %s vs %s",
				i, first.Events[i].ID, second.Events[i].ID)
		}
		if i > 0 && first.Events[i].ID > first.Events[i-1].ID {
			t.Fatalf("tiebreak not applied at index %d", i)
		}
	}
}

func TestAccessStatistics(t *testing.T) {
	trail, _ := testTrail(t)
	ctx := context.Background()

	trail.Record(ctx, Event{Category: CategoryAccess, Type: "access_granted", ResourceType: "user", Success: true})
	trail.Record(ctx, Event{Category: CategoryAccess, Type: "access_denied", ResourceType: "user", Success: false})
	trail.Record(ctx, Event{Category: CategoryAccess, Type: "access_denied", ResourceType: "audit_log", Success: false})
	// A non-access event must not leak into the aggregate.
	trail.Record(ctx, Event{Category: CategorySession, Type: "session_created", Success: true})

	stats, err := trail.AccessStatistics(ctx, 7)
	if err != nil {
		t.Fatalf("access statistics failed: %v", err)
	}
	if stats.Checks != 3 || stats.Granted != 1 || stats.Denied != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.DenialRate < 0.66 || stats.DenialRate > 0.67 {
		t.Errorf("expected denial rate ~2/3, got %f", stats.DenialRate)
	}
	if stats.DeniedByResource["user"] != 1 || stats.DeniedByResource["audit_log"] != 1 {
		t.Errorf("unexpected denial breakdown: %+v", stats.DeniedByResource)
	}
}

func TestLimitClamping(t *testing.T) {
	_, repo := testTrail(t)
	ctx := context.Background()

	result, err := repo.ListEvents(ctx, Filter{Limit: 10_000})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Limit != maxQueryLimit {
		t.Errorf("expected limit clamped to %d, got %d", maxQueryLimit, result.Limit)
	}

	result, err = repo.ListEvents(ctx, Filter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if result.Limit != defaultQueryLimit {
		t.Errorf("expected default limit %d, got %d", defaultQueryLimit, result.Limit)
	}
}
