package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
)

// MetricsSink receives a copy of each recorded event for operational
// dashboards. Implementations must not block; failures are theirs to handle.
type MetricsSink interface {
	WriteAuditEvent(category string, risk RiskLevel, success bool)
}

// Trail records and queries audit events. Recording never fails the calling
// operation: storage errors are reported on the operational log and to the
// caller as a boolean, and the business action proceeds either way.
type Trail struct {
	repo    Repository
	logger  *logging.Logger
	metrics MetricsSink // nil when metrics are disabled
	now     func() time.Time
}

// NewTrail creates an audit trail. metrics may be nil.
func NewTrail(repo Repository, logger *logging.Logger, metrics MetricsSink) *Trail {
	return &Trail{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Record stores one audit event and reports whether storage succeeded.
// A false return means the event was lost; the caller's operation is not
// affected. ID and timestamp are assigned here, risk defaults to low.
func (t *Trail) Record(ctx context.Context, event Event) bool {
	event.ID = "evt-" + uuid.NewString()[:8]
	event.Timestamp = t.now().UTC()
	if event.RiskLevel == "" {
		event.RiskLevel = RiskLow
	}

	if err := t.repo.InsertEvent(ctx, &event); err != nil {
		t.logger.Error("audit event dropped",
			"error", err,
			"category", event.Category,
			"type", event.Type,
			"actor_id", event.ActorID)
		return false
	}

	if t.metrics != nil {
		t.metrics.WriteAuditEvent(event.Category, event.RiskLevel, event.Success)
	}
	return true
}

// Query returns a page of events matching the filter plus the total count
// of the filtered set.
func (t *Trail) Query(ctx context.Context, filter Filter) (*QueryResult, error) {
	return t.repo.ListEvents(ctx, filter)
}

// Violations returns the most recent high-risk events, newest first.
func (t *Trail) Violations(ctx context.Context, limit int) ([]Event, error) {
	result, err := t.repo.ListEvents(ctx, Filter{RiskLevel: RiskHigh, Limit: limit})
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

// Summarize aggregates trail activity over the trailing windowDays days.
// A non-positive window defaults to 7 days.
func (t *Trail) Summarize(ctx context.Context, windowDays int) (*Summary, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := t.now().UTC().AddDate(0, 0, -windowDays)
	return t.repo.Summarize(ctx, since)
}

// RecordLoginAttempt stores one authentication attempt. Like Record, a
// storage failure is logged and reported as false, never propagated.
func (t *Trail) RecordLoginAttempt(ctx context.Context, attempt LoginAttempt) bool {
	attempt.ID = "att-" + uuid.NewString()[:8]
	attempt.Timestamp = t.now().UTC()

	if err := t.repo.InsertLoginAttempt(ctx, &attempt); err != nil {
		t.logger.Error("login attempt record dropped",
			"error", err,
			"identity", attempt.Identity)
		return false
	}
	return true
}

// LoginStatistics aggregates login attempts over the trailing windowDays
// days. A non-positive window defaults to 7 days. Burst detection always
// looks at the trailing hour, whatever window was requested.
func (t *Trail) LoginStatistics(ctx context.Context, windowDays int) (*LoginStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	now := t.now().UTC()
	return t.repo.LoginStats(ctx, now.AddDate(0, 0, -windowDays), now.Add(-burstWindow))
}

// AccessStatistics aggregates authorization decisions over the trailing
// windowDays days. A non-positive window defaults to 7 days.
func (t *Trail) AccessStatistics(ctx context.Context, windowDays int) (*AccessStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := t.now().UTC().AddDate(0, 0, -windowDays)
	return t.repo.AccessStats(ctx, since)
}
