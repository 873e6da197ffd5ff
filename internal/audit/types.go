package audit

import (
	"encoding/json"
	"time"
)

// timeLayout is the storage format for event timestamps. Fixed-width
// nanosecond precision keeps lexicographic order equal to chronological
// order, which preserves insertion order for events within the same second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RiskLevel is a coarse severity tag attached to audit events so that
// high-signal entries can be reviewed first.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Event categories group related event types for filtering and summaries.
const (
	CategorySession  = "session"
	CategoryAccess   = "access"
	CategoryAuth     = "auth"
	CategoryUserMgmt = "user_mgmt"
)

// Values is an opaque JSON blob capturing resource state before or after a
// change. It is stored and returned verbatim; the trail never interprets it.
type Values json.RawMessage

// MarshalJSON returns the blob unchanged, or null when empty.
func (v Values) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON stores the raw bytes without interpreting them.
func (v *Values) UnmarshalJSON(data []byte) error {
	*v = append((*v)[0:0], data...)
	return nil
}

// Event is one immutable audit fact. Events are created once and never
// updated or deleted by the application.
type Event struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actor_id,omitempty"`
	ActorRole      string    `json:"actor_role,omitempty"`
	Category       string    `json:"category"`
	Type           string    `json:"type"`
	Details        string    `json:"details,omitempty"`
	ResourceType   string    `json:"resource_type,omitempty"`
	ResourceID     string    `json:"resource_id,omitempty"`
	PreviousValues Values    `json:"previous_values,omitempty"`
	NewValues      Values    `json:"new_values,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Timestamp      time.Time `json:"timestamp"`
}

// Filter controls which audit events a query returns.
// Zero-valued fields are not applied.
type Filter struct {
	ActorID    string
	Category   string
	RiskLevel  RiskLevel
	From       time.Time
	To         time.Time
	FailedOnly bool
	Limit      int // default 50, max 200
	Offset     int // pagination offset
}

// QueryResult contains one page of matching events plus the total count of
// the filtered set. TotalCount is independent of Limit/Offset so pagination
// metadata always reflects the filter, not the page.
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

// Summary aggregates trail activity over a trailing window.
type Summary struct {
	TotalActions  int            `json:"total_actions"`
	ByCategory    map[string]int `json:"by_category"`
	HighRiskCount int            `json:"high_risk_count"`
	FailedCount   int            `json:"failed_count"`
}

// AccessStats aggregates authorization decisions over a trailing window:
// how often access was checked, how often it was denied, and which resource
// types attract the denials.
type AccessStats struct {
	Checks           int            `json:"checks"`
	Granted          int            `json:"granted"`
	Denied           int            `json:"denied"`
	DenialRate       float64        `json:"denial_rate"`
	DeniedByResource map[string]int `json:"denied_by_resource"`
}

// LoginAttempt is one recorded authentication attempt, successful or not.
type LoginAttempt struct {
	ID            string    `json:"id"`
	Identity      string    `json:"identity"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Burst is a cluster of failed login attempts from one (identity, address)
// pair inside the trailing burst window. Computed on demand, never stored.
type Burst struct {
	Identity     string    `json:"identity"`
	IPAddress    string    `json:"ip_address"`
	AttemptCount int       `json:"attempt_count"`
	LastAttempt  time.Time `json:"last_attempt"`
}

// LoginStats aggregates login attempts over a trailing window.
type LoginStats struct {
	Attempts         int     `json:"attempts"`
	Successes        int     `json:"successes"`
	Failures         int     `json:"failures"`
	SuccessRate      float64 `json:"success_rate"`
	UniqueActors     int     `json:"unique_actors"`
	SuspiciousBursts []Burst `json:"suspicious_bursts"`
}
