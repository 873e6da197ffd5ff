package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/audit"
)

// handleAuditEvents returns a filtered, paginated page of audit events.
// Query parameters: actor_id, category, risk_level, from, to (RFC 3339),
// failed_only, limit, offset.
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		ActorID:   q.Get("actor_id"),
		Category:  q.Get("category"),
		RiskLevel: audit.RiskLevel(q.Get("risk_level")),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid from timestamp")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid to timestamp")
			return
		}
		filter.To = t
	}
	if v := q.Get("failed_only"); v == "true" || v == "1" {
		filter.FailedOnly = true
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	result, err := s.trail.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAuditSummary returns aggregate trail activity for a trailing window.
// Query parameter: window_days (default 7).
func (s *Server) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	windowDays, ok := windowDaysParam(w, r)
	if !ok {
		return
	}

	summary, err := s.trail.Summarize(r.Context(), windowDays)
	if err != nil {
		s.logger.Error("audit summary failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleLoginStats returns login-attempt aggregates with burst detection.
// Query parameter: window_days (default 7).
func (s *Server) handleLoginStats(w http.ResponseWriter, r *http.Request) {
	windowDays, ok := windowDaysParam(w, r)
	if !ok {
		return
	}

	stats, err := s.trail.LoginStatistics(r.Context(), windowDays)
	if err != nil {
		s.logger.Error("login statistics failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAccessStats returns aggregate authorization-decision counts.
// Query parameter: window_days (default 7).
func (s *Server) handleAccessStats(w http.ResponseWriter, r *http.Request) {
	windowDays, ok := windowDaysParam(w, r)
	if !ok {
		return
	}

	stats, err := s.trail.AccessStatistics(r.Context(), windowDays)
	if err != nil {
		s.logger.Error("access statistics failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleViolations returns the most recent high-risk events.
// Query parameter: limit (default 50).
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	events, err := s.trail.Violations(r.Context(), limit)
	if err != nil {
		s.logger.Error("violations query failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": events})
}

// windowDaysParam parses the window_days query parameter, writing a 400 and
// returning false when it is malformed.
func windowDaysParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("window_days")
	if v == "" {
		return 0, true // trail applies its default
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeBadRequest(w, "invalid window_days")
		return 0, false
	}
	return n, true
}
