package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
	"github.com/marlowe-systems/aegis-core/internal/user"
)

// tokenBytes is the entropy of an issued token: 32 bytes (256 bits),
// hex-encoded to 64 characters.
const tokenBytes = 32

// Store manages session lifecycle: issuance, validation, invalidation, and
// expiry. State transitions are strictly monotone (active to inactive), so
// a revoked or expired token can never be resurrected.
//
// Validation failures are sentinel errors the caller branches on; only
// storage failures propagate as hard errors, since a security decision must
// not default to allow when its store is unavailable.
type Store struct {
	repo      Repository
	users     user.Lookup
	trail     *audit.Trail
	logger    *logging.Logger
	timeout   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewStore creates a session store.
func NewStore(repo Repository, users user.Lookup, trail *audit.Trail, logger *logging.Logger, timeout, retention time.Duration) *Store {
	return &Store{
		repo:      repo,
		users:     users,
		trail:     trail,
		logger:    logger.With("component", "session"),
		timeout:   timeout,
		retention: retention,
		now:       time.Now,
	}
}

// Create issues a new session for userID with the given client fingerprint
// and returns the opaque token. The caller is responsible for having
// authenticated the user; Create rejects no inputs.
func (s *Store) Create(ctx context.Context, userID string, fp Fingerprint) (string, error) {
	fp = fp.Normalize()

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	now := s.now().UTC()
	sess := &Session{
		Token:          token,
		UserID:         userID,
		Fingerprint:    fp,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.timeout),
		Active:         true,
	}

	if err := s.repo.Insert(ctx, sess); err != nil {
		return "", err
	}

	s.trail.Record(ctx, audit.Event{
		ActorID:   userID,
		Category:  audit.CategorySession,
		Type:      "session_created",
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
		Success:   true,
	})

	return token, nil
}

// Validate resolves a token into an identity, or fails with one of the
// sentinel errors. Side effects by branch:
//
//   - ErrInvalidSession: none (unknown or already-inactive token).
//   - ErrExpiredSession: the row is deactivated with reason "expired".
//   - ErrHijackSuspected: the row is deactivated with reason
//     "hijack_detected" and a high-risk event is recorded.
//   - ErrUserInactive: the row is deactivated with reason "user_inactive".
//
// On success the session's last-activity timestamp is refreshed. Every
// branch, success included, records exactly one audit event; an IP-only
// fingerprint change additionally records a medium-risk observation but
// does not fail validation.
func (s *Store) Validate(ctx context.Context, token string, fp Fingerprint) (*Identity, error) {
	fp = fp.Normalize()
	now := s.now().UTC()

	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if sess == nil || !sess.Active {
		s.recordValidation(ctx, sess, fp, "session_invalid", "token unknown or session inactive", audit.RiskLow)
		return nil, ErrInvalidSession
	}

	if !now.Before(sess.ExpiresAt) {
		if _, err := s.repo.Deactivate(ctx, token, ReasonExpired); err != nil {
			return nil, err
		}
		s.recordValidation(ctx, sess, fp, "session_expired", "session passed expiry", audit.RiskLow)
		return nil, ErrExpiredSession
	}

	if IsHijack(sess.Fingerprint, fp) {
		if _, err := s.repo.Deactivate(ctx, token, ReasonHijackDetected); err != nil {
			return nil, err
		}
		details, _ := json.Marshal(map[string]string{
			"stored_user_agent":  sess.Fingerprint.UserAgent,
			"current_user_agent": fp.UserAgent,
		})
		s.recordValidation(ctx, sess, fp, "hijack_detected", string(details), audit.RiskHigh)
		return nil, ErrHijackSuspected
	}

	owner, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return nil, err
	}
	if owner == nil || !owner.IsActive() {
		if _, err := s.repo.Deactivate(ctx, token, ReasonUserInactive); err != nil {
			return nil, err
		}
		s.recordValidation(ctx, sess, fp, "user_inactive", "owning account not active", audit.RiskLow)
		return nil, ErrUserInactive
	}

	// An IP change alone is tolerated but observed.
	if fp.IPAddress != sess.Fingerprint.IPAddress {
		details, _ := json.Marshal(map[string]string{
			"stored_ip":  sess.Fingerprint.IPAddress,
			"current_ip": fp.IPAddress,
		})
		s.trail.Record(ctx, audit.Event{
			ActorID:   sess.UserID,
			ActorRole: string(owner.Role),
			Category:  audit.CategorySession,
			Type:      "ip_change",
			Details:   string(details),
			IPAddress: fp.IPAddress,
			UserAgent: fp.UserAgent,
			Success:   true,
			RiskLevel: audit.RiskMedium,
		})
	}

	if err := s.repo.Touch(ctx, token, now); err != nil {
		return nil, err
	}

	s.trail.Record(ctx, audit.Event{
		ActorID:   sess.UserID,
		ActorRole: string(owner.Role),
		Category:  audit.CategorySession,
		Type:      "session_validated",
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
		Success:   true,
	})

	return &Identity{
		UserID:     owner.ID,
		Role:       string(owner.Role),
		FirstName:  owner.FirstName,
		LastName:   owner.LastName,
		Email:      owner.Email,
		Department: owner.Department,
	}, nil
}

// Invalidate deactivates a session. It is idempotent: an unknown or
// already-inactive token reports false with no error.
func (s *Store) Invalidate(ctx context.Context, token, reason string) (bool, error) {
	if reason == "" {
		reason = ReasonLogout
	}

	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return false, err
	}

	changed, err := s.repo.Deactivate(ctx, token, reason)
	if err != nil {
		return false, err
	}

	if changed && sess != nil {
		s.trail.Record(ctx, audit.Event{
			ActorID:  sess.UserID,
			Category: audit.CategorySession,
			Type:     "session_invalidated",
			Details:  reason,
			Success:  true,
		})
	}
	return changed, nil
}

// InvalidateAll deactivates every active session owned by userID and
// returns the count affected.
func (s *Store) InvalidateAll(ctx context.Context, userID, reason string) (int, error) {
	if reason == "" {
		reason = ReasonLogoutAll
	}

	count, err := s.repo.DeactivateAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.trail.Record(ctx, audit.Event{
			ActorID:  userID,
			Category: audit.CategorySession,
			Type:     "sessions_invalidated",
			Details:  fmt.Sprintf("%d sessions deactivated (%s)", count, reason),
			Success:  true,
		})
	}
	return count, nil
}

// Owner returns the user ID a token belongs to, or "" for unknown tokens.
// Used by callers that need the ownership relation for an access decision
// before touching the session itself.
func (s *Store) Owner(ctx context.Context, token string) (string, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	return sess.UserID, nil
}

// ListActive returns summaries of a user's active sessions for self-service
// review.
func (s *Store) ListActive(ctx context.Context, userID string) ([]Summary, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

// Reap deactivates sessions past expiry and prunes rows older than the
// retention window. It is safe to interrupt between the two steps.
func (s *Store) Reap(ctx context.Context) error {
	now := s.now().UTC()

	expired, err := s.repo.DeactivateExpired(ctx, now)
	if err != nil {
		return err
	}

	pruned, err := s.repo.DeleteCreatedBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}

	if expired > 0 || pruned > 0 {
		s.logger.Info("session reap complete", "expired", expired, "pruned", pruned)
	}
	return nil
}

// recordValidation writes the single audit event a failed validation branch
// produces. sess may be nil when the token was never issued.
func (s *Store) recordValidation(ctx context.Context, sess *Session, fp Fingerprint, eventType, details string, risk audit.RiskLevel) {
	event := audit.Event{
		Category:  audit.CategorySession,
		Type:      eventType,
		Details:   details,
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
		Success:   false,
		RiskLevel: risk,
	}
	if sess != nil {
		event.ActorID = sess.UserID
	}
	s.trail.Record(ctx, event)
}
