package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/user"
)

// loginRequest is the login endpoint payload.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is returned on successful authentication.
type loginResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// handleLogin authenticates credentials and issues a session. All failure
// modes return the same 401 so the endpoint does not leak which part of the
// credentials was wrong; the recorded attempt keeps the distinction.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	ctx := r.Context()
	// Absent client context becomes "unknown" here, not downstream: the
	// login_attempts table rejects empty values, and a dropped failed
	// attempt would blind the burst heuristic to clients that simply omit
	// the User-Agent header.
	fp := clientFingerprint(r).Normalize()

	account, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		s.logger.Error("login lookup failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	failureReason := ""
	switch {
	case account == nil:
		failureReason = "unknown_identity"
	case !account.IsActive():
		failureReason = "account_inactive"
	default:
		ok, err := user.VerifyPassword(req.Password, account.PasswordHash)
		if err != nil {
			s.logger.Error("password verification failed", "error", err)
			writeInternalError(w, "service unavailable")
			return
		}
		if !ok {
			failureReason = "bad_password"
		}
	}

	if failureReason != "" {
		s.trail.RecordLoginAttempt(ctx, audit.LoginAttempt{
			Identity:      req.Email,
			IPAddress:     fp.IPAddress,
			UserAgent:     fp.UserAgent,
			Success:       false,
			FailureReason: failureReason,
		})
		s.trail.Record(ctx, audit.Event{
			Category:     audit.CategoryAuth,
			Type:         "login_failed",
			Details:      failureReason,
			IPAddress:    fp.IPAddress,
			UserAgent:    fp.UserAgent,
			Success:      false,
			ErrorMessage: failureReason,
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	token, err := s.sessions.Create(ctx, account.ID, fp)
	if err != nil {
		s.logger.Error("session creation failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	s.trail.RecordLoginAttempt(ctx, audit.LoginAttempt{
		Identity:  req.Email,
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
		Success:   true,
	})

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: account})
}

// handleLogout ends the presented session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	changed, err := s.sessions.Invalidate(r.Context(), tokenFrom(r.Context()), "")
	if err != nil {
		s.logger.Error("logout failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": changed})
}

// handleLogoutAll ends every active session the actor owns, the presented
// one included.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	count, err := s.sessions.InvalidateAll(r.Context(), identity.UserID, "")
	if err != nil {
		s.logger.Error("logout all failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions_ended": count})
}

// handleMe returns the resolved identity for the presented session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()))
}
