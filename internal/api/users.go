package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/authz"
	"github.com/marlowe-systems/aegis-core/internal/session"
	"github.com/marlowe-systems/aegis-core/internal/user"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// createUserRequest is the payload for creating a user account.
type createUserRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// updateUserRequest is the payload for updating a user account. Pointer
// fields distinguish "not provided" from "set to empty".
type updateUserRequest struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Department *string `json:"department"`
	Role       *string `json:"role"`
	Status     *string `json:"status"`
}

// handleListUsers returns all user accounts. Reading others is a role
// question, so the check targets a record the actor does not own.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAction(w, r, authz.Resource{Type: authz.ResourceUser, OwnerID: "*"}, authz.ActionRead) {
		return
	}

	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("user list failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleCreateUser creates a user account. Creating accounts is modeled as
// an update to someone else's record: admin-only.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAction(w, r, authz.Resource{Type: authz.ResourceUser, OwnerID: "*"}, authz.ActionUpdate) {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.FirstName == "" || req.LastName == "" {
		writeBadRequest(w, "first_name, last_name and email are required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role != "" && !user.IsValidRole(user.Role(req.Role)) {
		writeBadRequest(w, "invalid role")
		return
	}

	hash, err := user.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	account := &user.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         user.Role(req.Role),
		Department:   req.Department,
	}

	if err := s.users.Create(r.Context(), account); err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "email already registered")
			return
		}
		s.logger.Error("user creation failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	s.recordUserChange(r, "user_created", account.ID, nil, account)
	writeJSON(w, http.StatusCreated, account)
}

// handleGetUser returns one user account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.authorizeAction(w, r, authz.Resource{Type: authz.ResourceUser, ID: id}, authz.ActionRead) {
		return
	}

	account, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleUpdateUser applies a partial update to a user account. Role and
// status changes are restricted to admins even on the actor's own record,
// since a self-service role escalation would defeat the permission table.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity := identityFrom(r.Context())

	if !s.authorizeAction(w, r, authz.Resource{Type: authz.ResourceUser, ID: id}, authz.ActionUpdate) {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if (req.Role != nil || req.Status != nil) && identity.Role != "admin" {
		writeForbidden(w, "role and status changes are admin-only")
		return
	}
	if req.Role != nil && !user.IsValidRole(user.Role(*req.Role)) {
		writeBadRequest(w, "invalid role")
		return
	}

	account, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	previous := *account

	if req.FirstName != nil {
		account.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		account.LastName = *req.LastName
	}
	if req.Department != nil {
		account.Department = *req.Department
	}
	if req.Role != nil {
		account.Role = user.Role(*req.Role)
	}
	if req.Status != nil {
		account.Status = user.Status(*req.Status)
	}

	if err := s.users.Update(r.Context(), account); err != nil {
		s.logger.Error("user update failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	// Deactivating an account kills its sessions immediately rather than
	// waiting for each one's next validation.
	if req.Status != nil && account.Status != user.StatusActive {
		if _, err := s.sessions.InvalidateAll(r.Context(), id, session.ReasonUserInactive); err != nil {
			s.logger.Error("session sweep after deactivation failed", "error", err)
		}
	}

	s.recordUserChange(r, "user_updated", id, &previous, account)
	writeJSON(w, http.StatusOK, account)
}

// handleDeleteUser removes a user account. The engine denies self-deletion
// for every role.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.authorizeAction(w, r, authz.Resource{Type: authz.ResourceUser, ID: id}, authz.ActionDelete) {
		return
	}

	account, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	// Sessions go first; the row deletion cascades over whatever remains.
	if _, err := s.sessions.InvalidateAll(r.Context(), id, session.ReasonAdminRevoked); err != nil {
		s.logger.Error("session sweep before deletion failed", "error", err)
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.logger.Error("user deletion failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	s.recordUserChange(r, "user_deleted", id, account, nil)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// recordUserChange writes a user-management audit event with before/after
// snapshots.
func (s *Server) recordUserChange(r *http.Request, eventType, targetID string, previous, current *user.User) {
	identity := identityFrom(r.Context())
	fp := clientFingerprint(r)

	event := audit.Event{
		ActorID:      identity.UserID,
		ActorRole:    identity.Role,
		Category:     audit.CategoryUserMgmt,
		Type:         eventType,
		ResourceType: authz.ResourceUser,
		ResourceID:   targetID,
		IPAddress:    fp.IPAddress,
		UserAgent:    fp.UserAgent,
		Success:      true,
	}
	if previous != nil {
		if blob, err := json.Marshal(previous); err == nil {
			event.PreviousValues = audit.Values(blob)
		}
	}
	if current != nil {
		if blob, err := json.Marshal(current); err == nil {
			event.NewValues = audit.Values(blob)
		}
	}

	s.trail.Record(r.Context(), event)
}
