package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/authz"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/config"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/database"
	"github.com/marlowe-systems/aegis-core/internal/infrastructure/logging"
	"github.com/marlowe-systems/aegis-core/internal/session"
	"github.com/marlowe-systems/aegis-core/internal/user"
	_ "github.com/marlowe-systems/aegis-core/migrations"
)

const testUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// testServer builds a full server on a temp-file SQLite database with one
// admin and one employee account.
func testServer(t *testing.T) http.Handler {
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

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	users := user.NewRepository(db.DB)
	for _, account := range []*user.User{
		{FirstName: "Alice", LastName: "Admin", Email: "alice@example.com", Role: user.RoleAdmin},
		{FirstName: "Eve", LastName: "Employee", Email: "eve@example.com", Role: user.RoleEmployee},
	} {
		hash, err := user.HashPassword("correct horse battery staple")
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		account.PasswordHash = hash
		if err := users.Create(ctx, account); err != nil {
			t.Fatalf("failed to create test user: %v", err)
		}
	}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	trail := audit.NewTrail(audit.NewSQLiteRepository(db), logger, nil)
	sessions := session.NewStore(session.NewSQLiteRepository(db), users, trail, logger, time.Hour, 30*24*time.Hour)
	engine := authz.NewEngine(users)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:   logger,
		Sessions: sessions,
		Engine:   engine,
		Trail:    trail,
		Users:    users,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv.buildRouter()
}

// doJSON performs a request with an optional bearer token and JSON body.
func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUA)
	req.RemoteAddr = "10.0.0.1:54321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// login authenticates and returns the session token.
func login(t *testing.T, handler http.Handler, email string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "correct horse battery staple",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return resp.Token
}

func TestHealthEndpoint(t *testing.T) {
	handler := testServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	handler := testServer(t)
	token := login(t, handler, "eve@example.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var identity session.Identity
	if err := json.Unmarshal(rec.Body.Bytes(), &identity); err != nil {
		t.Fatalf("failed to decode identity: %v", err)
	}
	if identity.Email != "eve@example.com" || identity.Role != "employee" {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestLoginBadPassword(t *testing.T) {
	handler := testServer(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "eve@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	handler := testServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	handler := testServer(t)
	token := login(t, handler, "eve@example.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestAuditIsAdminOnly(t *testing.T) {
	handler := testServer(t)

	employee := login(t, handler, "eve@example.com")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit/events", employee, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", rec.Code)
	}

	admin := login(t, handler, "alice@example.com")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/audit/events", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d %s", rec.Code, rec.Body.String())
	}

	var result audit.QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode audit result: %v", err)
	}
	// Both logins produced session events, and the denied employee access
	// produced an access event.
	if result.TotalCount == 0 {
		t.Error("expected recorded events in the trail")
	}
}

func TestLoginFailuresWithoutUserAgentFeedBurstDetection(t *testing.T) {
	handler := testServer(t)

	// Four bad-password attempts from a client that sends no User-Agent
	// header. Each must still land in login_attempts (as "unknown"), or
	// the burst heuristic can be evaded by omitting the header.
	for i := 0; i < 4; i++ {
		payload, err := json.Marshal(map[string]string{
			"email":    "eve@example.com",
			"password": "wrong",
		})
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:40000"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	}

	admin := login(t, handler, "alice@example.com")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit/login-stats", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var stats audit.LoginStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode login stats: %v", err)
	}
	if stats.Failures != 4 {
		t.Errorf("expected 4 recorded failures, got %d", stats.Failures)
	}
	if len(stats.SuspiciousBursts) != 1 {
		t.Fatalf("expected 1 burst, got %d", len(stats.SuspiciousBursts))
	}
	if burst := stats.SuspiciousBursts[0]; burst.Identity != "eve@example.com" || burst.AttemptCount != 4 {
		t.Errorf("unexpected burst: %+v", burst)
	}
}

func TestAuthorizeEndpoint(t *testing.T) {
	handler := testServer(t)
	employee := login(t, handler, "eve@example.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/authorize", employee, map[string]any{
		"resource": map[string]string{"type": "audit_log"},
		"action":   "read",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var decision authz.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("failed to decode decision: %v", err)
	}
	if decision.Granted {
		t.Error("expected employee audit read denied")
	}
	if decision.Reason == "" {
		t.Error("expected a reason on the decision")
	}
}

func TestAccessStatsEndpoint(t *testing.T) {
	handler := testServer(t)

	// One denied check from the employee, then the admin's own granted
	// check on the stats route itself.
	employee := login(t, handler, "eve@example.com")
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit/events", employee, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", rec.Code)
	}

	admin := login(t, handler, "alice@example.com")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit/access-stats", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var stats audit.AccessStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode access stats: %v", err)
	}
	if stats.Denied != 1 {
		t.Errorf("expected 1 denial, got %d", stats.Denied)
	}
	if stats.Granted < 1 {
		t.Errorf("expected at least the admin's own granted check, got %d", stats.Granted)
	}
	if stats.DeniedByResource["audit_log"] != 1 {
		t.Errorf("unexpected denial breakdown: %+v", stats.DeniedByResource)
	}
}

func TestUserAccessRules(t *testing.T) {
	handler := testServer(t)
	employee := login(t, handler, "eve@example.com")
	admin := login(t, handler, "alice@example.com")

	// Employee cannot list users; admin can.
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/", employee, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for employee list, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin list, got %d", rec.Code)
	}

	var listResp struct {
		Users []user.User `json:"users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("failed to decode user list: %v", err)
	}

	var adminID, employeeID string
	for _, u := range listResp.Users {
		switch u.Email {
		case "alice@example.com":
			adminID = u.ID
		case "eve@example.com":
			employeeID = u.ID
		}
	}

	// Employee reads own record but not the admin's.
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/"+employeeID, employee, nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for own record, got %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/users/"+adminID, employee, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for other record, got %d", rec.Code)
	}

	// Self-deletion is denied even for the admin.
	if rec := doJSON(t, handler, http.MethodDelete, "/api/v1/users/"+adminID, admin, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for self-deletion, got %d", rec.Code)
	}

	// Admin deletes the employee; the employee's session dies with the
	// account.
	if rec := doJSON(t, handler, http.MethodDelete, "/api/v1/users/"+employeeID, admin, nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for admin delete, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", employee, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user's session, got %d", rec.Code)
	}
}

func TestSessionReview(t *testing.T) {
	handler := testServer(t)
	employee := login(t, handler, "eve@example.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sessions/", employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Sessions []session.Summary `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode sessions: %v", err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(resp.Sessions))
	}

	// Revoking the presented session ends it.
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sessions/"+resp.Sessions[0].Token, employee, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/me", employee, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after revocation, got %d", rec.Code)
	}
}
