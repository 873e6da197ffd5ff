package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marlowe-systems/aegis-core/internal/authz"
	"github.com/marlowe-systems/aegis-core/internal/session"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// ctxKeyRequestID is the context key for the request ID.
	ctxKeyRequestID contextKey = "request_id"

	// ctxKeyIdentity is the context key for the validated session identity.
	ctxKeyIdentity contextKey = "identity"

	// ctxKeyToken is the context key for the presented session token.
	ctxKeyToken contextKey = "token"
)

// requestIDMiddleware generates a unique request ID for each request.
// If the client sends an X-Request-ID header, it is used; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", r.Context().Value(ctxKeyRequestID),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware limits the size of incoming request bodies.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware resolves the bearer token into an identity, rejecting
// the request when validation fails. The distinct validation failures all
// map to 401 so a probing client learns nothing beyond "re-authenticate",
// while the audit trail keeps the real reason.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeUnauthorized(w, "missing session token")
			return
		}

		identity, err := s.sessions.Validate(r.Context(), token, clientFingerprint(r))
		switch {
		case err == nil:
			ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
			ctx = context.WithValue(ctx, ctxKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		case errors.Is(err, session.ErrInvalidSession),
			errors.Is(err, session.ErrExpiredSession),
			errors.Is(err, session.ErrHijackSuspected),
			errors.Is(err, session.ErrUserInactive):
			writeUnauthorized(w, "re-authentication required")
		default:
			s.logger.Error("session validation failed", "error", err)
			writeInternalError(w, "service unavailable")
		}
	})
}

// requireAccess builds a route interceptor that authorizes the resolved
// identity for a fixed resource type and action before the handler runs.
// Every decision, granted or denied, goes to the audit trail.
func (s *Server) requireAccess(resourceType, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFrom(r.Context())
			if identity == nil {
				writeUnauthorized(w, "missing session token")
				return
			}

			decision, err := s.engine.Authorize(r.Context(),
				authz.Actor{ID: identity.UserID, Role: identity.Role},
				authz.Resource{Type: resourceType},
				action)
			if err != nil {
				s.logger.Error("authorization failed", "error", err)
				writeInternalError(w, "service unavailable")
				return
			}

			s.recordDecision(r, decision)

			if !decision.Granted {
				writeForbidden(w, decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identityFrom returns the validated identity stored by sessionMiddleware,
// or nil outside the protected route group.
func identityFrom(ctx context.Context) *session.Identity {
	identity, _ := ctx.Value(ctxKeyIdentity).(*session.Identity)
	return identity
}

// tokenFrom returns the session token the request presented.
func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxKeyToken).(string)
	return token
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// clientFingerprint captures the request's client context. Absent values
// become "unknown" downstream.
func clientFingerprint(r *http.Request) session.Fingerprint {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// First hop is the client when behind a trusted proxy.
		if idx := strings.IndexByte(ip, ','); idx >= 0 {
			ip = ip[:idx]
		}
		ip = strings.TrimSpace(ip)
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}

	return session.Fingerprint{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestIDBytes is the number of random bytes used for request IDs.
const requestIDBytes = 8

// generateRequestID creates a random hex request ID.
func generateRequestID() string {
	b := make([]byte, requestIDBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
