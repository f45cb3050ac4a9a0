package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

const (
	// ctxKeyRequestID is the context key for the request ID.
	ctxKeyRequestID contextKey = "request_id"
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
				writeInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", joinOrDefault(s.cfg.CORS.AllowedMethods, "GET, POST, PUT, PATCH, DELETE, OPTIONS"))
			w.Header().Set("Access-Control-Allow-Headers", joinOrDefault(s.cfg.CORS.AllowedHeaders, "Authorization, Content-Type, X-Request-ID, X-Device"))
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// bodySizeLimitMiddleware limits the size of incoming request bodies to prevent
// denial-of-service attacks via oversized payloads.
func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// gatewayMiddleware authenticates the bearer token and authorizes the caller
// against the registered resource catalog. It runs on every protected route,
// reading the current role assignments and grants from storage so that a
// revocation takes effect on the caller's next request. Failures are opaque:
// the client learns only whether the problem is who they are (401) or what
// they may do (403).
func (s *Server) gatewayMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, "No autenticado")
			return
		}

		userID, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeUnauthorized(w, "Token expirado")
				return
			}
			writeUnauthorized(w, "No autenticado")
			return
		}

		user, err := s.users.FindActiveByID(r.Context(), userID)
		if err != nil {
			writeUnauthorized(w, "Usuario no encontrado o inactivo")
			return
		}

		sig := s.resolveSignature(r)
		identity, err := auth.Authorize(r.Context(), user, sig, s.perms)
		if err != nil {
			var denial *auth.ForbiddenError
			if errors.As(err, &denial) {
				s.auditDenial(r, user, denial)
				writeForbidden(w, denial)
				return
			}
			s.logger.Error("authorization failed",
				"error", err,
				"user_id", user.ID,
				"resource", sig.String(),
				"request_id", r.Context().Value(ctxKeyRequestID),
			)
			writeInternalError(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// resolveSignature derives the catalog signature for the request: the route
// template when the router knows one, the concrete path otherwise. Matching
// runs on a scratch routing context because the live one only carries the
// patterns matched so far, not the full route.
func (s *Server) resolveSignature(r *http.Request) auth.Signature {
	rctx := chi.NewRouteContext()
	if s.mux.Match(rctx, r.Method, r.URL.Path) {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return auth.NewSignature(r.Method, chiPatternToTemplate(pattern))
		}
	}
	return auth.NewSignature(r.Method, r.URL.Path)
}

// chiPatternToTemplate rewrites router placeholders ("/api/rol/{id}") into
// the colon form the resource catalog stores ("/api/rol/:id").
func chiPatternToTemplate(pattern string) string {
	var b strings.Builder
	for _, segment := range strings.Split(pattern, "/") {
		if segment == "" {
			continue
		}
		b.WriteByte('/')
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			b.WriteByte(':')
			b.WriteString(segment[1 : len(segment)-1])
		} else {
			b.WriteString(segment)
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// auditDenial records a denied request. Failures are logged, never surfaced.
func (s *Server) auditDenial(r *http.Request, user *auth.User, denial *auth.ForbiddenError) {
	if s.audit == nil {
		return
	}
	entry := audit.NewEntry(audit.ActionDenied, user.ID, user.Username, denial.Resource, map[string]any{
		"reason": denial.Reason,
		"roles":  denial.Roles,
	})
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "error", err, "action", audit.ActionDenied)
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// isAllowedOrigin checks if the origin is in the allowed list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
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

// joinOrDefault joins a string slice with ", " or returns the default if empty.
func joinOrDefault(values []string, defaultVal string) string {
	if len(values) == 0 {
		return defaultVal
	}
	result := values[0]
	for _, v := range values[1:] {
		result += ", " + v
	}
	return result
}
