// Package authn validates bearer tokens on incoming requests. Issuing
// tokens (login, refresh) is an external collaborator's concern per
// spec §1 Non-goals; this package only consumes them, grounded on the
// teacher's wrapWithAuth/extractToken/JWTValidator shape adapted from a
// token-set-or-validator OR to a single JWT validator plus a role claim.
package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coderTtxi12/loan-system/internal/domain"
)

type ctxKey string

const (
	ctxUserIDKey ctxKey = "authn.user_id"
	ctxRoleKey   ctxKey = "authn.role"
)

// Claims is the bearer token's payload: a user id and role, matching
// the fields User.CanApproveLoans/IsAdmin need to gate a request.
type Claims struct {
	jwt.RegisteredClaims
	UserID string          `json:"user_id"`
	Role   domain.UserRole `json:"role"`
}

// Validator verifies a bearer token's signature and expiry.
type Validator struct {
	secret []byte
}

// New builds a Validator for HS256-signed tokens using secret.
func New(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// Validate parses and verifies token, returning its claims.
func (v *Validator) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("authn: invalid token")
	}
	return claims, nil
}

// publicPaths never require a bearer token.
var publicPaths = map[string]bool{
	"/health":                 true,
	"/health/ready":           true,
	"/loans/ws":               true,
	"/metrics":                true,
	"/api/v1/webhooks/events": true,
}

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/webhooks/banking/")
}

// Middleware authenticates every request except publicPaths, stashing
// the resolved user id and role on the request context.
func Middleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w)
				return
			}
			claims, err := v.Validate(token)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, ctxRoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
}

// RoleFromContext returns the caller's role, or "" if unauthenticated.
func RoleFromContext(ctx context.Context) domain.UserRole {
	role, _ := ctx.Value(ctxRoleKey).(domain.UserRole)
	return role
}

// UserIDFromContext returns the caller's user id string, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserIDKey).(string)
	return id
}

// CanApprove reports whether ctx's caller may drive a loan to
// APPROVED/REJECTED, per spec §6's role gate on PATCH /loans/{id}/status.
func CanApprove(ctx context.Context) bool {
	user := domain.User{Role: RoleFromContext(ctx)}
	return user.CanApproveLoans()
}
