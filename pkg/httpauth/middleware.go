// Package httpauth validates the bearer JWTs the engine's HTTP surface
// requires on every request and turns their claims into an authz.Principal,
// per spec.md §4.8's RBAC requirement. It fails closed: a request with no
// token, an invalid token, or a validator that was never configured is
// rejected, never silently treated as anonymous.
package httpauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ridgeline-health/dispense/pkg/authz"
)

// Claims are the JWT claims the dispensing engine's API expects: the
// caller's role and the pharmacy they are scoped to, layered on the
// standard registered claims (sub, exp, iat).
type Claims struct {
	jwt.RegisteredClaims
	Role       authz.Role `json:"role"`
	PharmacyID string     `json:"pharmacy_id"`
}

// Validator validates bearer tokens signed with a shared HMAC secret.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator. A nil/empty secret makes Validate
// always fail, so a misconfigured deployment fails closed rather than
// accepting unsigned tokens.
func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

// Validate parses and verifies tokenStr, returning its claims.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("httpauth: validator has no signing secret configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("httpauth: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("httpauth: invalid token")
	}
	return claims, nil
}

type principalContextKey struct{}
type pharmacyContextKey struct{}

// WithPrincipal returns a context carrying principal, for tests and
// internal call paths that bypass the HTTP middleware.
func WithPrincipal(ctx context.Context, principal authz.Principal, pharmacyID string) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, principal)
	return context.WithValue(ctx, pharmacyContextKey{}, pharmacyID)
}

// PrincipalFromContext extracts the Principal a middleware (or test) placed
// on ctx.
func PrincipalFromContext(ctx context.Context) (authz.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(authz.Principal)
	return p, ok
}

// PharmacyFromContext extracts the pharmacy ID the caller's token was
// scoped to.
func PharmacyFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(pharmacyContextKey{}).(string)
	return id, ok
}

// publicPaths never require a bearer token.
var publicPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
}

func isPublicPath(path string) bool {
	return publicPaths[path]
}

// writeUnauthorized writes a minimal 401 JSON body; callers that want a
// richer error envelope wrap this middleware with their own handler.
func writeUnauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"not_authorized","reason":%q}`, reason)
}

// Middleware builds JWT-authenticating middleware. A nil validator rejects
// every non-public request, matching the teacher's fail-closed posture for
// an unconfigured auth layer.
func Middleware(validator *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "missing Authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeUnauthorized(w, "expected 'Bearer <token>'")
				return
			}

			if validator == nil {
				writeUnauthorized(w, "authentication not configured")
				return
			}
			claims, err := validator.Validate(parts[1])
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "token subject is required")
				return
			}
			if claims.PharmacyID == "" {
				writeUnauthorized(w, "token pharmacy binding is required")
				return
			}

			principal := authz.Principal{ID: claims.Subject, Role: claims.Role}
			ctx := WithPrincipal(r.Context(), principal, claims.PharmacyID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
