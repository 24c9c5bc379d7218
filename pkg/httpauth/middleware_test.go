package httpauth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ridgeline-health/dispense/pkg/authz"
)

var testSecret = []byte("test-signing-secret")

func signTestToken(t *testing.T, sub, pharmacyID string, role authz.Role, expiry time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role:       role,
		PharmacyID: pharmacyID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestMiddlewareValidTokenInjectsPrincipal(t *testing.T) {
	validator := NewValidator(testSecret)
	var capturedOK bool
	var capturedRole authz.Role

	handler := Middleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		capturedOK = ok
		capturedRole = p.Role
		w.WriteHeader(http.StatusOK)
	}))

	token := signTestToken(t, "pharmacist-1", "ph_1", authz.RoleNurse, time.Now().Add(time.Hour))
	req := httptest.NewRequest("GET", "/api/fills", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !capturedOK {
		t.Fatal("expected principal in context")
	}
	if capturedRole != authz.RoleNurse {
		t.Fatalf("role = %q, want NURSE", capturedRole)
	}
}

func TestMiddlewareExpiredTokenRejected(t *testing.T) {
	validator := NewValidator(testSecret)
	handler := Middleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := signTestToken(t, "pharmacist-1", "ph_1", authz.RoleNurse, time.Now().Add(-time.Hour))
	req := httptest.NewRequest("GET", "/api/fills", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewareMissingHeaderRejected(t *testing.T) {
	validator := NewValidator(testSecret)
	handler := Middleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/fills", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewareNilValidatorFailsClosed(t *testing.T) {
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/fills", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewarePublicPathBypassesAuth(t *testing.T) {
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
