package rest_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kernelscript/ksc/internal/server/rest"
)

func generateRouterTestKey(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return priv, &priv.PublicKey
}

func validBearerToken(t *testing.T, priv *rsa.PrivateKey) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Subject:   "test",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

// TestRouter_HealthzNoAuth verifies /healthz is accessible without a JWT.
func TestRouter_HealthzNoAuth(t *testing.T) {
	_, pub := generateRouterTestKey(t)
	srv := rest.NewServer(&mockJobStore{}, &mockAuditLog{}, newMockCache(), &mockNotifier{})
	h := rest.NewRouter(srv, pub)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// TestRouter_APIRoutesRequireJWT verifies that all /api/v1/* routes return
// 401 when no Authorization header is present.
func TestRouter_APIRoutesRequireJWT(t *testing.T) {
	_, pub := generateRouterTestKey(t)
	srv := rest.NewServer(&mockJobStore{}, &mockAuditLog{}, newMockCache(), &mockNotifier{})
	h := rest.NewRouter(srv, pub)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/compile"},
		{http.MethodGet, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/audit?unit=xdp_drop&from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z"},
	}

	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("route %s %s: expected 401 without JWT, got %d", rt.method, rt.path, rec.Code)
		}
	}
}

// TestRouter_APIRoutesAccessibleWithJWT verifies that a valid JWT passes the
// middleware and the route reaches its handler.
func TestRouter_APIRoutesAccessibleWithJWT(t *testing.T) {
	priv, pub := generateRouterTestKey(t)
	srv := rest.NewServer(&mockJobStore{}, &mockAuditLog{}, newMockCache(), &mockNotifier{})
	h := rest.NewRouter(srv, pub)

	bearer := validBearerToken(t, priv)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid JWT, got %d; body: %s", rec.Code, rec.Body)
	}
}

func TestRouter_NilPubKeyDisablesAuth(t *testing.T) {
	srv := rest.NewServer(&mockJobStore{}, &mockAuditLog{}, newMockCache(), &mockNotifier{})
	h := rest.NewRouter(srv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", rec.Code)
	}
}
