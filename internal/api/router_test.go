package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ecrbeachresorts/portal/internal/api/handler"
	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// stubAuth accepts the tokens "owner-token" and "admin-token".
type stubAuth struct {
	ports.AuthService
}

func (stubAuth) VerifyToken(_ context.Context, token string) (*ports.SessionClaims, error) {
	switch token {
	case "owner-token":
		return &ports.SessionClaims{Subject: "ECO2547001", Role: domain.RoleOwner, TokenID: "1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	case "admin-token":
		return &ports.SessionClaims{Subject: domain.AdminID, Role: domain.RoleAdmin, TokenID: "2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return nil, domain.ErrSessionExpired
}

func (stubAuth) Login(context.Context, string, string) (*ports.Grant, error) {
	return nil, domain.ErrInvalidCredentials
}

type stubAdmin struct{}

func (stubAdmin) ListIdentities(_ context.Context, in ports.ListIdentitiesInput) (*ports.ListIdentitiesResult, error) {
	return &ports.ListIdentitiesResult{Page: 1, Limit: 20}, nil
}

func (stubAdmin) SetKYCStatus(_ context.Context, id string, status domain.KYCStatus) (*domain.Identity, error) {
	return nil, domain.ErrIdentityNotFound
}

func newTestRouter() http.Handler {
	return NewRouter(Dependencies{
		Auth:       stubAuth{},
		Admin:      stubAdmin{},
		Readiness:  map[string]handler.Pinger{},
		Log:        zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
}

func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	h := newTestRouter()

	cases := []struct {
		token string
		code  int
	}{
		{"", http.StatusUnauthorized},
		{"bogus", http.StatusUnauthorized},
		{"owner-token", http.StatusForbidden},
		{"admin-token", http.StatusOK},
	}
	for _, tc := range cases {
		rec := serve(h, http.MethodGet, "/v1/admin/identities", tc.token, "")
		if rec.Code != tc.code {
			t.Fatalf("token %q: expected %d, got %d (%s)", tc.token, tc.code, rec.Code, rec.Body.String())
		}
	}
}

func TestRouter_KYCUpdateNotFound(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodPatch, "/v1/admin/identities/ECO2547999/kyc", "admin-token", `{"kyc_status":"verified"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRouter_LoginFailureEnvelope(t *testing.T) {
	rec := serve(newTestRouter(), http.MethodPost, "/auth/login", "", `{"email":"x@x.com","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"invalid credentials"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter()
	for _, path := range []string{"/health", "/health/ready"} {
		if rec := serve(h, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
