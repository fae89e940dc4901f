package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(AuthConfig{
		Enabled:        true,
		HMACSecret:     testSecret,
		Issuer:         "stakelend",
		Audience:       "lendingd",
		OptionalPaths:  []string{"/v1/protocol"},
		AllowAnonymous: true,
	}, nil)
}

func TestAuthenticatorAcceptsValidToken(t *testing.T) {
	auth := newTestAuthenticator()
	var subject string
	handler := auth.Middleware("lending:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, jwt.MapClaims{
		"iss":   "stakelend",
		"aud":   "lendingd",
		"sub":   "operator",
		"scope": "lending:write lending:read",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if subject != "operator" {
		t.Fatalf("expected subject operator, got %q", subject)
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	auth := newTestAuthenticator()
	handler := auth.Middleware("lending:write")(okHandler())

	cases := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", status: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + signToken(t, jwt.MapClaims{
			"iss": "other", "aud": "lendingd", "scope": "lending:write",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, jwt.MapClaims{
			"iss": "stakelend", "aud": "lendingd", "scope": "lending:write",
			"exp": time.Now().Add(-time.Hour).Unix(),
		}), status: http.StatusUnauthorized},
		{name: "missing scope", header: "Bearer " + signToken(t, jwt.MapClaims{
			"iss": "stakelend", "aud": []interface{}{"lendingd"}, "scope": "lending:read",
			"exp": time.Now().Add(time.Hour).Unix(),
		}), status: http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, res.Code)
		}
	}
}

func TestAuthenticatorAllowsAnonymousOptionalPaths(t *testing.T) {
	handler := newTestAuthenticator().Middleware()(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/protocol", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected anonymous read to pass, got %d", res.Code)
	}
}

func TestAuthenticatorDisabledPassesThrough(t *testing.T) {
	handler := NewAuthenticator(AuthConfig{}, nil).Middleware("lending:write")(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/tx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected disabled auth to pass, got %d", res.Code)
	}
}

func TestRequestIDs(t *testing.T) {
	var seen string
	handler := RequestIDs(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || res.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated id to be echoed, got %q / %q", seen, res.Header().Get(RequestIDHeader))
	}

	const inbound = "3f8e2a4c-1d2b-4c5e-9f6a-7b8c9d0e1f2a"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, inbound)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != inbound {
		t.Fatalf("expected inbound id to be kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "not a uuid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not a uuid" {
		t.Fatalf("expected malformed id to be replaced")
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/tx", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/protocol", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected disallowed origin to get no header, got %q", got)
	}
}
