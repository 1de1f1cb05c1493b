package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/malistore/api/internal/platform/requestctx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if _, ok := ctx.Deadline(); !ok {
		return nil, ErrTokenInvalid
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serveWithToken(t *testing.T, authn *Authenticator, header string, roles []string, next http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	authn.RequireFirebaseAuth(roles...)(next).ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuthBuildsIdentity(t *testing.T) {
	cases := []struct {
		name      string
		claims    map[string]any
		wantRoles []string
	}{
		{name: "customer", claims: map[string]any{"email": "ada@example.com", "email_verified": true}, wantRoles: []string{RoleUser}},
		{name: "role list", claims: map[string]any{"email": "ada@example.com", "role": []any{"ADMIN", "admin", 42}}, wantRoles: []string{RoleUser, RoleAdmin}},
		{name: "role string", claims: map[string]any{"email": "ada@example.com", "role": " Admin "}, wantRoles: []string{RoleUser, RoleAdmin}},
		{name: "admin flag", claims: map[string]any{"email": "ada@example.com", "admin": true}, wantRoles: []string{RoleUser, RoleAdmin}},
		{name: "admin flag false", claims: map[string]any{"email": "ada@example.com", "admin": false}, wantRoles: []string{RoleUser}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-123", Claims: tc.claims}}
			var got *Identity
			rr := serveWithToken(t, NewAuthenticator(verifier), "Bearer token-value", nil, func(w http.ResponseWriter, r *http.Request) {
				identity, ok := IdentityFromContext(r.Context())
				if !ok {
					t.Fatalf("expected identity in context")
				}
				if actor := requestctx.Actor(r.Context()); actor != "uid-123" {
					t.Fatalf("expected actor uid-123, got %q", actor)
				}
				got = identity
				w.WriteHeader(http.StatusNoContent)
			})

			if rr.Code != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", rr.Code)
			}
			if verifier.received != "token-value" {
				t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
			}
			if got.UID != "uid-123" || got.Email != "ada@example.com" {
				t.Fatalf("unexpected identity %#v", got)
			}
			if !slices.Equal(got.Roles, tc.wantRoles) {
				t.Fatalf("expected roles %v, got %v", tc.wantRoles, got.Roles)
			}
		})
	}
}

func TestRequireFirebaseAuthRejects(t *testing.T) {
	customer := &firebaseauth.Token{UID: "cust-1", Claims: map[string]any{"role": "user"}}
	cases := []struct {
		name       string
		verifier   TokenVerifier
		header     string
		roles      []string
		wantStatus int
		wantCode   string
	}{
		{name: "missing header", verifier: &stubTokenVerifier{token: customer}, wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "basic scheme", verifier: &stubTokenVerifier{token: customer}, header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "blank bearer", verifier: &stubTokenVerifier{token: customer}, header: "Bearer   ", wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "no verifier", header: "Bearer token", wantStatus: http.StatusUnauthorized, wantCode: "unauthenticated"},
		{name: "expired", verifier: &stubTokenVerifier{err: ErrTokenExpired}, header: "Bearer old", wantStatus: http.StatusUnauthorized, wantCode: "token_expired"},
		{name: "invalid", verifier: &stubTokenVerifier{err: ErrTokenInvalid}, header: "Bearer bad", wantStatus: http.StatusUnauthorized, wantCode: "invalid_token"},
		{name: "customer on admin route", verifier: &stubTokenVerifier{token: customer}, header: "Bearer token", roles: []string{RoleAdmin}, wantStatus: http.StatusForbidden, wantCode: "insufficient_role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveWithToken(t, NewAuthenticator(tc.verifier), tc.header, tc.roles, func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not run")
			})
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.wantCode {
				t.Fatalf("expected %s, got %s", tc.wantCode, code)
			}
		})
	}
}

func TestRequireFirebaseAuthCustomRoleClaim(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "staff-1", Claims: map[string]any{"malistore_role": "admin"}}}
	authn := NewAuthenticator(verifier, WithRoleClaim("malistore_role"))
	rr := serveWithToken(t, authn, "Bearer token", []string{RoleAdmin}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected admin via custom claim, got %d", rr.Code)
	}
}
