package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"":                                            "/",
		"/api/v1/orders/ord_01HZX3K9:cancel":          "/api/v1/orders/{id}:cancel",
		"/api/v1/orders/ord_01HZX3K9/payments":        "/api/v1/orders/{id}/payments",
		"/api/v1/payments/webhook/":                   "/api/v1/payments/webhook",
		"/api/v1/products/42":                         "/api/v1/products/{id}",
		"/api/v1/payments/01HZX3K9QW5TYV8B2N4M6P7R0S": "/api/v1/payments/{id}",
		"/api/v1/internal/stock-alerts:sweep":         "/api/v1/internal/stock-alerts:sweep",
		"/api/v1/orders\n/forged":                     "/api/v1/orders/forged",
	}
	for in, want := range cases {
		if got := SanitizePath(in); got != want {
			t.Fatalf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeRoute(t *testing.T) {
	if got := SanitizeRoute("/api/v1/orders/{orderID}:cancel"); got != "/api/v1/orders/{orderID}:cancel" {
		t.Fatalf("unexpected route %q", got)
	}
	if got := SanitizeRoute("/api/v1/payments/*"); got != "/api/v1/payments" {
		t.Fatalf("expected wildcard suffix trimmed, got %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root, got %q", got)
	}
	if got := SanitizeRoute("/" + strings.Repeat("a", 300)); len(got) != maxRouteLen {
		t.Fatalf("expected route truncated to %d, got %d", maxRouteLen, len(got))
	}
}

func TestSanitizeMethodAndUserID(t *testing.T) {
	if got := SanitizeMethod("post"); got != http.MethodPost {
		t.Fatalf("expected POST, got %q", got)
	}
	if got := SanitizeMethod("PROPFIND"); got != otherMethod {
		t.Fatalf("expected %s, got %q", otherMethod, got)
	}
	if got := SanitizeUserID("kX2n9\r\nQp"); got != "kX2n9Qp" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
	if got := SanitizeUserID("ada@example.com"); got != "***@example.com" {
		t.Fatalf("expected email masked, got %q", got)
	}
}

func TestRoutePatternCollapsesUnmatchedPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_01HZX3K9:refund", nil)
	if got := RoutePattern(req); got != "/api/v1/orders/{id}:refund" {
		t.Fatalf("unexpected fallback route %q", got)
	}
}
