package observability

import (
	"strings"
	"unicode"
)

const (
	maxRouteLen    = 128
	maxUserIDLen   = 128
	maxFieldLen    = 256
	idPlaceholder  = "{id}"
	otherMethod    = "_OTHER"
	emailRedaction = "***"
)

// Prefixes of the identifiers this API issues or receives from Stripe.
var idPrefixes = []string{"ord_", "pay_", "cs_", "pi_", "evt_", "prod_", "user_"}

var knownMethods = map[string]struct{}{
	"GET": {}, "HEAD": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "OPTIONS": {},
}

// sanitizeString drops control characters, newlines included, and truncates to limit runes.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = maxFieldLen
	}
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute cleans a chi route pattern such as /api/v1/orders/{orderID}:cancel for use as a
// log field or metric label.
func SanitizeRoute(route string) string {
	route = sanitizeString(route, maxRouteLen)
	if len(route) > 1 {
		route = strings.TrimSuffix(strings.TrimSuffix(route, "/*"), "/")
	}
	if route == "" {
		return "/"
	}
	return route
}

// SanitizePath turns a raw request path into a low-cardinality route by replacing identifier
// segments with {id}. Action suffixes survive, so /orders/ord_01H:cancel becomes
// /orders/{id}:cancel.
func SanitizePath(path string) string {
	path = sanitizeString(path, maxRouteLen)
	if path == "" || path == "/" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		head, action, hasAction := strings.Cut(segment, ":")
		if !looksLikeID(head) {
			continue
		}
		if hasAction {
			segments[i] = idPlaceholder + ":" + action
		} else {
			segments[i] = idPlaceholder
		}
	}
	return SanitizeRoute(strings.Join(segments, "/"))
}

func looksLikeID(segment string) bool {
	if segment == "" {
		return false
	}
	for _, prefix := range idPrefixes {
		if strings.HasPrefix(segment, prefix) && len(segment) > len(prefix) {
			return true
		}
	}
	digits := 0
	for _, r := range segment {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	// numeric product ids, ULIDs and UUIDs
	return digits == len(segment) || (len(segment) >= 20 && digits > 0)
}

// SanitizeMethod upper-cases the method and folds anything non-standard into _OTHER.
func SanitizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return otherMethod
}

// SanitizeUserID bounds Firebase UIDs and masks the local part when a custom UID is an email.
func SanitizeUserID(uid string) string {
	uid = sanitizeString(strings.TrimSpace(uid), maxUserIDLen)
	if local, domain, ok := strings.Cut(uid, "@"); ok && local != "" {
		return emailRedaction + "@" + domain
	}
	return uid
}
