package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

var (
	// ErrSigningKeyNotFound is returned when no published key matches the token's kid.
	ErrSigningKeyNotFound = errors.New("auth: signing key not found")
	// ErrKeySetUnavailable wraps transport or decoding failures while fetching signing keys.
	ErrKeySetUnavailable = errors.New("auth: signing keys unavailable")
)

// Logger receives dotted auth events, matching the service logger signature.
type Logger func(ctx context.Context, event string, fields map[string]any)

func (l Logger) log(ctx context.Context, event string, fields map[string]any) {
	if l != nil {
		l(ctx, event, fields)
	}
}

// MetricsRecorder records verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

const (
	defaultKeySetTTL          = 15 * time.Minute
	defaultKeySetFetchTimeout = 5 * time.Second
)

// KeySet holds the identity provider's published signing keys. Keys are fetched on first use and
// again once the Cache-Control max-age lapses or a token names an unknown kid.
type KeySet struct {
	url    string
	client *http.Client
	logger Logger
	now    func() time.Time

	fetchMu sync.Mutex

	mu      sync.RWMutex
	keys    map[string]any
	expires time.Time
}

// KeySetOption customises a KeySet.
type KeySetOption func(*KeySet)

// NewKeySet constructs a KeySet for the JWKS document at url.
func NewKeySet(url string, opts ...KeySetOption) *KeySet {
	ks := &KeySet{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ks)
		}
	}
	return ks
}

// WithKeySetHTTPClient overrides the client used for JWKS fetches.
func WithKeySetHTTPClient(client *http.Client) KeySetOption {
	return func(ks *KeySet) {
		if client != nil {
			ks.client = client
		}
	}
}

// WithKeySetLogger sets the logger for fetch events.
func WithKeySetLogger(logger Logger) KeySetOption {
	return func(ks *KeySet) {
		ks.logger = logger
	}
}

// WithKeySetClock overrides the clock used for expiry.
func WithKeySetClock(now func() time.Time) KeySetOption {
	return func(ks *KeySet) {
		if now != nil {
			ks.now = now
		}
	}
}

// Lookup returns the public key for kid.
func (ks *KeySet) Lookup(ctx context.Context, kid string) (any, error) {
	if key, fresh := ks.cached(kid); key != nil && fresh {
		return key, nil
	}
	if err := ks.fetch(ctx); err != nil {
		return nil, err
	}
	if key, _ := ks.cached(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSigningKeyNotFound, kid)
}

func (ks *KeySet) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return ks.Lookup(ctx, kid)
	}
}

func (ks *KeySet) cached(kid string) (any, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.keys[kid], ks.now().Before(ks.expires)
}

func (ks *KeySet) fetch(ctx context.Context) error {
	ks.fetchMu.Lock()
	defer ks.fetchMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultKeySetFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrKeySetUnavailable, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrKeySetUnavailable, err)
	}
	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.Valid() || !jwk.IsPublic() {
			continue
		}
		keys[jwk.KeyID] = jwk.Key
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrKeySetUnavailable)
	}

	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}
	ks.mu.Lock()
	ks.keys = keys
	ks.expires = ks.now().Add(ttl)
	ks.mu.Unlock()

	ks.logger.log(ctx, "auth.keyset.fetched", map[string]any{"keys": len(keys), "ttl": ttl.String()})
	return nil
}

func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// OIDCPolicy describes which service tokens may call internal routes.
type OIDCPolicy struct {
	Audience string
	Issuers  []string
	// AllowedCallers restricts the token email (e.g. the scheduler service account). Empty allows
	// any caller with a valid token.
	AllowedCallers []string
}

// ServiceIdentity is the scheduler or service account that called an internal route.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// OIDCValidator verifies Google-signed OIDC and IAP tokens.
type OIDCValidator struct {
	keys    *KeySet
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// NewOIDCValidator constructs an OIDCValidator over keys.
func NewOIDCValidator(keys *KeySet, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{keys: keys, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// WithOIDCLogger sets the logger for rejected tokens.
func WithOIDCLogger(logger Logger) OIDCOption {
	return func(v *OIDCValidator) {
		v.logger = logger
	}
}

// WithOIDCMetrics sets the verification recorder.
func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = recorder
	}
}

// WithOIDCClock overrides the clock used for latency measurement.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

type oidcClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type oidcRejection struct {
	status int
	reason string
	msg    string
}

// RequireOIDC guards the internal routes (stock alert sweeps triggered by Cloud Scheduler).
func (v *OIDCValidator) RequireOIDC(policy OIDCPolicy) func(http.Handler) http.Handler {
	audience := strings.TrimSpace(policy.Audience)
	issuers := normalizedSet(policy.Issuers, false)
	callers := normalizedSet(policy.AllowedCallers, true)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := v.now()
			identity, rejection := v.verify(ctx, r, audience, issuers, callers)
			if rejection != nil {
				v.logger.log(ctx, "auth.oidc.rejected", map[string]any{"reason": rejection.reason, "path": r.URL.Path})
				v.record(ctx, false, rejection.reason, start)
				code := "invalid_token"
				switch rejection.status {
				case http.StatusServiceUnavailable:
					code = "verification_unavailable"
				case http.StatusForbidden:
					code = "insufficient_role"
				}
				if rejection.reason == "token_missing" {
					code = "unauthenticated"
				}
				respondAuthError(w, r, rejection.status, code, rejection.msg)
				return
			}
			v.record(ctx, true, "ok", start)
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, r *http.Request, audience string, issuers, callers map[string]struct{}) (*ServiceIdentity, *oidcRejection) {
	if audience == "" {
		return nil, &oidcRejection{http.StatusServiceUnavailable, "audience_not_configured", "oidc audience not configured"}
	}
	if v.keys == nil {
		return nil, &oidcRejection{http.StatusServiceUnavailable, "keys_unavailable", "oidc verification unavailable"}
	}
	raw := serviceToken(r)
	if raw == "" {
		return nil, &oidcRejection{http.StatusUnauthorized, "token_missing", "oidc token missing"}
	}

	var claims oidcClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, &claims, v.keys.keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrKeySetUnavailable) {
			return nil, &oidcRejection{http.StatusServiceUnavailable, "keys_unavailable", "oidc verification unavailable"}
		}
		return nil, &oidcRejection{http.StatusUnauthorized, "token_invalid", "oidc token verification failed"}
	}
	if _, ok := issuers[claims.Issuer]; len(issuers) > 0 && !ok {
		return nil, &oidcRejection{http.StatusUnauthorized, "issuer_mismatch", "oidc issuer mismatch"}
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, &oidcRejection{http.StatusUnauthorized, "audience_mismatch", "oidc audience mismatch"}
	}
	if _, ok := callers[strings.ToLower(claims.Email)]; len(callers) > 0 && !ok {
		return nil, &oidcRejection{http.StatusForbidden, "caller_not_allowed", "caller may not invoke internal routes"}
	}

	return &ServiceIdentity{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
		Audience: audience,
	}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics == nil {
		return
	}
	v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
}

// serviceToken reads the scheduler's bearer token, falling back to the IAP assertion header.
func serviceToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}

func normalizedSet(values []string, lower bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value != "" {
			set[value] = struct{}{}
		}
	}
	return set
}
