package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testClientID = "client-123.apps.googleusercontent.com"

type testJWKS struct {
	mu     sync.Mutex
	keys   map[string]*rsa.PrivateKey
	hits   atomic.Int32
	status int
	gate   chan struct{}
	server *httptest.Server
}

func newTestJWKS(t *testing.T, kids ...string) *testJWKS {
	t.Helper()
	j := &testJWKS{keys: make(map[string]*rsa.PrivateKey), status: http.StatusOK}
	for _, kid := range kids {
		j.keys[kid] = newRSAKey(t)
	}
	j.server = httptest.NewServer(http.HandlerFunc(j.serve))
	t.Cleanup(j.server.Close)
	return j
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

func (j *testJWKS) serve(w http.ResponseWriter, _ *http.Request) {
	j.hits.Add(1)
	if j.gate != nil {
		<-j.gate
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != http.StatusOK {
		w.WriteHeader(j.status)
		return
	}
	var set jose.JSONWebKeySet
	for kid, key := range j.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"})
	}
	w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate, no-transform")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

func (j *testJWKS) setKeys(keys map[string]*rsa.PrivateKey) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keys = keys
}

func (j *testJWKS) key(kid string) *rsa.PrivateKey {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.keys[kid]
}

func newTestVerifier(j *testJWKS, cachePath string, now *time.Time) *GoogleVerifier {
	v := NewGoogleVerifier(zap.NewNop(), GoogleVerifierConfig{
		ClientID:     testClientID,
		CertsURL:     j.server.URL,
		CachePath:    cachePath,
		FetchTimeout: 2 * time.Second,
	})
	v.now = func() time.Time { return *now }
	return v
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, mutate func(*ExternalClaims), now time.Time) string {
	t.Helper()
	claims := ExternalClaims{
		Email:         "jane@x.com",
		EmailVerified: true,
		Name:          "Jane",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://accounts.google.com",
			Subject:   "google-sub-1",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		},
	}
	if mutate != nil {
		mutate(&claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func TestGoogleVerifier_ValidToken(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)

	claims, err := v.Verify(context.Background(), signIDToken(t, j.key("k1"), "k1", nil, now))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "jane@x.com" || claims.Subject != "google-sub-1" || !bool(claims.EmailVerified) {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.KeyID != "k1" {
		t.Fatalf("expected kid k1, got %q", claims.KeyID)
	}
	if got := j.hits.Load(); got != 1 {
		t.Fatalf("expected 1 fetch, got %d", got)
	}
}

func TestGoogleVerifier_KeySetFreshness(t *testing.T) {
	j := newTestJWKS(t, "k1")
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	v := newTestVerifier(j, "", &now)
	token := signIDToken(t, j.key("k1"), "k1", nil, t0)

	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify at t0: %v", err)
	}

	now = t0.Add(1800 * time.Second)
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify at t0+1800: %v", err)
	}
	if got := j.hits.Load(); got != 1 {
		t.Fatalf("expected cached key set at t0+1800, got %d fetches", got)
	}

	now = t0.Add(3601 * time.Second)
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify at t0+3601: %v", err)
	}
	if got := j.hits.Load(); got != 2 {
		t.Fatalf("expected refetch at t0+3601, got %d fetches", got)
	}
}

func TestGoogleVerifier_UnknownKidForcesOneRefresh(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)

	if _, err := v.Verify(context.Background(), signIDToken(t, j.key("k1"), "k1", nil, now)); err != nil {
		t.Fatalf("verify k1: %v", err)
	}

	rotated := newRSAKey(t)
	j.setKeys(map[string]*rsa.PrivateKey{"k2": rotated})
	if _, err := v.Verify(context.Background(), signIDToken(t, rotated, "k2", nil, now)); err != nil {
		t.Fatalf("verify rotated key: %v", err)
	}
	if got := j.hits.Load(); got != 2 {
		t.Fatalf("expected one forced refresh, got %d fetches", got)
	}

	_, err := v.Verify(context.Background(), signIDToken(t, newRSAKey(t), "k3", nil, now))
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if got := j.hits.Load(); got != 3 {
		t.Fatalf("expected exactly one more refresh for k3, got %d fetches", got)
	}
}

func TestGoogleVerifier_ClaimChecks(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)

	cases := []struct {
		name   string
		mutate func(*ExternalClaims)
		want   error
	}{
		{"wrong audience", func(c *ExternalClaims) { c.Audience = jwt.ClaimStrings{"someone-else"} }, ErrInvalidAudience},
		{"wrong issuer", func(c *ExternalClaims) { c.Issuer = "https://evil.example.com" }, ErrInvalidIssuer},
		{"expired", func(c *ExternalClaims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute)) }, ErrExpired},
		{"bare issuer accepted", func(c *ExternalClaims) { c.Issuer = "accounts.google.com" }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), signIDToken(t, j.key("k1"), "k1", tc.mutate, now))
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGoogleVerifier_BadSignature(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)

	forged := signIDToken(t, newRSAKey(t), "k1", nil, now)
	if _, err := v.Verify(context.Background(), forged); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "garbage"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestGoogleVerifier_TamperedSignature(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)
	token := signIDToken(t, j.key("k1"), "k1", nil, now)

	sigStart := strings.LastIndex(token, ".") + 1
	for pos := sigStart; pos < len(token); pos++ {
		for _, c := range []byte(base64URLAlphabet) {
			if c == token[pos] {
				continue
			}
			tampered := token[:pos] + string(c) + token[pos+1:]
			if _, err := v.Verify(context.Background(), tampered); !errors.Is(err, ErrTokenSignature) {
				t.Fatalf("pos %d %q->%q: expected ErrTokenSignature, got %v", pos, token[pos], c, err)
			}
		}
	}
	if got := j.hits.Load(); got != 1 {
		t.Fatalf("tampered signatures must not refetch keys, got %d fetches", got)
	}
}

func TestGoogleVerifier_UpstreamFailure(t *testing.T) {
	j := newTestJWKS(t, "k1")
	j.status = http.StatusInternalServerError
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)

	_, err := v.Verify(context.Background(), signIDToken(t, j.key("k1"), "k1", nil, now))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestGoogleVerifier_SnapshotReusedAtStart(t *testing.T) {
	j := newTestJWKS(t, "k1")
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "google_jwk.json")
	token := signIDToken(t, j.key("k1"), "k1", nil, now)

	first := newTestVerifier(j, path, &now)
	if _, err := first.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}

	snapshot, err := LoadKeySetSnapshot(path)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snapshot.MaxAge != 3600 || !snapshot.FetchedAt.Equal(now) || len(snapshot.Keys) != 1 {
		t.Fatalf("unexpected snapshot: max_age=%d fetched_at=%v keys=%d", snapshot.MaxAge, snapshot.FetchedAt, len(snapshot.Keys))
	}

	later := now.Add(10 * time.Minute)
	second := newTestVerifier(j, path, &later)
	if _, err := second.Verify(context.Background(), token); err != nil {
		t.Fatalf("verify from snapshot: %v", err)
	}
	if got := j.hits.Load(); got != 1 {
		t.Fatalf("expected snapshot to avoid a fetch, got %d fetches", got)
	}
}

func TestGoogleVerifier_ConcurrentMissesShareOneFetch(t *testing.T) {
	j := newTestJWKS(t, "k1")
	j.gate = make(chan struct{})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newTestVerifier(j, "", &now)
	token := signIDToken(t, j.key("k1"), "k1", nil, now)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			errs <- err
		}()
	}
	for j.hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(j.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent verify: %v", err)
		}
	}
	if got := j.hits.Load(); got != 1 {
		t.Fatalf("expected a single shared fetch, got %d", got)
	}
}

func TestParseMaxAge(t *testing.T) {
	cases := map[string]int64{
		"public, max-age=19845, must-revalidate, no-transform": 19845,
		"max-age=60":            60,
		"MAX-AGE = 30":          30,
		"no-cache":              0,
		"":                      0,
		"max-age=abc":           0,
		`private, max-age="90"`: 90,
	}
	for header, want := range cases {
		if got := ParseMaxAge(header); got != want {
			t.Fatalf("ParseMaxAge(%q) = %d, want %d", header, got, want)
		}
	}
}
