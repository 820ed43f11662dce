package service

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultGoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultFetchTimeout   = 10 * time.Second
	maxKeySetBytes        = 1 << 20
)

var googleIssuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

var (
	ErrUnknownKey      = errors.New("unknown signing key")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrExpired         = errors.New("identity token expired")
	ErrUpstream        = errors.New("identity provider unavailable")
)

// KeySetCache es el juego de claves de Google con su propia marca de obtención.
type KeySetCache struct {
	Keys      []jose.JSONWebKey `json:"keys"`
	MaxAge    int64             `json:"max_age"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Fresh indica si el juego de claves sigue vigente según max-age.
func (c *KeySetCache) Fresh(now time.Time) bool {
	if c == nil || len(c.Keys) == 0 {
		return false
	}
	return now.Sub(c.FetchedAt) < time.Duration(c.MaxAge)*time.Second
}

func (c *KeySetCache) rsaKey(kid string) (*rsa.PublicKey, bool) {
	if c == nil {
		return nil, false
	}
	for _, k := range c.Keys {
		if k.KeyID != kid {
			continue
		}
		if pub, ok := k.Key.(*rsa.PublicKey); ok {
			return pub, true
		}
	}
	return nil, false
}

// StringBool acepta true/false como booleano o como string.
type StringBool bool

func (b *StringBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = StringBool(t)
	case string:
		*b = StringBool(strings.EqualFold(t, "true"))
	case nil:
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", string(data))
	}
	return nil
}

// ExternalClaims son los claims verificados de un ID token de Google.
type ExternalClaims struct {
	Email         string     `json:"email"`
	EmailVerified StringBool `json:"email_verified"`
	Name          string     `json:"name"`
	KeyID         string     `json:"-"`
	jwt.RegisteredClaims
}

// GoogleVerifierConfig agrupa la configuración del verificador.
type GoogleVerifierConfig struct {
	ClientID     string
	CertsURL     string
	CachePath    string
	FetchTimeout time.Duration
	HTTPClient   *http.Client
}

// GoogleVerifier valida ID tokens de Google contra un juego de claves cacheado.
type GoogleVerifier struct {
	logger       *zap.Logger
	clientID     string
	certsURL     string
	cachePath    string
	fetchTimeout time.Duration
	httpClient   *http.Client
	now          func() time.Time

	mu    sync.RWMutex
	cache *KeySetCache
	group singleflight.Group
}

// NewGoogleVerifier crea el verificador y carga el snapshot local si existe.
func NewGoogleVerifier(logger *zap.Logger, cfg GoogleVerifierConfig) *GoogleVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CertsURL == "" {
		cfg.CertsURL = DefaultGoogleCertsURL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	v := &GoogleVerifier{
		logger:       logger,
		clientID:     cfg.ClientID,
		certsURL:     cfg.CertsURL,
		cachePath:    cfg.CachePath,
		fetchTimeout: cfg.FetchTimeout,
		httpClient:   cfg.HTTPClient,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if cfg.CachePath != "" {
		snapshot, err := LoadKeySetSnapshot(cfg.CachePath)
		switch {
		case err == nil:
			v.cache = snapshot
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Warn("ignoring unreadable key set snapshot", zap.String("path", cfg.CachePath), zap.Error(err))
		}
	}
	return v
}

// Verify valida firma, audiencia, emisor y expiración de un ID token.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (ExternalClaims, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return ExternalClaims{}, ErrTokenMalformed
	}
	unverified, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(idToken, &ExternalClaims{})
	if err != nil {
		return ExternalClaims{}, parseFailure(idToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return ExternalClaims{}, ErrUnknownKey
	}

	keys, refreshed, err := v.keySet(ctx, false)
	if err != nil {
		return ExternalClaims{}, err
	}
	key, ok := keys.rsaKey(kid)
	if !ok && !refreshed {
		// Rotación: una sola recarga forzada antes de rechazar el kid.
		if keys, _, err = v.keySet(ctx, true); err != nil {
			return ExternalClaims{}, err
		}
		key, ok = keys.rsaKey(kid)
	}
	if !ok {
		return ExternalClaims{}, ErrUnknownKey
	}

	var claims ExternalClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	if _, err := parser.ParseWithClaims(idToken, &claims, func(_ *jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		return ExternalClaims{}, parseFailure(idToken, err)
	}
	claims.KeyID = kid

	if !hasAudience(claims.Audience, v.clientID) {
		return ExternalClaims{}, ErrInvalidAudience
	}
	if _, ok := googleIssuers[claims.Issuer]; !ok {
		return ExternalClaims{}, ErrInvalidIssuer
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(v.now()) {
		return ExternalClaims{}, ErrExpired
	}
	return claims, nil
}

// Refresh fuerza la descarga del juego de claves y actualiza el snapshot.
func (v *GoogleVerifier) Refresh(ctx context.Context) (*KeySetCache, error) {
	keys, _, err := v.keySet(ctx, true)
	return keys, err
}

// keySet devuelve el juego vigente; refreshed indica si hubo descarga en esta llamada.
func (v *GoogleVerifier) keySet(ctx context.Context, force bool) (*KeySetCache, bool, error) {
	if !force {
		v.mu.RLock()
		cached := v.cache
		v.mu.RUnlock()
		if cached.Fresh(v.now()) {
			return cached, false, nil
		}
	}

	ch := v.group.DoChan("jwks", func() (any, error) {
		return v.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*KeySetCache), true, nil
	}
}

func (v *GoogleVerifier) fetch(ctx context.Context) (*KeySetCache, error) {
	ctx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("fetch google certs failed", zap.Error(err))
		return nil, fmt.Errorf("%w: fetch certs: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("google certs returned non-200", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: certs status %d", ErrUpstream, resp.StatusCode)
	}
	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: decode certs: %v", ErrUpstream, err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrUpstream)
	}

	maxAge := ParseMaxAge(resp.Header.Get("Cache-Control"))
	if maxAge == 0 {
		v.logger.Warn("google certs response without max-age; key set will not be cached")
	}
	cache := &KeySetCache{
		Keys:      set.Keys,
		MaxAge:    maxAge,
		FetchedAt: v.now(),
	}

	v.mu.Lock()
	v.cache = cache
	v.mu.Unlock()

	if v.cachePath != "" {
		if err := SaveKeySetSnapshot(v.cachePath, cache); err != nil {
			v.logger.Warn("write key set snapshot failed", zap.String("path", v.cachePath), zap.Error(err))
		}
	}
	v.logger.Info("google key set refreshed", zap.Int("keys", len(cache.Keys)), zap.Int64("max_age", maxAge))
	return cache, nil
}

// ParseMaxAge extrae max-age (segundos) de un header Cache-Control. Devuelve 0 si falta.
func ParseMaxAge(header string) int64 {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		secs, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(value), `"`), 10, 64)
		if err != nil || secs < 0 {
			return 0
		}
		return secs
	}
	return 0
}

// LoadKeySetSnapshot lee el snapshot {keys, max_age, fetched_at}.
func LoadKeySetSnapshot(path string) (*KeySetCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache KeySetCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &cache, nil
}

// SaveKeySetSnapshot escribe el snapshot de forma atómica (archivo temporal + rename).
func SaveKeySetSnapshot(path string, cache *KeySetCache) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jwks-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func hasAudience(aud jwt.ClaimStrings, clientID string) bool {
	if clientID == "" {
		return false
	}
	for _, a := range aud {
		if a == clientID {
			return true
		}
	}
	return false
}
