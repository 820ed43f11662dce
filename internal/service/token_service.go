package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService emite y valida los tokens de acceso propios (HS256).
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// Claims son los claims de un token de acceso: iss, sub, aud, iat, nbf, exp y jti.
type Claims struct {
	jwt.RegisteredClaims
}

var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenNotYet    = errors.New("token not valid yet")
)

const defaultTokenTTL = 24 * time.Hour

func NewTokenService(secret, issuer, audience string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// IssueFor emite un token para la cuenta con el emisor y audiencia configurados.
func (s *TokenService) IssueFor(subject string) (string, error) {
	return s.Issue(s.issuer, subject, s.audience)
}

// Issue emite un token con iat = nbf = ahora, exp = ahora + ttl y un jti nuevo.
func (s *TokenService) Issue(issuer, subject, audience string) (string, error) {
	now := s.now().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return s.Sign(claims)
}

// Sign firma claims explícitos. Los mismos claims y secreto producen el mismo token.
func (s *TokenService) Sign(claims Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrTokenSignature
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify valida firma y vigencia. Los claims solo se leen tras verificar la firma.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrTokenSignature
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenMalformed
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrTokenNotYet
		default:
			return Claims{}, parseFailure(tokenString, err)
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrTokenMalformed
	}
	return claims, nil
}

// parseFailure clasifica un fallo de parseo. Con tres segmentos, un segmento que no
// decodifica se trata como firma inválida: el token fue alterado tras firmarse.
func parseFailure(token string, err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return ErrTokenSignature
	}
	if strings.Count(token, ".") == 2 && (errors.Is(err, jwt.ErrTokenMalformed) || errors.Is(err, jwt.ErrTokenUnverifiable)) {
		return ErrTokenSignature
	}
	return ErrTokenMalformed
}
