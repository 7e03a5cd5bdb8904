package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/record-service/config"
)

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// IssuedToken is a signed token together with the identifiers the session
// layer persists.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

type JWTSigner interface {
	Sign(subject string, typ TokenType, ttl time.Duration) (*IssuedToken, error)
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

type jwtSigner struct {
	issuer   string
	audience string
	key      []byte
	now      func() time.Time
}

func NewJWTSigner(cfg *config.Config) (JWTSigner, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret required")
	}
	return &jwtSigner{issuer: cfg.JWTIssuer, audience: cfg.JWTAudience, key: []byte(cfg.JWTSecret), now: time.Now}, nil
}

func (s *jwtSigner) Sign(subject string, typ TokenType, ttl time.Duration) (*IssuedToken, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  subject,
		"type": string(typ),
		"jti":  jti,
		"iss":  s.issuer,
		"aud":  s.audience,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: signed, JTI: jti, ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC()}, nil
}

func (s *jwtSigner) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	return token, claims, err
}
