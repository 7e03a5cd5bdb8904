package tokenverify

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid_token")
	ErrTokenExpired   = errors.New("token_expired")
	ErrSubjectMissing = errors.New("subject_missing")
	ErrWrongType      = errors.New("wrong_token_type")
	ErrJTIMissing     = errors.New("jti_missing")
	ErrRevoked        = errors.New("token_revoked")
)

type Parser interface {
	Parse(token string) (*jwt.Token, jwt.MapClaims, error)
}

type Result struct {
	UserID    string
	JTI       string
	Type      string
	ExpiresAt time.Time
	Claims    map[string]any
}

// Verify parses the token and checks signature, expiry, subject, type and jti.
// An empty expectedType accepts any type. Revocation is not checked here.
func Verify(parser Parser, token, expectedType string, nowFn func() time.Time) (*Result, error) {
	if parser == nil || token == "" {
		return nil, ErrInvalidToken
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	tok, claims, err := parser.Parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil || tok == nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !nowFn().Before(exp.Time) {
		return nil, ErrTokenExpired
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrSubjectMissing
	}
	typ, _ := claims["type"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, ErrWrongType
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil, ErrJTIMissing
	}
	filtered := map[string]any{}
	for k, v := range claims {
		if k == "sub" || k == "jti" || k == "type" {
			continue
		}
		filtered[k] = v
	}
	return &Result{UserID: sub, JTI: jti, Type: typ, ExpiresAt: exp.Time, Claims: filtered}, nil
}
