package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/record-service/internal/tokenverify"
)

// RevocationStore is the expiring blacklist of token ids.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenCodec issues and verifies access and refresh tokens and consults the
// revocation store on every verification.
type TokenCodec struct {
	signer      JWTSigner
	revocations RevocationStore
	fallbackTTL time.Duration
	now         func() time.Time
}

func NewTokenCodec(signer JWTSigner, revocations RevocationStore, fallbackTTL time.Duration) *TokenCodec {
	return &TokenCodec{signer: signer, revocations: revocations, fallbackTTL: fallbackTTL, now: time.Now}
}

func (c *TokenCodec) Issue(subject string, typ TokenType, ttl time.Duration) (*IssuedToken, error) {
	return c.signer.Sign(subject, typ, ttl)
}

// Verify fails on bad signature, expiry, type mismatch, missing jti or a
// blacklisted jti. A revocation lookup failure is returned as is.
func (c *TokenCodec) Verify(ctx context.Context, token string, expected TokenType) (*tokenverify.Result, error) {
	result, err := tokenverify.Verify(c.signer, token, string(expected), c.now)
	if err != nil {
		return nil, err
	}
	revoked, err := c.revocations.IsRevoked(ctx, result.JTI)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, tokenverify.ErrRevoked
	}
	return result, nil
}

// Blacklist revokes the token's jti until the token would expire on its own.
// The ttl is rounded up to the next second so the entry never outlives the
// token by less than zero.
func (c *TokenCodec) Blacklist(ctx context.Context, token string) error {
	tok, claims, err := c.signer.Parse(token)
	if err != nil || tok == nil || !tok.Valid {
		return tokenverify.ErrInvalidToken
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return tokenverify.ErrJTIMissing
	}
	ttl := c.fallbackTTL
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ttl = exp.Time.Sub(c.now())
		if ttl <= 0 {
			return nil
		}
		ttl = ttl.Truncate(time.Second) + time.Second
	}
	return c.revocations.Revoke(ctx, jti, ttl)
}

// SecretHasher is the one-way hash used for passwords and OTPs.
type SecretHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type bcryptHasher struct{ cost int }

func NewBcryptHasher(cost int) SecretHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcryptHasher{cost: cost}
}

func (h bcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h bcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// hashRefreshToken keys the stored session hash with the server secret so a
// leaked table cannot be replayed.
func hashRefreshToken(key []byte, token string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateOTP(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
