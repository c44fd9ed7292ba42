package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims extends JWT registered claims with the token's scope.
// Tokens are immutable once signed; validity is determined from the claims
// plus signature alone.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// TokenCodec signs and verifies compact claims-bearing tokens with a shared
// secret and a pinned HMAC algorithm. Tokens signed with any other algorithm
// are rejected at decode time, which prevents algorithm confusion attacks.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
}

// NewTokenCodec creates a codec for the given secret and algorithm.
// The algorithm must be one of HS256 or HS512.
func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q (must be HS256 or HS512)", algorithm)
	}

	return &TokenCodec{
		secret: []byte(secret),
		method: method,
	}, nil
}

// Encode serialises the subject and scope plus issued-at/expiry claims,
// signs them, and returns the compact token string.
func (c *TokenCodec) Encode(subject, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(c.method, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", scope, err)
	}
	return signed, nil
}

// Decode verifies a token's signature and expiry and returns its claims.
//
// Failures are distinguished so callers can give different user-facing
// messages: ErrTokenExpired when the expiry has passed, ErrTokenSignature
// when the signature does not verify (including wrong-algorithm tokens),
// and ErrTokenMalformed when the token cannot be parsed at all.
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %w", ErrTokenSignature, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.Scope == "" {
		return nil, fmt.Errorf("%w: missing scope", ErrTokenMalformed)
	}

	return claims, nil
}
