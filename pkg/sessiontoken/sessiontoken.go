// Package sessiontoken encodes login sessions as compact HS256 tokens for
// the HTTP boundary. The token carries only the session's identity and its
// two authorization booleans; every protected handler still consults the
// session authority before acting.
package sessiontoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken reports a token that failed signature or claim validation.
var ErrInvalidToken = errors.New("sessiontoken: invalid token")

// Claims is the session state carried across requests.
type Claims struct {
	SessionID   string `json:"sid"`
	MFAVerified bool   `json:"mfa_verified"`
	MFAPending  bool   `json:"mfa_pending"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewCodec(secret []byte, issuer string, ttl time.Duration) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("sessiontoken: secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Codec{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Encode signs a session token for the given principal.
func (c *Codec) Encode(userID, sessionID string, mfaVerified, mfaPending bool) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID:   sessionID,
		MFAVerified: mfaVerified,
		MFAPending:  mfaPending,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sessiontoken: sign failed: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature, issuer and expiry of a session token and
// returns its claims.
func (c *Codec) Decode(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return c.secret, nil
		},
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
