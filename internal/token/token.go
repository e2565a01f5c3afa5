// Package token mints and verifies capability tokens: signed, expiring
// claims that let a sender make follow-up requests for one transfer.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrBadToken  = errors.New("bad token")
	ErrExpired   = errors.New("token expired")
	ErrWrongRole = errors.New("wrong token role")
)

// Role is the capability a token grants.
type Role string

const (
	RoleSender   Role = "Sender"
	RoleReceiver Role = "Receiver"
)

// Claims is the signed payload: {"role": ..., "id": ..., "exp": ...}.
type Claims struct {
	Role Role      `json:"role"`
	ID   uuid.UUID `json:"id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with one shared HMAC key.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer for secret; tokens live for ttl.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// DecodeSecret returns the signing key for s. Any s that is valid standard
// base64 is decoded, so a raw secret that happens to parse as base64 becomes
// a different, shorter key; encoded reports which form was used. Other
// strings are used as raw bytes.
func DecodeSecret(s string) (key []byte, encoded bool) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) > 0 {
		return b, true
	}
	return []byte(s), false
}

// TTL is the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint returns a signed token for role on transfer id and its expiry.
func (i *Issuer) Mint(role Role, id uuid.UUID) (string, time.Time, error) {
	exp := i.now().Add(i.ttl)
	claims := &Claims{
		Role: role,
		ID:   id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}

// Verify checks signature and expiry and returns the claims.
func (i *Issuer) Verify(tok string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrBadToken
	}
	if !parsed.Valid || claims.ID == uuid.Nil {
		return nil, ErrBadToken
	}
	switch claims.Role {
	case RoleSender, RoleReceiver:
	default:
		return nil, ErrBadToken
	}
	return claims, nil
}

// Require returns ErrWrongRole unless c carries role.
func (c *Claims) Require(role Role) error {
	if c.Role != role {
		return ErrWrongRole
	}
	return nil
}
