// Package auth issues and verifies the bearer tokens that bind a connection
// to a principal.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
)

type Config struct {
	Issuer string
	Secret []byte
	Now    func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

type Authenticator struct {
	cfg Config
}

func New(cfg Config) (*Authenticator, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("auth secret must be at least 16 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "auctionhouse"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{cfg: cfg}, nil
}

// Issue signs an HS256 token whose subject is principal.
func (a *Authenticator) Issue(principal string, ttl time.Duration) (string, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", fmt.Errorf("empty principal")
	}
	now := a.cfg.Now().UTC()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    a.cfg.Issuer,
		Subject:   principal,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.cfg.Secret)
}

// Verify returns the principal a token was issued for.
func (a *Authenticator) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenRequired
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.cfg.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return c.Subject, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
