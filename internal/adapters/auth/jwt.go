// Package auth issues and validates the bearer tokens that identify callers
// and carry the rank-manager role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role names.
const (
	RolePlayer      = "player"
	RoleRankManager = "rank_manager"
)

const issuer = "festrank"

// Claims identifies a caller.
type Claims struct {
	UserID    string
	Username  string
	Role      string
	ExpiresAt time.Time
}

// IsManager reports whether the caller may act on behalf of others.
func (c Claims) IsManager() bool { return c.Role == RoleRankManager }

type tokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Provider signs and validates HS256 tokens.
type Provider struct {
	secret []byte
}

// NewProvider creates a provider. An empty secret is rejected.
func NewProvider(secret string) (*Provider, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Provider{secret: []byte(secret)}, nil
}

// Issue signs a token for c valid for ttl.
func (p *Provider) Issue(c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: c.Username,
		Role:     c.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a token and returns its claims.
func (p *Provider) Validate(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return p.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrInvalidSignature):
			return Claims{}, ErrInvalidSignature
		}
		return Claims{}, ErrInvalidToken
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || tc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	out := Claims{UserID: tc.Subject, Username: tc.Username, Role: tc.Role}
	if tc.ExpiresAt != nil {
		out.ExpiresAt = tc.ExpiresAt.Time
	}
	return out, nil
}
