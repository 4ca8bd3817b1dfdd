// Package auth carries the caller identity through a context and converts it
// to and from signed bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-quiz-engine/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoIdentity is returned when a context carries no authenticated user.
	ErrNoIdentity = errors.New("no authenticated user")
	// ErrInvalidToken is returned for malformed, expired or foreign tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string      `json:"id"`
	Role   domain.Role `json:"role"`
}

func (i Identity) IsStudent() bool { return i.Role == domain.RoleStudent }
func (i Identity) IsTeacher() bool { return i.Role == domain.RoleTeacher }

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

type claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens for one issuer.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for id valid for ttl.
func (t *Tokens) Issue(id Identity, ttl time.Duration) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and returns the identity it carries.
func (t *Tokens) Verify(raw string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if c.Subject == "" || (c.Role != domain.RoleStudent && c.Role != domain.RoleTeacher) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Role: c.Role}, nil
}
