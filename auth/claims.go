package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates access tokens from refresh tokens. A token of one
// kind must never verify where the other is expected.
type TokenKind string

const (
	// TokenKindAccess is the short-lived per-request credential
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh is the long-lived credential used only to mint new pairs
	TokenKindRefresh TokenKind = "refresh"
)

// IsValid checks the kind is one of the two known variants
func (k TokenKind) IsValid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// TokenClaims is the signed claim bundle carried by both token kinds. The
// wire names match the original token format: sub, type, exp, iat, jti.
type TokenClaims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"type,omitempty"`
}

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID parses the subject as a numeric principal id
func (c *TokenClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.RegisteredClaims.Subject, 10, 64)
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
