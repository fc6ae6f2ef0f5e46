// Package domain contains the session token types shared with the Rails app.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "market.dev"

// SessionClaims is the payload of a signed session token.
type SessionClaims struct {
	UserID snowflake.ID `json:"uid"`
	OrgID  snowflake.ID `json:"oid,omitempty"`
	Email  string       `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified user returned to the Rails app.
type Identity struct {
	UserID  snowflake.ID
	Email   string
	Name    string
	IsAdmin bool
	OrgID   snowflake.ID
	OrgSlug string
}

type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}
