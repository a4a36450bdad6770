package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// AgentID is set for agent accounts and scopes what they may read.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, AgentID: c.AgentID, Role: c.Role}
}
