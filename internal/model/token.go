package model

import "time"

// Token scopes.
const (
	// ScopeChat grants access to the conversation endpoints.
	ScopeChat = "chat"
	// ScopeAdmin grants access to administrative endpoints.
	ScopeAdmin = "admin"
)

// ValidScopes lists every scope a token may carry.
var ValidScopes = []string{ScopeChat, ScopeAdmin}

// APIToken is a bearer credential mapping to a user. The plaintext token
// is never stored; only the argon2id hash and a short lookup prefix are.
type APIToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	Prefix    string     `json:"prefix"`
	Scopes    []string   `json:"scopes"`
	Name      string     `json:"name"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsActive reports whether the token may still authenticate requests.
func (t *APIToken) IsActive() bool {
	return t.RevokedAt == nil
}

// HasScope checks whether the token carries the given scope.
func (t *APIToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AuthContext is the resolved caller identity injected by the auth
// middleware. Core operations still take the user ID explicitly; this
// only carries what the HTTP layer resolved.
type AuthContext struct {
	TokenID string
	Prefix  string
	UserID  string
	Scopes  []string
}

// HasScope checks whether the authenticated caller carries the scope.
func (a *AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
