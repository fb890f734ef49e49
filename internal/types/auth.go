package types

import "time"

// AuthType identifies how a stored credential was obtained
type AuthType string

const (
	// AuthTypeToken is an opaque session token set by the user
	AuthTypeToken AuthType = "token"
	// AuthTypeOAuth is an OAuth2 token that can be refreshed
	AuthTypeOAuth AuthType = "oauth"
)

// Credentials is a decoded session credential
type Credentials struct {
	AccessToken  string
	RefreshToken string
	// ExpiryDate is zero for tokens without a known lifetime
	ExpiryDate time.Time
	Type       AuthType
	Scopes     []string
}

// StoredCredentials is the persisted form of Credentials
type StoredCredentials struct {
	Profile      string   `json:"profile"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiryDate   string   `json:"expiry_date,omitempty"`
	Type         AuthType `json:"type"`
	Scopes       []string `json:"scopes,omitempty"`
}
