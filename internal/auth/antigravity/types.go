package antigravity

import "time"

// TokenSet is the token material returned by the token endpoint.
// ExpiryTimestamp is computed once at exchange time as capture time (unix seconds) + ExpiresIn.
type TokenSet struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

// Identity is the provider-verified user behind a token.
type Identity struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Result is the outcome of a successful exchange.
type Result struct {
	Identity Identity
	Token    TokenSet
	// CapturedAt is the moment the token endpoint answered.
	CapturedAt time.Time
}
