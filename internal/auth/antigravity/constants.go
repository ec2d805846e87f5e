// Package antigravity implements the Google OAuth2 authorization-code flow used to
// register agent accounts: building the consent URL, exchanging the returned code
// and resolving the identity behind the token.
package antigravity

// ClientID is the public OAuth client identifier. The matching secret is supplied
// through configuration and never lives in source.
const ClientID = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"

// Provider is the provider name stamped on every credential record.
const Provider = "google"

// CallbackPath is where the provider redirects the browser after consent.
const CallbackPath = "/oauth-callback"

// Scopes defines the OAuth scopes requested during authorization.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/cclog",
	"https://www.googleapis.com/auth/experimentsandconfigs",
}

// OAuth2 endpoints for Google authentication
const (
	AuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenEndpoint    = "https://oauth2.googleapis.com/token"
	UserInfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
)
