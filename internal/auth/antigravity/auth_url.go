package antigravity

import (
	"fmt"

	"golang.org/x/oauth2"
)

// AuthURLBuilder constructs the provider authorization URL for a fixed client,
// scope list and redirect target. It holds no mutable state.
type AuthURLBuilder struct {
	conf *oauth2.Config
}

// NewAuthURLBuilder creates a builder whose redirect URI is http://<host>:<port>/oauth-callback.
func NewAuthURLBuilder(clientID, host string, port int) *AuthURLBuilder {
	return &AuthURLBuilder{
		conf: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: RedirectURI(host, port),
			Scopes:      Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthEndpoint,
				TokenURL:  TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// RedirectURI returns the callback address advertised to the provider.
func RedirectURI(host string, port int) string {
	return fmt.Sprintf("http://%s:%d%s", host, port, CallbackPath)
}

// RedirectURI returns the redirect URI embedded in every URL this builder produces.
func (b *AuthURLBuilder) RedirectURI() string {
	return b.conf.RedirectURL
}

// URL returns the authorization URL. Parameters are encoded in sorted order, so the
// result is byte-identical across calls.
func (b *AuthURLBuilder) URL() string {
	return b.conf.AuthCodeURL("",
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}
