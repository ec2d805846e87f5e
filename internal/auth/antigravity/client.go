package antigravity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds each provider round trip when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ClientOptions configures a Client. Empty endpoint fields fall back to Google's.
type ClientOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
	Timeout      time.Duration
	// Now overrides the clock used to stamp the capture time.
	Now func() time.Time
}

// Client exchanges authorization codes for tokens and resolves the identity behind them.
type Client struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	timeout     time.Duration
	now         func() time.Time
}

// NewClient creates a new exchange client.
func NewClient(opts ClientOptions) *Client {
	if opts.TokenURL == "" {
		opts.TokenURL = TokenEndpoint
	}
	if opts.UserInfoURL == "" {
		opts.UserInfoURL = UserInfoEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthEndpoint,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: opts.UserInfoURL,
		httpClient:  opts.HTTPClient,
		timeout:     opts.Timeout,
		now:         opts.Now,
	}
}

// Exchange trades an authorization code for a token set and resolves the identity.
// The userinfo endpoint is only called after the token endpoint succeeded. Nothing is
// retried; every failure is returned as an *AuthError.
func (c *Client) Exchange(ctx context.Context, code string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, NewAuthError(KindMalformedRequest, "Missing code parameter", nil)
	}

	tok, capturedAt, err := c.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	identity, err := c.fetchIdentity(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	expiresIn := expiresInSeconds(tok, capturedAt)
	return &Result{
		Identity: *identity,
		Token: TokenSet{
			AccessToken:     tok.AccessToken,
			RefreshToken:    tok.RefreshToken,
			TokenType:       tok.TokenType,
			ExpiresIn:       expiresIn,
			ExpiryTimestamp: capturedAt.Unix() + expiresIn,
		},
		CapturedAt: capturedAt,
	}, nil
}

func (c *Client) exchangeCode(ctx context.Context, code string) (*oauth2.Token, time.Time, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	callCtx = context.WithValue(callCtx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(callCtx, code)
	if err != nil {
		if isDeadline(callCtx, err) {
			return nil, time.Time{}, NewAuthError(KindTimeout, fmt.Sprintf("token exchange timed out after %s", c.timeout), err)
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			if body == "" && retrieveErr.Response != nil {
				body = fmt.Sprintf("status %d", retrieveErr.Response.StatusCode)
			}
			return nil, time.Time{}, NewAuthError(KindExchangeFailure, "Token exchange failed: "+body, err)
		}
		return nil, time.Time{}, NewAuthError(KindExchangeFailure, "Token exchange failed: "+err.Error(), err)
	}
	return tok, c.now(), nil
}

func (c *Client) fetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, NewAuthError(KindIdentityResolution, "Failed to fetch user info", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		if isDeadline(callCtx, errDo) {
			return nil, NewAuthError(KindTimeout, fmt.Sprintf("user info lookup timed out after %s", c.timeout), errDo)
		}
		return nil, NewAuthError(KindIdentityResolution, "Failed to fetch user info", fmt.Errorf("execute request: %w", errDo))
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("antigravity userinfo: close body error: %v", errClose)
		}
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if errRead != nil {
		if isDeadline(callCtx, errRead) {
			return nil, NewAuthError(KindTimeout, fmt.Sprintf("user info lookup timed out after %s", c.timeout), errRead)
		}
		return nil, NewAuthError(KindIdentityResolution, "Failed to fetch user info", fmt.Errorf("read response: %w", errRead))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(string(body))
		if len(detail) > 512 {
			detail = detail[:512]
		}
		cause := fmt.Errorf("status %d", resp.StatusCode)
		if detail != "" {
			cause = fmt.Errorf("status %d: %s", resp.StatusCode, detail)
		}
		return nil, NewAuthError(KindIdentityResolution, "Failed to fetch user info", cause)
	}

	email := strings.TrimSpace(gjson.GetBytes(body, "email").String())
	if email == "" {
		return nil, NewAuthError(KindIdentityResolution, "Failed to fetch user info", fmt.Errorf("response missing email"))
	}
	return &Identity{
		Email:     email,
		Name:      strings.TrimSpace(gjson.GetBytes(body, "name").String()),
		AvatarURL: strings.TrimSpace(gjson.GetBytes(body, "picture").String()),
	}, nil
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// expiresInSeconds reads expires_in from the token response, falling back to the
// computed expiry when the raw field is unavailable.
func expiresInSeconds(tok *oauth2.Token, capturedAt time.Time) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(capturedAt).Round(time.Second); d > 0 {
			return int64(d / time.Second)
		}
	}
	return 0
}
