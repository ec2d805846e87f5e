package callback

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-callback/internal/auth/antigravity"
	"github.com/router-for-me/oauth-callback/internal/logging"
	"github.com/router-for-me/oauth-callback/internal/store"
	"github.com/router-for-me/oauth-callback/internal/util"
	log "github.com/sirupsen/logrus"
)

const retryPath = "/auth/start"

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	engine.SetHTMLTemplate(pageTemplates)

	engine.GET("/health", s.handleHealth)
	engine.GET("/auth/start", s.handleAuthStart)
	engine.GET(antigravity.CallbackPath, s.handleCallback)
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "oauth-callback"})
}

func (s *Server) handleAuthStart(c *gin.Context) {
	c.HTML(http.StatusOK, setupTemplate, gin.H{"AuthURL": s.opts.Builder.URL()})
}

// handleCallback branches on the redirect outcome. A code wins over an error when
// the provider sends both.
func (s *Server) handleCallback(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	providerErr := strings.TrimSpace(c.Query("error"))
	entry := logging.Entry(c.Request.Context())

	switch {
	case code != "":
		entry.Infof("callback: received authorization code %s", util.HideAPIKey(code))
		s.completeAuthorization(c, code)
	case providerErr != "":
		entry.WithField("kind", antigravity.KindProviderDenied).Errorf("callback: provider returned error: %s", providerErr)
		c.HTML(http.StatusBadRequest, deniedTemplate, gin.H{"Error": providerErr})
	default:
		entry.WithField("kind", antigravity.KindMalformedRequest).Warn("callback: request carried neither code nor error")
		c.String(http.StatusBadRequest, "Missing code parameter")
	}
}

// completeAuthorization holds the request open until the exchange and the store write
// settle. Concurrent requests carrying the same code share one exchange.
func (s *Server) completeAuthorization(c *gin.Context, code string) {
	ctx := context.WithoutCancel(c.Request.Context())
	v, err, shared := s.group.Do(code, func() (any, error) {
		return s.exchangeAndPersist(ctx, code)
	})
	entry := logging.Entry(ctx)
	if shared {
		entry.Debug("callback: joined in-flight exchange for the same code")
	}
	if err != nil {
		authErr := asAuthError(err)
		fields := log.Fields{"kind": authErr.Kind, "status": authErr.StatusCode}
		if authErr.Kind == antigravity.KindStorageFailure {
			entry.WithFields(fields).WithError(authErr.Cause).Error("credential store: failed to persist account")
		} else {
			entry.WithFields(fields).WithError(authErr.Cause).Errorf("callback: authorization failed: %s", authErr.Message)
		}
		c.HTML(authErr.StatusCode, failureTemplate, gin.H{"Message": authErr.Message, "RetryPath": retryPath})
		return
	}

	record := v.(*store.Record)
	c.HTML(http.StatusOK, successTemplate, gin.H{"Email": record.Email})
}

func (s *Server) exchangeAndPersist(ctx context.Context, code string) (*store.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ExchangeTimeout)
	defer cancel()

	result, err := s.opts.Exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	capturedAt := result.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.opts.Now()
	}
	record := store.NewRecord(result, capturedAt)
	if err = s.opts.Store.AddAccount(ctx, record); err != nil {
		return nil, antigravity.NewAuthError(antigravity.KindStorageFailure, "Failed to store account: "+err.Error(), err)
	}

	logging.Entry(ctx).WithFields(log.Fields{
		"email":     record.Email,
		"provider":  record.Provider,
		"record_id": record.ID,
	}).Info("callback: account stored")
	return record, nil
}

func asAuthError(err error) *antigravity.AuthError {
	var authErr *antigravity.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return antigravity.NewAuthError(antigravity.KindTimeout, "Authorization timed out", err)
	}
	return antigravity.NewAuthError(antigravity.KindExchangeFailure, err.Error(), err)
}
