// Package logging wires logrus into the process and into Gin. It provides the shared
// formatter, rotating file output, request ids and the request/recovery middleware used
// by the callback listener.
package logging

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-callback/internal/util"
	log "github.com/sirupsen/logrus"
)

// trackedPrefixes lists paths whose requests carry a request id through the exchange.
var trackedPrefixes = []string{
	"/oauth-callback",
	"/auth/",
}

const skipGinLogKey = "__gin_skip_request_logging__"

// GinLogrusLogger logs one line per request with the authorization code masked.
// Callback and setup requests get a request id in their context so the exchange that
// follows logs under the same id.
//
// Output format: [2025-12-23 20:14:10] [a1b2c3d4] [info ] 200 |   812ms |  172.17.0.1 | GET "/oauth-callback?code=4%2F0A...GhIj"
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := util.MaskSensitiveQuery(c.Request.URL.RawQuery)

		var requestID string
		if isTrackedPath(path) {
			requestID = NewRequestID()
			c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))
		}

		c.Next()

		if shouldSkipGinRequestLogging(c) {
			return
		}

		if raw != "" {
			path = path + "?" + raw
		}

		latency := time.Since(start)
		if latency > time.Minute {
			latency = latency.Truncate(time.Second)
		} else {
			latency = latency.Truncate(time.Millisecond)
		}

		statusCode := c.Writer.Status()
		logLine := fmt.Sprintf("%3d | %13v | %15s | %-7s \"%s\"", statusCode, latency, c.ClientIP(), c.Request.Method, path)
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			logLine = logLine + " | " + errorMessage
		}

		if requestID == "" {
			requestID = "--------"
		}
		entry := log.WithField("request_id", requestID)

		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error(logLine)
		case statusCode >= http.StatusBadRequest:
			entry.Warn(logLine)
		default:
			entry.Info(logLine)
		}
	}
}

func isTrackedPath(path string) bool {
	for _, prefix := range trackedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// GinLogrusRecovery turns a handler panic into a logged 500.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			// Let net/http abort the connection without a stack dump.
			panic(http.ErrAbortHandler)
		}

		log.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")

		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// SkipGinRequestLogging keeps health probes out of the request log.
func SkipGinRequestLogging(c *gin.Context) {
	if c == nil {
		return
	}
	c.Set(skipGinLogKey, true)
}

func shouldSkipGinRequestLogging(c *gin.Context) bool {
	if c == nil {
		return false
	}
	skip, _ := c.Get(skipGinLogKey)
	flag, _ := skip.(bool)
	return flag
}
