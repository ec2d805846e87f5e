// Package callback implements the embedded HTTP listener that serves the OAuth setup page,
// receives the provider redirect and turns an authorization code into a stored credential.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-callback/internal/auth/antigravity"
	"github.com/router-for-me/oauth-callback/internal/store"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultBindAddress is the interface the listener binds to, independent of the
// advertised host.
const DefaultBindAddress = "0.0.0.0"

// DefaultExchangeTimeout bounds the exchange and persist of one callback.
const DefaultExchangeTimeout = 30 * time.Second

// State is the lifecycle state of a Server.
type State int

const (
	// StateStopped means no socket is bound.
	StateStopped State = iota
	// StateListening means the listener accepts requests.
	StateListening
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

// URLBuilder produces the provider authorization URL shown on the setup page.
type URLBuilder interface {
	URL() string
}

// Exchanger trades an authorization code for a token set and identity.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*antigravity.Result, error)
}

// Options configures a Server.
type Options struct {
	// Host is the advertised host used in log output and redirect URIs.
	Host string
	// Port is the listening port. 0 picks a free port.
	Port int
	// BindAddress defaults to 0.0.0.0.
	BindAddress string
	Builder     URLBuilder
	Exchanger   Exchanger
	// Store must already be initialized.
	Store store.Store
	// ExchangeTimeout bounds the whole exchange and persist of one callback.
	ExchangeTimeout time.Duration
	// Now overrides the clock used for record timestamps when the exchange result has none.
	Now func() time.Time
}

// Server is the OAuth callback listener.
type Server struct {
	opts   Options
	engine *gin.Engine
	group  singleflight.Group

	mu       sync.Mutex
	state    State
	server   *http.Server
	listener net.Listener
}

// New creates a callback listener. It does not bind until Start is called.
func New(opts Options) *Server {
	if strings.TrimSpace(opts.BindAddress) == "" {
		opts.BindAddress = DefaultBindAddress
	}
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = "localhost"
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = DefaultExchangeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{opts: opts}
	s.engine = s.buildEngine()
	return s
}

// Start binds the listener and serves requests in the background.
// A bind failure is logged and returned; it never terminates the process.
// Calling Start while already listening logs a warning and returns nil.
//
// Returns:
//   - error: An *antigravity.AuthError of kind listener_failed if the socket cannot be bound
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateListening {
		log.Warnf("callback listener: already listening on %s", s.listener.Addr())
		return nil
	}

	addr := net.JoinHostPort(s.opts.BindAddress, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		authErr := antigravity.NewAuthError(antigravity.KindListenerFailure, fmt.Sprintf("failed to listen on %s", addr), err)
		log.WithField("kind", authErr.Kind).Errorf("callback listener: %v", err)
		return authErr
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = srv
	s.listener = ln
	s.state = StateListening

	go s.serve(srv, ln)

	log.Infof("callback listener: listening on http://%s", ln.Addr())
	log.Infof("callback listener: OAuth setup page available at %s", s.SetupURL())
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	log.WithField("kind", antigravity.KindListenerFailure).Errorf("callback listener: serve error: %v", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == srv {
		s.server = nil
		s.listener = nil
		s.state = StateStopped
	}
}

// Stop closes the listener and all open connections immediately. In-flight exchanges
// are not awaited. Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateListening || s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	s.listener = nil
	s.state = StateStopped
	log.Info("callback listener: stopped")
	if err != nil {
		return fmt.Errorf("callback listener: close: %w", err)
	}
	return nil
}

// State reports the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// SetupURL is the advertised address of the setup page.
func (s *Server) SetupURL() string {
	return fmt.Sprintf("http://%s/auth/start", net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port)))
}

// Handler exposes the routing engine, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
