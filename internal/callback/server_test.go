package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/oauth-callback/internal/auth/antigravity"
	"github.com/router-for-me/oauth-callback/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu      sync.Mutex
	records []*store.Record
	err     error
}

func (m *memStore) Initialize(context.Context) error { return nil }

func (m *memStore) AddAccount(_ context.Context, record *store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memStore) ListAccounts(context.Context) ([]*store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*store.Record(nil), m.records...), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type exchangeFunc func(ctx context.Context, code string) (*antigravity.Result, error)

func (f exchangeFunc) Exchange(ctx context.Context, code string) (*antigravity.Result, error) {
	return f(ctx, code)
}

// provider stubs the token and userinfo endpoints.
type provider struct {
	tokenStatus   int
	tokenBody     string
	userInfoCalls atomic.Int32
	server        *httptest.Server
}

func newProvider(t *testing.T, tokenStatus int, tokenBody string) *provider {
	t.Helper()
	p := &provider{tokenStatus: tokenStatus, tokenBody: tokenBody}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_, _ = io.WriteString(w, p.tokenBody)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.userInfoCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"email":"a@x.com","name":"Ada"}`)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *provider) client() *antigravity.Client {
	return antigravity.NewClient(antigravity.ClientOptions{
		ClientID:     antigravity.ClientID,
		ClientSecret: "secret",
		RedirectURI:  antigravity.RedirectURI("localhost", 8888),
		TokenURL:     p.server.URL + "/token",
		UserInfoURL:  p.server.URL + "/userinfo",
		HTTPClient:   p.server.Client(),
		Timeout:      2 * time.Second,
	})
}

func newTestServer(ex Exchanger, st store.Store) *Server {
	return New(Options{
		Host:      "localhost",
		Port:      8888,
		Builder:   antigravity.NewAuthURLBuilder(antigravity.ClientID, "localhost", 8888),
		Exchanger: ex,
		Store:     st,
	})
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallback_SuccessfulExchangeStoresOneRecord(t *testing.T) {
	p := newProvider(t, http.StatusOK, `{"access_token":"ya29.a","refresh_token":"1//r","token_type":"Bearer","expires_in":3599}`)
	st := &memStore{}
	srv := newTestServer(p.client(), st)

	before := time.Now().Unix()
	rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback?code=4/0AbCd")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization Successful")
	assert.Contains(t, rec.Body.String(), "a@x.com")

	records, _ := st.ListAccounts(context.Background())
	require.Len(t, records, 1)
	got := records[0]
	assert.Equal(t, "google", got.Provider)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "1//r", got.Token.RefreshToken)
	assert.InDelta(t, before+3599, got.Token.ExpiryTimestamp, 1)
	assert.Equal(t, got.CreatedAt, got.LastUsed)
}

func TestCallback_TokenEndpointFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "invalid grant", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`},
		{name: "unauthorized client", status: http.StatusUnauthorized, body: `{"error":"invalid_client","error_description":"Unauthorized"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t, tt.status, tt.body)
			st := &memStore{}
			srv := newTestServer(p.client(), st)

			rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback?code=bad")

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := html.UnescapeString(rec.Body.String())
			assert.Contains(t, body, "Token exchange failed: "+tt.body)
			assert.Contains(t, body, `href="/auth/start"`)
			assert.Equal(t, 0, st.count())
			assert.Equal(t, int32(0), p.userInfoCalls.Load())
		})
	}
}

func TestCallback_MissingParameters(t *testing.T) {
	st := &memStore{}
	srv := newTestServer(exchangeFunc(func(context.Context, string) (*antigravity.Result, error) {
		t.Fatal("exchange must not run")
		return nil, nil
	}), st)

	rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing code parameter", rec.Body.String())
	assert.Equal(t, 0, st.count())
}

func TestCallback_ProviderDenied(t *testing.T) {
	st := &memStore{}
	srv := newTestServer(exchangeFunc(func(context.Context, string) (*antigravity.Result, error) {
		t.Fatal("exchange must not run")
		return nil, nil
	}), st)

	rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback?error=access_denied")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_denied")
	assert.Equal(t, 0, st.count())

	rec = do(t, srv.Handler(), http.MethodGet, "/oauth-callback?error=%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestCallback_CodeWinsOverError(t *testing.T) {
	st := &memStore{}
	srv := newTestServer(exchangeFunc(func(_ context.Context, code string) (*antigravity.Result, error) {
		return &antigravity.Result{Identity: antigravity.Identity{Email: "b@x.com"}, CapturedAt: time.Now()}, nil
	}), st)

	rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback?code=abc&error=access_denied")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, st.count())
}

func TestCallback_FailureKinds(t *testing.T) {
	tests := []struct {
		name       string
		exchangeEr error
		storeErr   error
		wantStatus int
		wantText   string
	}{
		{
			name:       "identity resolution",
			exchangeEr: antigravity.NewAuthError(antigravity.KindIdentityResolution, "Failed to fetch user info", nil),
			wantStatus: http.StatusInternalServerError,
			wantText:   "Failed to fetch user info",
		},
		{
			name:       "timeout",
			exchangeEr: antigravity.NewAuthError(antigravity.KindTimeout, "token exchange timed out after 10s", context.DeadlineExceeded),
			wantStatus: http.StatusInternalServerError,
			wantText:   "timed out",
		},
		{
			name:       "plain error",
			exchangeEr: errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantText:   "connection reset",
		},
		{
			name:       "storage",
			storeErr:   errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantText:   "Failed to store account: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &memStore{err: tt.storeErr}
			srv := newTestServer(exchangeFunc(func(context.Context, string) (*antigravity.Result, error) {
				if tt.exchangeEr != nil {
					return nil, tt.exchangeEr
				}
				return &antigravity.Result{Identity: antigravity.Identity{Email: "a@x.com"}, CapturedAt: time.Now()}, nil
			}), st)

			rec := do(t, srv.Handler(), http.MethodGet, "/oauth-callback?code=abc")
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := html.UnescapeString(rec.Body.String())
			assert.Contains(t, body, tt.wantText)
			assert.Contains(t, body, "/auth/start")
			assert.Equal(t, 0, st.count())
		})
	}
}

func TestCallback_ConcurrentSameCodeExchangesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	st := &memStore{}
	srv := newTestServer(exchangeFunc(func(context.Context, string) (*antigravity.Result, error) {
		calls.Add(1)
		<-release
		return &antigravity.Result{Identity: antigravity.Identity{Email: "a@x.com"}, CapturedAt: time.Now()}, nil
	}), st)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	const n = 5
	statuses := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ts.Client().Get(ts.URL + "/oauth-callback?code=same")
			if err != nil {
				statuses <- 0
				return
			}
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()
	close(statuses)

	for status := range statuses {
		assert.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, st.count())
}

func TestAuthStart(t *testing.T) {
	srv := newTestServer(nil, &memStore{})
	rec := do(t, srv.Handler(), http.MethodGet, "/auth/start")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	authURL := antigravity.NewAuthURLBuilder(antigravity.ClientID, "localhost", 8888).URL()
	body := html.UnescapeString(rec.Body.String())
	assert.Contains(t, body, `href="`+authURL+`"`)
	assert.Contains(t, body, "<pre>"+authURL+"</pre>")
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	srv := newTestServer(nil, &memStore{})

	rec := do(t, srv.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"oauth-callback"}`, rec.Body.String())

	for _, target := range []string{"/", "/nope", "/health/", "/oauth-callback/extra"} {
		rec = do(t, srv.Handler(), http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "Not Found", rec.Body.String(), target)
	}
	rec = do(t, srv.Handler(), http.MethodPost, "/health")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Lifecycle(t *testing.T) {
	srv := New(Options{Host: "localhost", Port: 0, BindAddress: "127.0.0.1", Store: &memStore{}})
	assert.Equal(t, StateStopped, srv.State())
	require.NoError(t, srv.Stop())

	require.NoError(t, srv.Start())
	assert.Equal(t, StateListening, srv.State())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	require.NoError(t, srv.Start())
	assert.Equal(t, addr, srv.Addr())

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
	assert.Empty(t, srv.Addr())
	require.NoError(t, srv.Stop())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestServer_BindFailureIsReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := New(Options{Host: "localhost", Port: port, BindAddress: "127.0.0.1", Store: &memStore{}})
	err = srv.Start()
	require.Error(t, err)
	assert.Equal(t, antigravity.KindListenerFailure, antigravity.KindOf(err))
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_SetupURL(t *testing.T) {
	srv := New(Options{Host: "192.168.1.10", Port: 9090})
	assert.True(t, strings.HasSuffix(srv.SetupURL(), "192.168.1.10:9090/auth/start"))
}
