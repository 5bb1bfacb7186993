package nextgen

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeNextGen serves the OAuth token endpoint at /oauth/token and delegates
// everything under /api to api.
type fakeNextGen struct {
	srv *httptest.Server

	tokenCalls atomic.Int32
	apiCalls   atomic.Int32

	mu         sync.Mutex
	tokenForms []url.Values
	lastAPIReq *http.Request
	tokenFn    func(w http.ResponseWriter, n int32)
	api        http.HandlerFunc
}

func newFakeNextGen(t *testing.T) *fakeNextGen {
	t.Helper()
	f := &fakeNextGen{}
	f.tokenFn = func(w http.ResponseWriter, n int32) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("tok-%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.tokenForms = append(f.tokenForms, r.PostForm)
		fn := f.tokenFn
		f.mu.Unlock()
		fn(w, n)
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		f.mu.Lock()
		f.lastAPIReq = r.Clone(r.Context())
		h := f.api
		f.mu.Unlock()
		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeNextGen) setAPI(h http.HandlerFunc) {
	f.mu.Lock()
	f.api = h
	f.mu.Unlock()
}

func (f *fakeNextGen) setToken(fn func(w http.ResponseWriter, n int32)) {
	f.mu.Lock()
	f.tokenFn = fn
	f.mu.Unlock()
}

func (f *fakeNextGen) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAPIReq
}

func (f *fakeNextGen) config() Config {
	cfg := DefaultConfig()
	cfg.ClientID = "client-1234567890"
	cfg.ClientSecret = "secret"
	cfg.SiteID = "site-1"
	cfg.BaseURL = f.srv.URL + "/api"
	cfg.TokenURL = f.srv.URL + "/oauth/token"
	cfg.Timeout = 5 * time.Second
	cfg.RateLimitRequests = 0
	return cfg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testClock is a settable clock for expiry tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T, f *fakeNextGen, opts ...Option) *Client {
	t.Helper()
	c, err := New(f.config(), zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fakeNextGen) forms() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.tokenForms...)
}
