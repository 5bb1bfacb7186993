package nextgen

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/httpclient"
)

func newTestTokenManager(t *testing.T, f *fakeNextGen, clk *testClock, mutate ...func(*Config)) *TokenManager {
	t.Helper()
	cfg := f.config()
	for _, m := range mutate {
		m(&cfg)
	}
	exec := httpclient.New(zap.NewNop(), nil, f.srv.Client(), "test")
	m := NewTokenManager(cfg.withDefaults(), exec, zap.NewNop())
	m.now = clk.Now
	return m
}

// ─── Token request shape ─────────────────────────────────────────────────────

func TestTokenManager_ClientCredentialsForm(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock())

	require.NoError(t, m.Refresh(context.Background()))
	require.Len(t, f.forms(), 1)
	form := f.forms()[0]
	assert.Equal(t, "client-1234567890", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "site-1", form.Get("site_id"))
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.False(t, form.Has("username"))
	assert.False(t, form.Has("password"))
}

func TestTokenManager_PasswordGrantForm(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock(), func(c *Config) {
		c.GrantType = GrantPassword
		c.Username = "jdoe"
		c.Password = "pw"
	})

	require.NoError(t, m.Refresh(context.Background()))
	form := f.forms()[0]
	assert.Equal(t, "password", form.Get("grant_type"))
	assert.Equal(t, "jdoe", form.Get("username"))
	assert.Equal(t, "pw", form.Get("password"))
}

// ─── Headers ─────────────────────────────────────────────────────────────────

func TestTokenManager_AuthHeaders(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock())

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.Empty(t, h.Get(SessionIDHeader))
}

func TestTokenManager_AuthHeadersWithSession(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock(), func(c *Config) { c.SessionID = "sess-9" })

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-9", h.Get(SessionIDHeader))
}

func TestTokenManager_AuthHeadersReusesValidToken(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock())

	for i := 0; i < 5; i++ {
		_, err := m.AuthHeaders(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.tokenCalls.Load())
}

// ─── Expiry ──────────────────────────────────────────────────────────────────

func TestTokenManager_ExpiryBoundary(t *testing.T) {
	f := newFakeNextGen(t)
	clk := newTestClock()
	m := newTestTokenManager(t, f, clk)

	require.NoError(t, m.Refresh(context.Background()))
	assert.True(t, m.IsAuthenticated())

	clk.Advance(3599 * time.Second)
	assert.True(t, m.IsAuthenticated())

	clk.Advance(time.Second)
	assert.False(t, m.IsAuthenticated(), "token is invalid exactly at expiry")
	assert.EqualValues(t, 1, f.tokenCalls.Load(), "IsAuthenticated never refreshes")
}

func TestTokenManager_AuthHeadersRefreshesExpired(t *testing.T) {
	f := newFakeNextGen(t)
	clk := newTestClock()
	m := newTestTokenManager(t, f, clk)

	_, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	clk.Advance(time.Hour)

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-2", h.Get("Authorization"))
	assert.True(t, m.ExpiresAt().After(clk.Now()))
}

func TestTokenManager_ExpiresInDefaultAndString(t *testing.T) {
	f := newFakeNextGen(t)
	clk := newTestClock()
	m := newTestTokenManager(t, f, clk)

	f.setToken(func(w http.ResponseWriter, _ int32) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "a"})
	})
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, clk.Now().Add(time.Hour), m.ExpiresAt())

	f.setToken(func(w http.ResponseWriter, _ int32) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "b", "expires_in": "120"})
	})
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, clk.Now().Add(2*time.Minute), m.ExpiresAt())
}

// ─── Failures ────────────────────────────────────────────────────────────────

func TestTokenManager_MissingAccessTokenKeepsState(t *testing.T) {
	f := newFakeNextGen(t)
	clk := newTestClock()
	m := newTestTokenManager(t, f, clk)

	require.NoError(t, m.Refresh(context.Background()))
	before := m.ExpiresAt()

	f.setToken(func(w http.ResponseWriter, _ int32) {
		writeJSON(w, http.StatusOK, map[string]any{"token_type": "Bearer"})
	})
	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Contains(t, err.Error(), "no access_token")

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, before, m.ExpiresAt())
	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
}

func TestTokenManager_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler func(w http.ResponseWriter, n int32)
		status  int
		msg     string
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, _ int32) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_client"})
			},
			status: http.StatusBadRequest,
			msg:    "token request failed with status 400",
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ int32) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>"))
			},
			status: http.StatusOK,
			msg:    "decode token response",
		},
		{
			name: "non-positive expires_in",
			handler: func(w http.ResponseWriter, _ int32) {
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "x", "expires_in": 0})
			},
			status: http.StatusOK,
			msg:    "invalid expires_in",
		},
		{
			name: "expires_in beyond duration range",
			handler: func(w http.ResponseWriter, _ int32) {
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_in": int64(10000000000)})
			},
			status: http.StatusOK,
			msg:    "invalid expires_in 10000000000",
		},
		{
			name: "expires_in as huge string",
			handler: func(w http.ResponseWriter, _ int32) {
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_in": "1e30"})
			},
			status: http.StatusOK,
			msg:    "invalid expires_in",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeNextGen(t)
			f.setToken(tc.handler)
			m := newTestTokenManager(t, f, newTestClock())

			_, err := m.AuthHeaders(context.Background())
			require.Error(t, err)
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, KindAuthentication, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Error(), tc.msg)
			assert.False(t, m.IsAuthenticated())
		})
	}
}

func TestTokenManager_TransportFailure(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock())
	f.srv.Close()

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.False(t, m.Authenticate(context.Background()))
}

// ─── Revoke and concurrency ──────────────────────────────────────────────────

func TestTokenManager_Revoke(t *testing.T) {
	f := newFakeNextGen(t)
	m := newTestTokenManager(t, f, newTestClock())

	require.True(t, m.Authenticate(context.Background()))
	m.Revoke()
	assert.False(t, m.IsAuthenticated())
	assert.True(t, m.ExpiresAt().IsZero())

	_, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.tokenCalls.Load())
}

func TestTokenManager_ConcurrentCallersRefreshOnce(t *testing.T) {
	f := newFakeNextGen(t)
	f.setToken(func(w http.ResponseWriter, n int32) {
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "shared", "expires_in": 60})
	})
	m := newTestTokenManager(t, f, newTestClock())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.AuthHeaders(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Bearer shared", h.Get("Authorization"))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, f.tokenCalls.Load())
}
