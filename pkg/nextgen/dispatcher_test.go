package nextgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/httpclient"
)

type stubAuth struct {
	headers http.Header
	err     error
	revoked atomic.Int32
}

func (s *stubAuth) AuthHeaders(context.Context) (http.Header, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.headers.Clone(), nil
}

func (s *stubAuth) Revoke() { s.revoked.Add(1) }

func newTestDispatcher(t *testing.T, h http.HandlerFunc) (*Dispatcher, *stubAuth) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.ClientID, cfg.ClientSecret, cfg.SiteID = "id", "secret", "site"
	cfg.BaseURL = srv.URL + "/api"
	cfg.Timeout = 2 * time.Second

	auth := &stubAuth{headers: http.Header{"Authorization": {"Bearer abc"}}}
	exec := httpclient.New(zap.NewNop(), nil, srv.Client(), "test")
	return NewDispatcher(cfg.withDefaults(), auth, exec, zap.NewNop()), auth
}

// ─── Status classification ───────────────────────────────────────────────────

func TestDispatcher_Classification(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantErr     bool
		kind        Kind
		msg         string
		revoked     bool
	}{
		{name: "200 json", status: 200, contentType: "application/json", body: `{"ok":true}`},
		{name: "200 text", status: 200, contentType: "text/plain", body: "hello"},
		{name: "401", status: 401, body: `{"message":"expired"}`, wantErr: true, kind: KindAuthentication, msg: "unauthorized", revoked: true},
		{name: "403", status: 403, wantErr: true, kind: KindClient, msg: "forbidden"},
		{name: "404", status: 404, wantErr: true, kind: KindClient, msg: "not found"},
		{name: "429", status: 429, wantErr: true, kind: KindRateLimit, msg: "rate limit exceeded"},
		{name: "418 with message", status: 418, contentType: "application/json", body: `{"message":"short and stout"}`, wantErr: true, kind: KindClient, msg: "short and stout"},
		{name: "418 without message", status: 418, body: "teapot", wantErr: true, kind: KindClient, msg: "client error: 418"},
		{name: "500", status: 500, body: "boom", wantErr: true, kind: KindServer, msg: "server error: 500"},
		{name: "503 with detail", status: 503, contentType: "application/json", body: `{"detail":"maintenance"}`, wantErr: true, kind: KindServer, msg: "maintenance"},
		{name: "304", status: 304, wantErr: true, kind: KindAPI, msg: "unexpected status code: 304"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, auth := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})

			resp, err := d.Execute(context.Background(), Request{Endpoint: "/thing"})
			if !tc.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tc.status, resp.StatusCode)
				assert.Equal(t, tc.body, resp.Text())
				assert.Equal(t, tc.contentType == "application/json", resp.JSON)
				return
			}

			require.Error(t, err)
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.msg, apiErr.Message)
			assert.Equal(t, tc.revoked, auth.revoked.Load() == 1)
		})
	}
}

func TestDispatcher_UndecodableBody(t *testing.T) {
	t.Run("401 still revokes", func(t *testing.T) {
		d, auth := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "compress")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "\x1f\x9dxx")
		})

		_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, KindAuthentication, apiErr.Kind)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, int32(1), auth.revoked.Load())
	})

	t.Run("2xx is an API error", func(t *testing.T) {
		d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "compress")
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, "xx")
		})

		_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, KindAPI, apiErr.Kind)
		assert.Equal(t, http.StatusOK, apiErr.StatusCode)
		assert.Contains(t, apiErr.Error(), "undecodable response body")
	})
}

func TestDispatcher_ErrorBodyAttached(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "plain failure")
	})

	_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "plain failure", string(apiErr.Body))
	assert.Equal(t, map[string]any{"error_text": "plain failure"}, apiErr.Data)
}

func TestDispatcher_InvalidDeclaredJSON(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, "{broken")
	})

	_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAPI))
	assert.Contains(t, err.Error(), "invalid JSON in response: {broken")
}

func TestDispatcher_EmptyJSONBody(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	})

	resp, err := d.Execute(context.Background(), Request{Endpoint: "x"})
	require.NoError(t, err)
	assert.True(t, resp.JSON)
	var out map[string]any
	assert.NoError(t, resp.Decode(&out))
}

// ─── URL joining ─────────────────────────────────────────────────────────────

func TestJoinURL(t *testing.T) {
	for _, tc := range []struct{ base, endpoint string }{
		{"https://x/api", "/master/codes"},
		{"https://x/api", "master/codes"},
		{"https://x/api/", "/master/codes"},
		{"https://x/api/", "master/codes"},
	} {
		assert.Equal(t, "https://x/api/master/codes", joinURL(tc.base, tc.endpoint), "%s + %s", tc.base, tc.endpoint)
	}
	assert.Equal(t, "https://x/api", joinURL("https://x/api/", ""))
}

func TestDispatcher_PathAndQuery(t *testing.T) {
	var got *url.URL
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL
		w.WriteHeader(http.StatusOK)
	})

	_, err := d.Execute(context.Background(), Request{
		Endpoint: "/master/codes/ALLERGY",
		Query:    url.Values{"search": {"pea nut"}, "limit": {"5"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/master/codes/ALLERGY", got.Path)
	assert.Equal(t, "pea nut", got.Query().Get("search"))
	assert.Equal(t, "5", got.Query().Get("limit"))
}

// ─── Headers and body ────────────────────────────────────────────────────────

func TestDispatcher_Headers(t *testing.T) {
	var got http.Header
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	_, err := d.Execute(context.Background(), Request{
		Endpoint: "x",
		Header:   http.Header{"Accept": {"application/json"}, "X-Trace": {"t1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, DefaultAcceptEncoding, got.Get("Accept-Encoding"))
	assert.Equal(t, "application/json", got.Get("Accept"), "caller headers override defaults")
	assert.Equal(t, "t1", got.Get("X-Trace"))
	assert.Empty(t, got.Get("Content-Type"))
}

func TestDispatcher_JSONBody(t *testing.T) {
	var (
		method string
		ct     string
		body   map[string]string
	)
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ct = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})

	_, err := d.Execute(context.Background(), Request{
		Method:   http.MethodPost,
		Endpoint: "session/validate",
		JSON:     map[string]string{"session_token": "s"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, "s", body["session_token"])
}

func TestDispatcher_UnencodableBody(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request must not be sent")
	})
	_, err := d.Execute(context.Background(), Request{Method: http.MethodPost, Endpoint: "x", JSON: make(chan int)})
	assert.Equal(t, KindValidation, KindOf(err))
}

// ─── Failure propagation ─────────────────────────────────────────────────────

func TestDispatcher_AuthErrorPropagates(t *testing.T) {
	var calls atomic.Int32
	d, auth := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})
	auth.err = &Error{Kind: KindAuthentication, Message: "no access_token in response"}

	_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
	assert.Same(t, auth.err, err)
	assert.Zero(t, calls.Load())
}

func TestDispatcher_Timeout(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	_, err := d.Execute(context.Background(), Request{Endpoint: "slow", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "request timed out")
}

func TestDispatcher_Canceled(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Execute(ctx, Request{Endpoint: "x"})
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDispatcher_Closed(t *testing.T) {
	d, _ := newTestDispatcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	d.close()

	_, err := d.Execute(context.Background(), Request{Endpoint: "x"})
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, KindConfiguration, KindOf(err))
}

// ─── Response helpers ────────────────────────────────────────────────────────

func TestResponse_Decode(t *testing.T) {
	r := &Response{StatusCode: 200, Body: []byte(`{"a":1}`), JSON: true}
	var out struct{ A int }
	require.NoError(t, r.Decode(&out))
	assert.Equal(t, 1, out.A)

	var list []string
	assert.Equal(t, KindAPI, KindOf(r.Decode(&list)))

	text := &Response{StatusCode: 200, Body: []byte("hi")}
	assert.Equal(t, KindAPI, KindOf(text.Decode(&out)))
}
