package nextgen

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/httpclient"
	"github.com/Checker-Finance/nextgen-api/internal/metrics"
)

// defaultExpiresIn applies when the token response omits expires_in.
const defaultExpiresIn = 3600

// maxExpiresIn is the largest lifetime, in seconds, a time.Duration can hold.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   *seconds `json:"expires_in"`
}

// seconds accepts both 3600 and "3600".
type seconds float64

func (s *seconds) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*s = seconds(n)
	return nil
}

// TokenManager owns one cached bearer token and refreshes it lazily.
// The check-and-refresh sequence is serialized, so concurrent callers
// holding a stale token trigger a single refresh.
type TokenManager struct {
	cfg    Config
	exec   *httpclient.Executor
	logger *zap.Logger
	now    func() time.Time
	closed atomic.Bool

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenManager creates a TokenManager for cfg sending through exec.
func NewTokenManager(cfg Config, exec *httpclient.Executor, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		cfg:    cfg,
		exec:   exec,
		logger: logger,
		now:    time.Now,
	}
}

// AuthHeaders returns the Authorization header (and x-ng-sessionid when
// configured), refreshing the token first if it is missing or expired.
func (m *TokenManager) AuthHeaders(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validLocked() {
		if m.token == "" {
			m.logger.Debug("nextgen.auth.token_missing")
		} else {
			m.logger.Debug("nextgen.auth.token_expired", zap.Time("expired_at", m.expiresAt))
		}
		if err := m.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	h := make(http.Header, 2)
	h.Set("Authorization", "Bearer "+m.token)
	if m.cfg.SessionID != "" {
		h.Set(SessionIDHeader, m.cfg.SessionID)
	}
	return h, nil
}

// Refresh unconditionally fetches a new token. On failure the previous
// token state is left untouched.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

// Authenticate forces a refresh and reports whether a valid token is now held.
func (m *TokenManager) Authenticate(ctx context.Context) bool {
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("nextgen.auth.authenticate_failed", zap.Error(err))
		return false
	}
	return m.IsAuthenticated()
}

// Revoke clears the cached token locally. NextGen exposes no revoke endpoint.
func (m *TokenManager) Revoke() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	m.logger.Info("nextgen.auth.token_revoked")
}

// IsAuthenticated reports whether a token is cached and expires strictly in the future.
func (m *TokenManager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

func (m *TokenManager) validLocked() bool {
	return m.token != "" && m.now().Before(m.expiresAt)
}

// close makes later refreshes fail with ErrClosed instead of reaching the network.
func (m *TokenManager) close() {
	m.closed.Store(true)
}

func (m *TokenManager) refreshLocked(ctx context.Context) error {
	if m.closed.Load() {
		return wrapError(KindConfiguration, ErrClosed, "refresh token")
	}
	token, expiresIn, err := m.fetchToken(ctx)
	if err != nil {
		metrics.IncTokenRefresh("failure")
		m.logger.Error("nextgen.auth.token_refresh_failed",
			zap.String("site_id", m.cfg.SiteID),
			zap.Error(err))
		return err
	}

	m.token = token
	m.expiresAt = m.now().Add(expiresIn)
	metrics.IncTokenRefresh("success")

	m.logger.Info("nextgen.auth.token_refreshed",
		zap.String("site_id", m.cfg.SiteID),
		zap.Duration("expires_in", expiresIn),
		zap.Time("expires_at", m.expiresAt))
	return nil
}

// fetchToken performs the form-encoded token request.
func (m *TokenManager) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)
	form.Set("site_id", m.cfg.SiteID)
	form.Set("grant_type", string(m.cfg.GrantType))
	if m.cfg.GrantType == GrantPassword {
		form.Set("username", m.cfg.Username)
		form.Set("password", m.cfg.Password)
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", 0, wrapError(KindAuthentication, err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", m.cfg.AcceptEncoding)

	res, err := m.exec.Do(ctx, req, "", "oauth.token")
	if err != nil {
		return "", 0, wrapError(KindAuthentication, err, "failed to refresh token")
	}

	if res.StatusCode != http.StatusOK {
		return "", 0, &Error{
			Kind:       KindAuthentication,
			Message:    "token request failed with status " + strconv.Itoa(res.StatusCode),
			StatusCode: res.StatusCode,
			Body:       res.Body,
			Data:       parseErrorBody(res.Body),
		}
	}

	if res.DecodeErr != nil {
		return "", 0, &Error{
			Kind:       KindAuthentication,
			Message:    "decode token response",
			StatusCode: res.StatusCode,
			Body:       res.Body,
			Err:        res.DecodeErr,
		}
	}
	var tr tokenResponse
	if err := json.Unmarshal(res.Body, &tr); err != nil {
		return "", 0, &Error{
			Kind:       KindAuthentication,
			Message:    "decode token response",
			StatusCode: res.StatusCode,
			Body:       res.Body,
			Err:        err,
		}
	}
	if tr.AccessToken == "" {
		return "", 0, &Error{
			Kind:       KindAuthentication,
			Message:    "no access_token in response",
			StatusCode: res.StatusCode,
			Body:       res.Body,
		}
	}

	expiresIn := float64(defaultExpiresIn)
	if tr.ExpiresIn != nil {
		expiresIn = float64(*tr.ExpiresIn)
	}
	// Also rejects NaN.
	if !(expiresIn > 0 && expiresIn <= float64(maxExpiresIn)) {
		return "", 0, &Error{
			Kind:       KindAuthentication,
			Message:    "invalid expires_in " + strconv.FormatFloat(expiresIn, 'f', -1, 64),
			StatusCode: res.StatusCode,
			Body:       res.Body,
		}
	}
	return tr.AccessToken, time.Duration(expiresIn * float64(time.Second)), nil
}
