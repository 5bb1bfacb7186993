package nextgen

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/httpclient"
	"github.com/Checker-Finance/nextgen-api/internal/rate"
	"github.com/Checker-Finance/nextgen-api/pkg/utils"
)

// Client is the entry point to the NextGen API. It owns the HTTP transport;
// call Close when done.
type Client struct {
	cfg        Config
	logger     *zap.Logger
	httpClient *http.Client
	rateMgr    *rate.Manager
	now        func() time.Time

	tokens     *TokenManager
	dispatcher *Dispatcher
	master     *MasterService
	auth       *AuthService

	closeOnce sync.Once
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport-owning HTTP client. Its TLS and
// redirect settings are used as-is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces time.Now for token expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRateLimiter shares a limiter manager between clients. Calls are keyed by site ID.
func WithRateLimiter(m *rate.Manager) Option {
	return func(c *Client) { c.rateMgr = m }
}

// ClientInfo describes a client without exposing secrets.
type ClientInfo struct {
	BaseURL         string        `json:"base_url"`
	ClientID        string        `json:"client_id"`
	SiteID          string        `json:"site_id"`
	GrantType       GrantType     `json:"grant_type"`
	IsAuthenticated bool          `json:"is_authenticated"`
	Timeout         time.Duration `json:"timeout"`
}

// New validates cfg and builds a Client. No network call is made.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(cfg)
	}
	if c.rateMgr == nil && cfg.RateLimitRequests > 0 {
		c.rateMgr = rate.NewManager(rate.Config{
			Requests: cfg.RateLimitRequests,
			Per:      cfg.RateLimitPeriod,
		})
	}

	exec := httpclient.New(logger, c.rateMgr, c.httpClient, "nextgen")
	c.tokens = NewTokenManager(cfg, exec, logger)
	c.tokens.now = c.now
	c.dispatcher = NewDispatcher(cfg, c.tokens, exec, logger)
	c.master = &MasterService{d: c.dispatcher, logger: logger}
	c.auth = &AuthService{d: c.dispatcher, logger: logger}

	logger.Info("nextgen.client.initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("site_id", cfg.SiteID),
		zap.String("grant_type", string(cfg.GrantType)))
	return c, nil
}

func newHTTPClient(cfg Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	// Timeouts come from the per-request context.
	hc := &http.Client{Transport: transport}
	if cfg.DisableRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		hc.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	}
	return hc
}

// Master returns the /master endpoint family.
func (c *Client) Master() *MasterService { return c.master }

// Auth returns the /auth-services endpoint family.
func (c *Client) Auth() *AuthService { return c.auth }

// Tokens exposes the token manager.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// Do executes an arbitrary authenticated request.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.dispatcher.Execute(ctx, req)
}

// Authenticate obtains a fresh token; failure is logged and reported as false.
func (c *Client) Authenticate(ctx context.Context) bool {
	ok := c.tokens.Authenticate(ctx)
	if ok {
		c.logger.Info("nextgen.client.authenticated")
	} else {
		c.logger.Error("nextgen.client.authentication_failed")
	}
	return ok
}

// IsAuthenticated reports whether a non-expired token is cached.
func (c *Client) IsAuthenticated() bool {
	return c.tokens.IsAuthenticated()
}

// AuthHeaders returns current authentication headers, refreshing if needed.
func (c *Client) AuthHeaders(ctx context.Context) (http.Header, error) {
	return c.tokens.AuthHeaders(ctx)
}

// TestConnection fetches the master code list and reports success.
func (c *Client) TestConnection(ctx context.Context) bool {
	codes, err := c.master.Codes(ctx)
	if err != nil {
		c.logger.Error("nextgen.client.connection_test_failed", zap.Error(err))
		return false
	}
	c.logger.Info("nextgen.client.connection_test_ok", zap.Int("categories", codes.TotalCount))
	return true
}

// Info summarizes the configuration with the client ID masked.
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		BaseURL:         c.cfg.BaseURL,
		ClientID:        utils.MaskID(c.cfg.ClientID, 8),
		SiteID:          c.cfg.SiteID,
		GrantType:       c.cfg.GrantType,
		IsAuthenticated: c.IsAuthenticated(),
		Timeout:         c.cfg.Timeout,
	}
}

// Close releases pooled connections. Later calls fail with ErrClosed.
// Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.dispatcher.close()
		c.tokens.close()
		c.httpClient.CloseIdleConnections()
		c.logger.Info("nextgen.client.closed")
	})
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("nextgen.Client(base_url=%q, authenticated=%t)", c.cfg.BaseURL, c.IsAuthenticated())
}
