package nextgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/httpclient"
)

// Request describes one authenticated API call.
type Request struct {
	// Name labels the call in logs and metrics (e.g. "master.codes").
	// Defaults to "<METHOD> <endpoint>".
	Name     string
	Method   string
	Endpoint string
	Query    url.Values
	// JSON, when non-nil, is marshaled as the request body.
	JSON   any
	Header http.Header
	// Timeout overrides Config.Timeout for this call when positive.
	Timeout time.Duration
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// JSON is true when the server declared application/json and the body parsed.
	JSON bool
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode unmarshals a JSON response into out.
func (r *Response) Decode(out any) error {
	if !r.JSON {
		return &Error{Kind: KindAPI, Message: "expected JSON response", StatusCode: r.StatusCode, Body: r.Body}
	}
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &Error{Kind: KindAPI, Message: "unexpected response shape", StatusCode: r.StatusCode, Body: r.Body, Err: err}
	}
	return nil
}

// authenticator is the part of TokenManager the dispatcher depends on.
type authenticator interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
	Revoke()
}

// Dispatcher turns Requests into Responses or typed errors.
type Dispatcher struct {
	cfg    Config
	auth   authenticator
	exec   *httpclient.Executor
	logger *zap.Logger
	closed atomic.Bool
}

// NewDispatcher creates a Dispatcher for cfg. cfg is expected to be validated.
func NewDispatcher(cfg Config, auth authenticator, exec *httpclient.Executor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		auth:   auth,
		exec:   exec,
		logger: logger,
	}
}

// Execute sends req and classifies the outcome. It performs no retries;
// a 401 clears the cached token so the next call refreshes.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Response, error) {
	if d.closed.Load() {
		return nil, wrapError(KindConfiguration, ErrClosed, "dispatch %s", req.Endpoint)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	name := req.Name
	if name == "" {
		name = method + " " + req.Endpoint
	}

	target, err := d.buildURL(req.Endpoint, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, wrapError(KindValidation, err, "encode request body")
		}
		body = bytes.NewReader(data)
	}

	authHeaders, err := d.auth.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	timeout := d.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, wrapError(KindValidation, err, "build request")
	}
	httpReq.Header = d.mergeHeaders(authHeaders, req.Header, req.JSON != nil)

	requestID := uuid.NewString()
	log := d.logger.With(
		zap.String("request_id", requestID),
		zap.String("op", name),
		zap.String("method", method),
		zap.String("url", target))
	log.Debug("nextgen.request.sending", zap.Strings("headers", headerNames(httpReq.Header)))

	res, err := d.exec.Do(ctx, httpReq, d.cfg.SiteID, name)
	if err != nil {
		log.Warn("nextgen.request.network_error", zap.Error(err))
		return nil, networkError(err)
	}

	out, err := d.classify(res)
	if err != nil {
		log.Warn("nextgen.request.failed",
			zap.Int("status", res.StatusCode),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(err))
		return nil, err
	}
	log.Debug("nextgen.request.succeeded",
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", res.Elapsed))
	return out, nil
}

// close makes subsequent Execute calls fail with ErrClosed.
func (d *Dispatcher) close() {
	d.closed.Store(true)
}

// buildURL joins the base URL and endpoint with exactly one slash.
func (d *Dispatcher) buildURL(endpoint string, query url.Values) (string, error) {
	joined := joinURL(d.cfg.BaseURL, endpoint)
	if len(query) == 0 {
		return joined, nil
	}
	u, err := url.Parse(joined)
	if err != nil {
		return "", wrapError(KindValidation, err, "invalid endpoint %q", endpoint)
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func joinURL(base, endpoint string) string {
	base = strings.TrimRight(base, "/")
	endpoint = strings.TrimLeft(endpoint, "/")
	if endpoint == "" {
		return base
	}
	return base + "/" + endpoint
}

// mergeHeaders layers, in increasing precedence: defaults, auth, caller
// headers and the JSON content type.
func (d *Dispatcher) mergeHeaders(auth, extra http.Header, jsonBody bool) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", d.cfg.UserAgent)
	h.Set("Accept", d.cfg.Accept)
	h.Set("Accept-Encoding", d.cfg.AcceptEncoding)
	h.Set("Connection", d.cfg.Connection)
	for _, layer := range []http.Header{auth, extra} {
		for k, vs := range layer {
			h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
	if jsonBody {
		h.Set("Content-Type", "application/json")
	}
	return h
}

func (d *Dispatcher) classify(res *httpclient.Result) (*Response, error) {
	status := res.StatusCode
	if status >= 200 && status < 300 {
		if res.DecodeErr != nil {
			return nil, &Error{Kind: KindAPI, Message: "undecodable response body", StatusCode: status, Body: res.Body, Err: res.DecodeErr}
		}
		return successResponse(res)
	}

	apiErr := &Error{
		StatusCode: status,
		Body:       res.Body,
		Data:       parseErrorBody(res.Body),
	}
	msg := serverMessage(apiErr.Data)

	switch {
	case status == http.StatusUnauthorized:
		d.auth.Revoke()
		apiErr.Kind = KindAuthentication
		apiErr.Message = "unauthorized"
	case status == http.StatusForbidden:
		apiErr.Kind = KindClient
		apiErr.Message = "forbidden"
	case status == http.StatusNotFound:
		apiErr.Kind = KindClient
		apiErr.Message = "not found"
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimit
		apiErr.Message = "rate limit exceeded"
	case status >= 400 && status < 500:
		apiErr.Kind = KindClient
		apiErr.Message = orDefault(msg, fmt.Sprintf("client error: %d", status))
	case status >= 500 && status < 600:
		apiErr.Kind = KindServer
		apiErr.Message = orDefault(msg, fmt.Sprintf("server error: %d", status))
	default:
		apiErr.Kind = KindAPI
		apiErr.Message = fmt.Sprintf("unexpected status code: %d", status)
	}
	return nil, apiErr
}

func successResponse(res *httpclient.Result) (*Response, error) {
	out := &Response{StatusCode: res.StatusCode, Header: res.Header, Body: res.Body}
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return out, nil
	}
	if len(bytes.TrimSpace(res.Body)) > 0 && !json.Valid(res.Body) {
		return nil, &Error{
			Kind:       KindAPI,
			Message:    "invalid JSON in response: " + string(res.Body),
			StatusCode: res.StatusCode,
			Body:       res.Body,
		}
	}
	out.JSON = true
	return out, nil
}

func networkError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return wrapError(KindNetwork, err, "request timed out")
	case errors.Is(err, context.Canceled):
		return wrapError(KindNetwork, err, "request canceled")
	default:
		return wrapError(KindNetwork, err, "request failed")
	}
}

func headerNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	return names
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
