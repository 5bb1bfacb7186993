package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/nextgen-api/internal/metrics"
	"github.com/Checker-Finance/nextgen-api/internal/rate"
)

// Result is a fully read, content-decoded HTTP response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	// DecodeErr is set when the Content-Encoding could not be reversed.
	// Body then holds the raw bytes as received.
	DecodeErr error
}

// Executor sends single HTTP requests with optional pacing, metrics and
// body decoding. It never retries and never interprets status codes.
type Executor struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
	tag     string
}

// New creates an Executor. rateMgr may be nil to disable pacing.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, tag string) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		tag:     tag,
	}
}

// HTTPClient returns the underlying client.
func (e *Executor) HTTPClient() *http.Client {
	return e.http
}

// Do waits for the limiter scoped by rateLimitKey (skipped when empty), sends
// req once and reads the whole body. op labels logs and metrics.
// Only transport and read failures are returned as errors; a body that
// cannot be decoded is reported through Result.DecodeErr.
func (e *Executor) Do(ctx context.Context, req *http.Request, rateLimitKey, op string) (*Result, error) {
	if e.rateMgr != nil && rateLimitKey != "" {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	resp, err := e.http.Do(req.WithContext(ctx))
	if err != nil {
		metrics.IncRequest(op, req.Method, "error")
		e.logger.Warn(e.tag+".http_failed",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	metrics.IncRequest(op, req.Method, strconv.Itoa(resp.StatusCode))
	metrics.ObserveDuration(metrics.RequestDuration, start, op, req.Method)
	if err != nil {
		e.logger.Warn(e.tag+".read_failed",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return nil, fmt.Errorf("read response body: %w", err)
	}

	body := raw
	var decodeErr error
	if !resp.Uncompressed {
		decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
		if err != nil {
			e.logger.Warn(e.tag+".decode_failed",
				zap.String("op", op),
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Error(err))
			decodeErr = fmt.Errorf("decode response body: %w", err)
		} else {
			body = decoded
		}
	}

	e.logger.Debug(e.tag+".http_done",
		zap.String("op", op),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    elapsed,
		DecodeErr:  decodeErr,
	}, nil
}
