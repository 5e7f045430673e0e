package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/zoho-bulk/internal/metrics"
	"github.com/Checker-Finance/zoho-bulk/internal/rate"
)

// authScheme is the Authorization prefix the CRM API expects instead of
// the usual Bearer.
const authScheme = "Zoho-oauthtoken"

// TokenSource supplies access tokens and supports a forced refresh after
// the API rejects one.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Executor handles rate-limited, authorized HTTP execution with JSON decoding.
//
// A 401 triggers exactly one forced token refresh and one retry; a second
// 401 surfaces like any other failure. No other status is retried: bulk
// operations are driven interactively and the operator decides whether to
// rerun.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	tokens       TokenSource
	venueTag     string
	errorHandler func(status int, body []byte) error
}

// New creates an Executor. errorHandler is called on failure responses to
// produce a venue-specific error. If nil, a default error is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	tokens TokenSource,
	venueTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		tokens:       tokens,
		venueTag:     venueTag,
		errorHandler: errorHandler,
	}
}

// Do executes an authorized request and returns the open 2xx response.
// The caller owns resp.Body. rateLimitKey scopes the rate limiter and the
// request metrics per endpoint class.
func (e *Executor) Do(ctx context.Context, method, rawURL string, body []byte, rateLimitKey string) (*http.Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	token, err := e.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := e.send(ctx, method, rawURL, body, token)
		if err != nil {
			metrics.IncZohoRequest(rateLimitKey, method, "transport_error")
			e.logger.Warn(e.venueTag+".http_failed",
				zap.String("url", rawURL),
				zap.Error(err))
			return nil, err
		}
		elapsed := time.Since(start)

		metrics.IncZohoRequest(rateLimitKey, method, strconv.Itoa(resp.StatusCode))
		metrics.ObserveDuration(metrics.ZohoRequestDuration, start, rateLimitKey, method)

		// The single retry: refresh the grant and replay once.
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = resp.Body.Close()
			e.logger.Warn(e.venueTag+".unauthorized_retrying",
				zap.String("url", rawURL))
			token, err = e.tokens.Refresh(ctx)
			if err != nil {
				return nil, fmt.Errorf("refresh after 401: %w", err)
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			e.logger.Warn(e.venueTag+".http_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", rawURL),
				zap.Duration("latency", elapsed))
			if e.errorHandler != nil {
				return nil, e.errorHandler(resp.StatusCode, respBody)
			}
			return nil, fmt.Errorf("%s returned %d", e.venueTag, resp.StatusCode)
		}

		e.logger.Debug(e.venueTag+".http_success",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return resp, nil
	}
}

// DoJSON executes the request and JSON-decodes the response body into out
// (skipped when out is nil or the body is empty).
func (e *Executor) DoJSON(ctx context.Context, method, rawURL string, body []byte, rateLimitKey string, out any) error {
	resp, err := e.Do(ctx, method, rawURL, body, rateLimitKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			e.logger.Warn(e.venueTag+".decode_failed",
				zap.Error(err),
				zap.String("url", rawURL),
				zap.String("body", string(respBody)))
			return fmt.Errorf("decode failed: %w", err)
		}
	}

	return nil
}

// send builds and fires one attempt. The request is rebuilt per attempt so
// a retry never replays a drained body reader.
func (e *Executor) send(ctx context.Context, method, rawURL string, body []byte, token string) (*http.Response, error) {
	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authScheme+" "+token)
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	return e.http.Do(req)
}
