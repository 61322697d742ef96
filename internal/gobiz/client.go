// Package gobiz implements the authenticated GoBiz API access layer: token
// lifecycle with single-flight refresh, a resilient request pipeline with
// retry and backoff, the login flows, and the ledger projection.
package gobiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ardiansyahdr/gobiz-wallet/internal/cryptobox"
	"github.com/ardiansyahdr/gobiz-wallet/internal/errs"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

// Defaults mirror the portal web client's observed behavior.
const (
	defaultBaseURL      = "https://api.gobiz.co.id"
	defaultClientID     = "go-biz-web-new"
	defaultOTPGrantType = "password" // upstream reuses the password grant for otp verification
	defaultTimeout      = 30 * time.Second
	defaultLoginDelay   = 800 * time.Millisecond

	networkRetryBase  = 400 * time.Millisecond
	upstreamRetryBase = 500 * time.Millisecond
	maxRetry          = 2

	maxMessageLen = 200
)

// Config tunes the client. Zero values fall back to production defaults;
// tests shrink the delays and point BaseURL at a fake upstream.
type Config struct {
	BaseURL           string
	ClientID          string
	OTPGrantType      string        // grant type used for otp verification
	Timeout           time.Duration // per-request HTTP timeout
	LoginDelay        time.Duration // pause between login request and token exchange
	NetworkRetryBase  time.Duration
	UpstreamRetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}
	if c.OTPGrantType == "" {
		c.OTPGrantType = defaultOTPGrantType
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.LoginDelay <= 0 {
		c.LoginDelay = defaultLoginDelay
	}
	if c.NetworkRetryBase <= 0 {
		c.NetworkRetryBase = networkRetryBase
	}
	if c.UpstreamRetryBase <= 0 {
		c.UpstreamRetryBase = upstreamRetryBase
	}
	return c
}

// Client issues authenticated calls against the GoBiz API on behalf of a
// client-held Account record. It mutates the record's credential fields on
// refresh; persisting the updated record is the caller's job.
type Client struct {
	cfg  Config
	http *http.Client
	box  *cryptobox.Box
	log  *zap.Logger

	refreshGroup singleflight.Group
}

// New constructs a Client sealing credentials with the given box.
func New(cfg Config, box *cryptobox.Box, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		box:  box,
		log:  log,
	}
}

// APIError is a classified failure from the GoBiz access layer. Kind is one
// of the errs sentinels, Status the upstream HTTP status (0 if none reached
// us) and Message a truncated upstream message when one was extractable.
type APIError struct {
	Kind    error
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// baseHeaders reproduces the portal web dashboard's device identity plus the
// per-account unique id and stored user agent.
func (c *Client) baseHeaders(acc *model.Account) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "id")
	h.Set("Origin", "https://portal.gofoodmerchant.co.id")
	h.Set("Referer", "https://portal.gofoodmerchant.co.id/")
	h.Set("Authentication-Type", "go-id")
	h.Set("Gojek-Country-Code", "ID")
	h.Set("Gojek-Timezone", "Asia/Jakarta")
	h.Set("X-Appid", "go-biz-web-dashboard")
	h.Set("X-Appversion", "platform-v3.97.0-b986b897")
	h.Set("X-Deviceos", "Web")
	h.Set("X-Phonemake", "Windows 10 64-bit")
	h.Set("X-Phonemodel", "Chrome 143.0.0.0 on Windows 10 64-bit")
	h.Set("X-Platform", "Web")
	h.Set("X-Uniqueid", acc.UniqueID)
	h.Set("X-User-Type", "merchant")
	h.Set("User-Agent", acc.UserAgent)
	return h
}

// response is a fully-read upstream reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// do performs a single HTTP exchange. payload is re-readable across attempts.
func (c *Client) do(ctx context.Context, method, path string, headers http.Header, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &response{status: res.StatusCode, header: res.Header, body: raw}, nil
}

// Call performs an authenticated request with retry, backoff and a single
// 401-triggered re-authentication, returning the raw response body.
//
// Retry policy: up to 2 retries beyond the first attempt. Transport failures
// back off exponentially from 400ms, retryable statuses (429/502/503/504)
// from 500ms or an upstream Retry-After; both with ±25% jitter. A 401 is
// handled outside the budget: one forced refresh, one replayed request, and
// a second rejection is final. Any other non-2xx fails immediately.
func (c *Client) Call(ctx context.Context, acc *model.Account, method, path string, reqBody any, extra http.Header) ([]byte, error) {
	access, err := c.AccessToken(ctx, acc)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if reqBody != nil {
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
	}

	headers := func(bearer string) http.Header {
		h := c.baseHeaders(acc)
		h.Set("Authorization", "Bearer "+bearer)
		for k, vs := range extra {
			h[http.CanonicalHeaderKey(k)] = vs
		}
		return h
	}

	netBackoff := retry.WithJitterPercent(25, retry.NewExponential(c.cfg.NetworkRetryBase))
	upBackoff := retry.WithJitterPercent(25, retry.NewExponential(c.cfg.UpstreamRetryBase))

	for attempt := 0; attempt <= maxRetry; attempt++ {
		res, err := c.do(ctx, method, path, headers(access), payload)
		if err != nil {
			if attempt < maxRetry {
				d, _ := netBackoff.Next()
				if err := sleep(ctx, d); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &APIError{Kind: errs.ErrNetwork, Message: truncate(err.Error())}
		}

		if res.status == http.StatusUnauthorized {
			access, err = c.Refresh(ctx, acc)
			if err != nil {
				return nil, err
			}
			res2, err := c.do(ctx, method, path, headers(access), payload)
			if err != nil {
				return nil, &APIError{Kind: errs.ErrNetwork, Message: truncate(err.Error())}
			}
			if !res2.ok() {
				return nil, upstreamError(res2)
			}
			return res2.body, nil
		}

		if retryableStatus(res.status) && attempt < maxRetry {
			d := retryAfter(res.header)
			if d <= 0 {
				d, _ = upBackoff.Next()
			}
			if err := sleep(ctx, d); err != nil {
				return nil, err
			}
			continue
		}

		if !res.ok() {
			return nil, upstreamError(res)
		}
		return res.body, nil
	}

	// unreachable under correct control flow
	return nil, &APIError{Kind: errs.ErrRetryExhausted}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryAfter parses an upstream Retry-After header in seconds; 0 when absent
// or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func upstreamError(res *response) *APIError {
	return &APIError{Kind: errs.ErrUpstream, Status: res.status, Message: pickMessage(res.body)}
}

// pickMessage extracts a short human-readable message from an upstream body:
// structured message/error/msg fields first, then the first element of an
// errors array, else the truncated raw text.
func pickMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return truncate(string(body))
	}
	for _, key := range []string{"message", "error", "msg"} {
		if s, ok := m[key].(string); ok && s != "" {
			return truncate(s)
		}
	}
	if arr, ok := m["errors"].([]any); ok && len(arr) > 0 {
		if first, ok := arr[0].(map[string]any); ok {
			for _, key := range []string{"message", "msg"} {
				if s, ok := first[key].(string); ok && s != "" {
					return truncate(s)
				}
			}
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen]
	}
	return s
}
