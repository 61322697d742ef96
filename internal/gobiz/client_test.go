package gobiz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/cryptobox"
	"github.com/ardiansyahdr/gobiz-wallet/internal/errs"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

const testUA = "Mozilla/5.0 test-agent"

// newTestClient builds a client against a fake upstream with test-sized delays.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	key, err := cryptobox.Rand(cryptobox.KeyLen)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	box, err := cryptobox.New(key)
	if err != nil {
		t.Fatalf("New box: %v", err)
	}
	return New(Config{
		BaseURL:           baseURL,
		LoginDelay:        time.Millisecond,
		NetworkRetryBase:  time.Millisecond,
		UpstreamRetryBase: time.Millisecond,
		Timeout:           2 * time.Second,
	}, box, zap.NewNop())
}

// authedAccount returns a record with sealed tokens and a far-future expiry.
func authedAccount(t *testing.T, c *Client) *model.Account {
	t.Helper()
	acc := &model.Account{UniqueID: "acc-1", UserAgent: testUA}
	upd, err := c.newTokenUpdate("access-0", "refresh-0", 3600)
	if err != nil {
		t.Fatalf("newTokenUpdate: %v", err)
	}
	upd.apply(acc)
	return acc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// refreshHandler serves /goid/token with a fixed rotated pair.
func refreshHandler(access string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"refresh_token": access + "-refresh",
			"expires_in":    3600,
		})
	}
}

func TestCall_OK(t *testing.T) {
	t.Parallel()
	var gotAuth, gotUnique string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUnique = r.Header.Get("X-Uniqueid")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	body, err := c.Call(context.Background(), acc, http.MethodPost, "/v1/thing", map[string]any{"a": 1}, nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("unexpected body %q", body)
	}
	if gotAuth != "Bearer access-0" {
		t.Fatalf("Authorization=%q", gotAuth)
	}
	if gotUnique != acc.UniqueID {
		t.Fatalf("X-Uniqueid=%q, want %q", gotUnique, acc.UniqueID)
	}
}

func TestCall_401ThenOK(t *testing.T) {
	t.Parallel()
	var dataCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/goid/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		refreshHandler("access-1")(w, r)
	})
	mux.HandleFunc("/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		if dataCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer access-1" {
			t.Errorf("replay used stale bearer %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)
	oldAccessEnc := acc.AccessTokenEnc

	if _, err := c.Call(context.Background(), acc, http.MethodPost, "/v1/thing", nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if refreshCalls.Load() != 1 {
		t.Fatalf("refresh calls=%d, want 1", refreshCalls.Load())
	}
	if dataCalls.Load() != 2 {
		t.Fatalf("data calls=%d, want 2", dataCalls.Load())
	}
	if acc.AccessTokenEnc == oldAccessEnc {
		t.Fatalf("record must carry the refreshed access token")
	}
	if got := c.box.Open(acc.AccessTokenEnc); string(got) != "access-1" {
		t.Fatalf("sealed access=%q, want access-1", got)
	}
}

func TestCall_401Twice_NoThirdAttempt(t *testing.T) {
	t.Parallel()
	var dataCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/goid/token", refreshHandler("access-1"))
	mux.HandleFunc("/v1/thing", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	_, err := c.Call(context.Background(), acc, http.MethodGet, "/v1/thing", nil, nil)
	if !errors.Is(err, errs.ErrUpstream) {
		t.Fatalf("err=%v, want upstream failure", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v, want status 401", err)
	}
	if dataCalls.Load() != 2 {
		t.Fatalf("data calls=%d, want exactly 2", dataCalls.Load())
	}
}

func TestCall_503TwiceThenOK(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	if _, err := c.Call(context.Background(), acc, http.MethodGet, "/v1/thing", nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d, want 3", calls.Load())
	}
}

func TestCall_503Exhausted(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "maintenance window"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	_, err := c.Call(context.Background(), acc, http.MethodGet, "/v1/thing", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want APIError", err)
	}
	if !errors.Is(err, errs.ErrUpstream) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("err=%v, want upstream 503", err)
	}
	if apiErr.Message != "maintenance window" {
		t.Fatalf("message=%q", apiErr.Message)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d, want 3 attempts", calls.Load())
	}
}

func TestCall_OtherStatusNoRetry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such route"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	_, err := c.Call(context.Background(), acc, http.MethodGet, "/v1/thing", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("err=%v, want upstream 404", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d, want 1 (no retry)", calls.Load())
	}
}

func TestCall_NetworkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := newTestClient(t, srv.URL)
	acc := authedAccount(t, c)

	_, err := c.Call(context.Background(), acc, http.MethodGet, "/v1/thing", nil, nil)
	if !errors.Is(err, errs.ErrNetwork) {
		t.Fatalf("err=%v, want network failure", err)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"0", 0},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.value != "" {
			h.Set("Retry-After", tc.value)
		}
		if got := retryAfter(h); got != tc.want {
			t.Fatalf("retryAfter(%q)=%v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestPickMessage(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 300)
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"bad input"}`, "bad input"},
		{"error field", `{"error":"denied"}`, "denied"},
		{"msg field", `{"msg":"nope"}`, "nope"},
		{"errors array message", `{"errors":[{"message":"first"},{"message":"second"}]}`, "first"},
		{"errors array msg", `{"errors":[{"msg":"short"}]}`, "short"},
		{"message wins over errors", `{"message":"top","errors":[{"message":"nested"}]}`, "top"},
		{"plain text", "service unavailable", "service unavailable"},
		{"long text truncated", long, long[:200]},
		{"empty", "", ""},
		{"structured but empty", `{"code":42}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pickMessage([]byte(tc.body)); got != tc.want {
				t.Fatalf("pickMessage(%q)=%q, want %q", tc.body, got, tc.want)
			}
		})
	}
}
