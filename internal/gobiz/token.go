package gobiz

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/errs"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

const (
	// refreshSkew is the safety margin against clock skew and in-flight
	// request latency: a token expiring inside the margin counts as stale.
	refreshSkew = 5 * time.Minute

	// defaultExpiresIn applies when upstream omits expires_in.
	defaultExpiresIn = 3600
)

// tokenResponse is the upstream token-exchange reply.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    flexSeconds `json:"expires_in"`
}

// flexSeconds tolerates expires_in arriving as a JSON number or a numeric
// string; anything else decodes to zero and the default applies.
type flexSeconds int64

func (s *flexSeconds) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = flexSeconds(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			*s = flexSeconds(f)
			return nil
		}
	}
	*s = 0
	return nil
}

// tokenUpdate is the shared outcome of one refresh exchange. Every caller
// that observed the in-flight refresh applies it to its own record copy.
type tokenUpdate struct {
	access     string
	accessEnc  string
	refreshEnc string
	expiry     int64 // epoch ms
}

func (u *tokenUpdate) apply(acc *model.Account) {
	acc.AccessTokenEnc = u.accessEnc
	acc.RefreshTokenEnc = u.refreshEnc
	acc.TokenExpiry = u.expiry
}

// AccessToken returns a usable bearer token for the record, refreshing when
// the cached token is absent or expires within the safety margin.
func (c *Client) AccessToken(ctx context.Context, acc *model.Account) (string, error) {
	if access := c.box.Open(acc.AccessTokenEnc); access != nil && acc.TokenExpiry > 0 {
		if time.Now().UnixMilli() < acc.TokenExpiry-refreshSkew.Milliseconds() {
			return string(access), nil
		}
	}
	return c.Refresh(ctx, acc)
}

// Refresh exchanges the record's refresh token for a new access/refresh pair
// and applies the result to the record. Concurrent refreshes for the same
// account handle are collapsed into a single upstream exchange; every caller
// observes the same outcome. The in-flight entry is dropped once settled,
// success or failure.
//
// The exchange is detached from the initiating request's cancellation: an
// abandoned initiator must not abort a refresh other callers are waiting on,
// and a rotation upstream has already committed must not be lost. The HTTP
// client timeout still bounds the detached exchange.
//
// On failure nothing is applied; the caller must treat the session as invalid.
func (c *Client) Refresh(ctx context.Context, acc *model.Account) (string, error) {
	v, err, shared := c.refreshGroup.Do(acc.UniqueID, func() (any, error) {
		return c.refreshExchange(context.WithoutCancel(ctx), acc)
	})
	if err != nil {
		return "", err
	}
	upd := v.(*tokenUpdate)
	upd.apply(acc)
	if shared {
		c.log.Debug("refresh result shared", zap.String("account", acc.UniqueID))
	}
	return upd.access, nil
}

func (c *Client) refreshExchange(ctx context.Context, acc *model.Account) (*tokenUpdate, error) {
	refresh := c.box.Open(acc.RefreshTokenEnc)
	if refresh == nil {
		return nil, errs.ErrNoRefreshToken
	}

	res, err := c.do(ctx, http.MethodPost, "/goid/token", c.baseHeaders(acc), mustJSON(map[string]any{
		"client_id":  c.cfg.ClientID,
		"grant_type": "refresh_token",
		"data": map[string]any{
			"refresh_token": string(refresh),
			"user_type":     "merchant",
		},
	}))
	if err != nil {
		return nil, &APIError{Kind: errs.ErrRefreshFailed, Message: truncate(err.Error())}
	}
	if !res.ok() {
		c.log.Warn("refresh rejected",
			zap.String("account", acc.UniqueID),
			zap.Int("status", res.status),
		)
		return nil, &APIError{Kind: errs.ErrRefreshFailed, Status: res.status, Message: pickMessage(res.body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(res.body, &tr); err != nil {
		return nil, &APIError{Kind: errs.ErrRefreshFailed, Status: res.status, Message: "malformed token response"}
	}
	if tr.AccessToken == "" {
		return nil, &APIError{Kind: errs.ErrRefreshFailed, Status: res.status, Message: "missing access token"}
	}

	// rotate the refresh token only when upstream supplied a new one
	newRefresh := tr.RefreshToken
	if newRefresh == "" {
		newRefresh = string(refresh)
	}

	upd, err := c.newTokenUpdate(tr.AccessToken, newRefresh, int64(tr.ExpiresIn))
	if err != nil {
		return nil, err
	}
	return upd, nil
}

// newTokenUpdate seals a fresh token pair and computes the absolute expiry.
func (c *Client) newTokenUpdate(access, refresh string, expiresIn int64) (*tokenUpdate, error) {
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	accessEnc, err := c.box.Seal([]byte(access))
	if err != nil {
		return nil, err
	}
	refreshEnc, err := c.box.Seal([]byte(refresh))
	if err != nil {
		return nil, err
	}
	return &tokenUpdate{
		access:     access,
		accessEnc:  accessEnc,
		refreshEnc: refreshEnc,
		expiry:     time.Now().UnixMilli() + expiresIn*1000,
	}, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// maps of strings cannot fail to marshal
		panic(err)
	}
	return b
}
