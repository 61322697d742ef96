package gobiz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ardiansyahdr/gobiz-wallet/internal/errs"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

// PasswordLogin authenticates with email and password: a login request
// followed, after a short settle delay, by a token exchange. On success the
// record carries sealed tokens and a future expiry; the raw password is
// never retained.
func (c *Client) PasswordLogin(ctx context.Context, acc *model.Account, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return fmt.Errorf("%w: missing credentials", errs.ErrLoginRequest)
	}

	res, err := c.do(ctx, http.MethodPost, "/goid/login/request", c.baseHeaders(acc), mustJSON(map[string]any{
		"email":      email,
		"login_type": "password",
		"client_id":  c.cfg.ClientID,
	}))
	if err != nil {
		return &APIError{Kind: errs.ErrLoginRequest, Message: truncate(err.Error())}
	}
	if !res.ok() {
		return &APIError{Kind: errs.ErrLoginRequest, Status: res.status, Message: pickMessage(res.body)}
	}

	// upstream needs a moment before the token endpoint accepts the exchange
	if err := sleep(ctx, c.cfg.LoginDelay); err != nil {
		return err
	}

	return c.exchangeLoginToken(ctx, acc, errs.ErrLoginToken, map[string]any{
		"client_id":  c.cfg.ClientID,
		"grant_type": "password",
		"data": map[string]any{
			"email":     email,
			"password":  password,
			"user_type": "merchant",
		},
	})
}

// RequestOTP asks upstream to send a one-time code to the phone number.
func (c *Client) RequestOTP(ctx context.Context, acc *model.Account, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("%w: missing phone number", errs.ErrOTPRequest)
	}

	res, err := c.do(ctx, http.MethodPost, "/goid/login/request", c.baseHeaders(acc), mustJSON(map[string]any{
		"phone":      phone,
		"login_type": "otp",
		"client_id":  c.cfg.ClientID,
	}))
	if err != nil {
		return &APIError{Kind: errs.ErrOTPRequest, Message: truncate(err.Error())}
	}
	if !res.ok() {
		return &APIError{Kind: errs.ErrOTPRequest, Status: res.status, Message: pickMessage(res.body)}
	}
	return nil
}

// VerifyOTP exchanges phone+code for a token pair. The grant type is
// configuration: upstream's contract for otp verification is unverified, so
// the compatibility default ("password") is not hard-coded.
func (c *Client) VerifyOTP(ctx context.Context, acc *model.Account, phone, code string) error {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return fmt.Errorf("%w: missing phone or code", errs.ErrOTPVerify)
	}

	return c.exchangeLoginToken(ctx, acc, errs.ErrOTPVerify, map[string]any{
		"client_id":  c.cfg.ClientID,
		"grant_type": c.cfg.OTPGrantType,
		"data": map[string]any{
			"phone":     phone,
			"otp":       code,
			"user_type": "merchant",
		},
	})
}

// exchangeLoginToken posts to the token endpoint and seals the resulting
// pair into the record. stageErr classifies a rejected exchange; a 2xx reply
// lacking either token is the distinct ErrNoToken.
func (c *Client) exchangeLoginToken(ctx context.Context, acc *model.Account, stageErr error, body map[string]any) error {
	res, err := c.do(ctx, http.MethodPost, "/goid/token", c.baseHeaders(acc), mustJSON(body))
	if err != nil {
		return &APIError{Kind: stageErr, Message: truncate(err.Error())}
	}
	if !res.ok() {
		return &APIError{Kind: stageErr, Status: res.status, Message: pickMessage(res.body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(res.body, &tr); err != nil || tr.AccessToken == "" || tr.RefreshToken == "" {
		return &APIError{Kind: errs.ErrNoToken, Status: res.status}
	}

	upd, err := c.newTokenUpdate(tr.AccessToken, tr.RefreshToken, int64(tr.ExpiresIn))
	if err != nil {
		return err
	}
	upd.apply(acc)

	c.log.Info("login token issued", zap.String("account", acc.UniqueID))
	return nil
}
