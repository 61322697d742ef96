// Package session serializes the Account record into an opaque sealed token
// bound to a fingerprint of the requesting client. The token is the entire
// session state; the server stores nothing.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gofrs/uuid/v5"

	"github.com/ardiansyahdr/gobiz-wallet/internal/cryptobox"
	"github.com/ardiansyahdr/gobiz-wallet/internal/model"
)

const formatVersionCurrent = 1

// payload is the sealed wire form of an Account.
type payload struct {
	V               int    `json:"v"`
	UAHash          string `json:"uaHash"`
	UniqueID        string `json:"uniqueId"`
	UserAgent       string `json:"userAgent"`
	TokenExpiry     int64  `json:"tokenExpiry"`
	AccessTokenEnc  string `json:"accessTokenEnc,omitempty"`
	RefreshTokenEnc string `json:"refreshTokenEnc,omitempty"`
	MerchantID      string `json:"merchantId,omitempty"`
	MerchantName    string `json:"merchantName,omitempty"`
}

// Codec encodes and decodes Account records through the sealed box.
type Codec struct {
	box *cryptobox.Box
}

// NewCodec constructs a Codec over the given sealing box.
func NewCodec(box *cryptobox.Box) *Codec {
	return &Codec{box: box}
}

// FingerprintUA returns the hex SHA-256 of a raw user agent. The hash deters
// token replay from a different client context; it is not a trust boundary.
func FingerprintUA(userAgent string) string {
	h := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(h[:])
}

// NewAccount builds a fresh unauthenticated record for the given client.
func NewAccount(userAgent string) *model.Account {
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}
	id, err := uuid.NewV4()
	if err != nil {
		// rand failure; a zero UUID still yields a usable (if shared) lock key
		return &model.Account{UserAgent: userAgent}
	}
	return &model.Account{UniqueID: id.String(), UserAgent: userAgent}
}

// Encode seals the record into an opaque token safe to hand to the client.
// Every mutation of the record produces a whole new token.
func (c *Codec) Encode(acc *model.Account) (string, error) {
	p := payload{
		V:               formatVersionCurrent,
		UAHash:          FingerprintUA(acc.UserAgent),
		UniqueID:        acc.UniqueID,
		UserAgent:       acc.UserAgent,
		TokenExpiry:     acc.TokenExpiry,
		AccessTokenEnc:  acc.AccessTokenEnc,
		RefreshTokenEnc: acc.RefreshTokenEnc,
		MerchantID:      acc.MerchantID,
		MerchantName:    acc.MerchantName,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return c.box.Seal(raw)
}

// Decode unseals and parses a token, recomputing the fingerprint from the
// caller-supplied user agent. Bad seal, bad parse, unknown version and
// fingerprint mismatch are all nil: indistinguishably "not authenticated".
func (c *Codec) Decode(token, userAgent string) *model.Account {
	raw := c.box.Open(token)
	if raw == nil {
		return nil
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if p.V != formatVersionCurrent {
		return nil
	}
	if p.UAHash == "" || p.UAHash != FingerprintUA(userAgent) {
		return nil
	}
	ua := p.UserAgent
	if ua == "" {
		ua = userAgent
	}
	return &model.Account{
		UniqueID:        p.UniqueID,
		UserAgent:       ua,
		TokenExpiry:     p.TokenExpiry,
		AccessTokenEnc:  p.AccessTokenEnc,
		RefreshTokenEnc: p.RefreshTokenEnc,
		MerchantID:      p.MerchantID,
		MerchantName:    p.MerchantName,
	}
}
