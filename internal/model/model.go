// Package model defines domain entities shared by the session, gobiz and web layers.
package model

import "encoding/json"

// Account is the client-held session record. It is the only persisted state
// in the system: the web layer seals it into a cookie and hands it back to
// the browser after every mutation. Token fields hold sealed ciphertext and
// are empty when absent; plaintext tokens exist only inside process memory.
type Account struct {
	UniqueID        string // opaque random handle, stable for the record's life; refresh-lock key
	UserAgent       string // raw client identity, replayed on outbound gobiz requests
	TokenExpiry     int64  // epoch ms after which the access token is stale
	AccessTokenEnc  string // sealed upstream access token
	RefreshTokenEnc string // sealed upstream refresh token
	MerchantID      string // cached merchant identity, refreshed lazily
	MerchantName    string
}

// Authenticated reports whether the record can still be exchanged for a
// valid access token. A record without a refresh token is never
// authenticated, regardless of the access token's state.
func (a *Account) Authenticated() bool {
	return a != nil && a.RefreshTokenEnc != ""
}

// Transaction is a ledger entry normalized from the upstream journal shape.
type Transaction struct {
	ID          string          `json:"id"`
	Time        string          `json:"time"` // ISO-8601 as reported upstream
	Status      string          `json:"status"`
	PaymentType string          `json:"paymentType"`
	Amount      int64           `json:"amount"` // major currency units, rounded from upstream minor units
	Raw         json.RawMessage `json:"raw"`    // original upstream object, kept for forward compatibility
}
