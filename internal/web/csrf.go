package web

import (
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

const csrfTTL = time.Hour

// CSRF issues and verifies signed double-submit tokens: the same token
// travels in a cookie and a hidden form field, signed so a forged pair
// cannot be minted client-side.
type CSRF struct {
	key []byte
}

// NewCSRF constructs a CSRF signer over an HS256 key.
func NewCSRF(key []byte) *CSRF {
	return &CSRF{key: key}
}

// Issue mints a fresh signed token.
func (c *CSRF) Issue() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(csrfTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Verify checks that the cookie and form tokens match and carry a valid,
// unexpired signature.
func (c *CSRF) Verify(cookieToken, formToken string) bool {
	if cookieToken == "" || formToken == "" || cookieToken != formToken {
		return false
	}
	tok, err := jwt.ParseWithClaims(formToken, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && tok.Valid
}
