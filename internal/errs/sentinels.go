// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Failure classes for the authenticated-call path.
var (
	// ErrRefreshFailed indicates the refresh exchange could not produce a
	// usable access token. The caller must treat the session as invalid.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrNoRefreshToken is a refresh failure caused by a record that never
	// held (or lost) its refresh credential.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token", ErrRefreshFailed)

	// ErrNetwork indicates a transport-level failure that survived the retry budget.
	ErrNetwork = errors.New("network failure")

	// ErrUpstream indicates a non-2xx upstream response after retries.
	ErrUpstream = errors.New("upstream failure")

	// ErrRetryExhausted guards the retry loop exit that correct control flow
	// never reaches. Seeing it means an invariant was violated.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrRateLimited indicates a temporary login lock.
	ErrRateLimited = errors.New("rate limited")
)

// Auth-flow stage failures. Each flow step fails distinctly to aid diagnosis;
// the web layer renders all of them as the same generic message.
var (
	// ErrLoginRequest indicates the password-flow login-request step was rejected.
	ErrLoginRequest = errors.New("login request failed")

	// ErrLoginToken indicates the password-flow token exchange was rejected.
	ErrLoginToken = errors.New("login token exchange failed")

	// ErrNoToken indicates a 2xx token response missing either token.
	ErrNoToken = errors.New("token response missing tokens")

	// ErrOTPRequest indicates the one-time-code send step was rejected.
	ErrOTPRequest = errors.New("otp request failed")

	// ErrOTPVerify indicates the one-time-code verification was rejected.
	ErrOTPVerify = errors.New("otp verification failed")
)
