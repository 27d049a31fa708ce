// Package jwt signs and verifies access tokens for session-bound requests.
//
// A Codec is stateless: it knows nothing about sessions beyond the sid claim
// it carries. Verification failures are reported as exactly one of
// ErrMalformed, ErrInvalidSignature or ErrExpired, all wrapping ErrInvalid.
package jwt
