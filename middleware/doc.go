// Package middleware adapts a goSession.Manager to net/http.
//
// # Guards
//
//   - [Guard] verifies the access token on every request and injects the
//     verified claims into the request context.
//   - [RequestMeta] records the caller's IP and User-Agent for audit events.
//
// Tokens are read from the Authorization header ("Bearer <token>") or, when
// absent, from the access_token cookie written by [SetTokenCookies].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Manager calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Manager.VerifyToken.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access the session store.
//   - Enforce roles.
package middleware
