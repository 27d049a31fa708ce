// Package goSession issues, verifies, refreshes and revokes session-bound
// credentials for users whose identity has already been verified elsewhere.
//
// A login produces a [TokenPair]: a short-lived signed access token and an
// opaque refresh token bound to a server-side session record. Every access
// token verification also checks that its session still exists, is not
// revoked and is not past its refresh horizon, so revocation takes effect
// immediately rather than at access-token expiry.
//
// # Architecture boundaries
//
// goSession is the public surface: [Manager], [Builder], [Config], [Provider]
// and the value types. Token encoding lives in jwt and refresh, persistence
// behind [session.Store]. Authentication failures surface only as
// [ErrUnauthorized]; the precise cause is kept for audit events and metrics.
//
// # What this package must NOT do
//
//   - Verify passwords or any other credential.
//   - Decide transport details such as cookies or headers.
//   - Enforce the role claim.
package goSession
