// Package refresh implements the opaque refresh-token format.
//
// # Token format
//
// base64url(sessionID (16 bytes) || secret (32 bytes)), no padding. The
// session ID is the raw form of the session's UUID. Stores never see the
// secret, only its fingerprint.
//
// # What this package must NOT do
//
//   - Access Redis, Postgres or any other I/O.
//   - Implement rotation or revocation policy.
package refresh
