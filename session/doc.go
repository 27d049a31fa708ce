// Package session defines the session record, the Store contract and its
// process-local and Redis implementations.
//
// # Store contract
//
// Every Store serializes mutations per session: Create is all-or-nothing,
// RotateRefreshToken is a compare-and-swap on the current refresh
// fingerprint, and Revoke is idempotent and terminal. Infrastructure faults
// wrap ErrUnavailable and are never reported as ErrNotFound.
//
// # Binary encoding
//
// RedisStore keeps records in a compact versioned binary layout with all
// fixed-width fields first so the rotation and revocation scripts can splice
// them without parsing the variable tail.
//
// # What this package must NOT do
//
//   - Interpret access tokens or import the jwt package.
//   - Store raw refresh secrets; only fingerprints reach a Store.
package session
