// Package postgres provides a session.Store on PostgreSQL via pgx.
//
// Rotation is a single UPDATE guarded by the current refresh fingerprint,
// the revocation marker and the horizon, so the row lock taken by that
// statement is the only serialization point. Schema changes ship as
// embedded golang-migrate migrations; call Migrate before first use.
package postgres
