package internaldefs

import (
	"strconv"

	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one goSession counter for export.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one goSession latency histogram for export.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions created by GenerateTokenPair."},
	{ID: goSession.MetricSessionCreateFailure, Name: "gosession_session_create_failure_total", Help: "Failed session creations."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Access tokens verified against a live session."},
	{ID: goSession.MetricVerifyFailure, Name: "gosession_verify_failure_total", Help: "Rejected access-token verifications."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful refresh operations."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goSession.MetricRefreshRateLimited, Name: "gosession_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goSession.MetricRefreshReuseRevoked, Name: "gosession_refresh_reuse_revoked_total", Help: "Sessions revoked after a stale refresh token was presented."},
	{ID: goSession.MetricSessionInvalidated, Name: "gosession_session_invalidated_total", Help: "Sessions invalidated by id."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logout operations."},
	{ID: goSession.MetricLogoutAll, Name: "gosession_logout_all_total", Help: "Per-user revoke-all operations."},
	{ID: goSession.MetricSweepRemoved, Name: "gosession_sweep_removed_total", Help: "Dead session records removed by sweeping."},
	{ID: goSession.MetricStoreUnavailable, Name: "gosession_store_unavailable_total", Help: "Operations failed by a session store outage."},
	{ID: goSession.MetricFailureMalformedToken, Name: "gosession_failure_malformed_token_total", Help: "Authentication failures: malformed token."},
	{ID: goSession.MetricFailureInvalidSignature, Name: "gosession_failure_invalid_signature_total", Help: "Authentication failures: invalid signature."},
	{ID: goSession.MetricFailureExpired, Name: "gosession_failure_expired_total", Help: "Authentication failures: expired token or session."},
	{ID: goSession.MetricFailureSessionRevokedOrAbsent, Name: "gosession_failure_session_revoked_or_absent_total", Help: "Authentication failures: session revoked or absent."},
	{ID: goSession.MetricFailureRefreshMismatch, Name: "gosession_failure_refresh_mismatch_total", Help: "Authentication failures: stale refresh token."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricVerifyLatency, Name: "gosession_verify_latency_seconds", Help: "VerifyToken latency."},
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "RefreshAccessToken latency."},
}

// AuditDroppedName is the counter for audit events dropped under
// backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel renders bucket i's upper bound as a Prometheus "le" value.
func BucketLabel(i int) string {
	if i >= len(HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramUpperBounds[i], 'g', -1, 64)
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
