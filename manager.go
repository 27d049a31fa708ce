package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

// Manager issues, verifies, refreshes and revokes session credentials.
// It is safe for concurrent use; build one per process with Builder or
// share one through a Provider.
type Manager struct {
	config      Config
	codec       *jwt.Codec
	fingerprint *refresh.Fingerprinter
	store       session.Store
	limiter     *rate.Limiter
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

/*
====================================
ISSUANCE
====================================
*/

// GenerateTokenPair creates a session for an already verified identity and
// returns its access and refresh tokens. The session record is written in
// a single store call before any token leaves the Manager.
//
// ErrInvalidIdentity is returned for an empty user id, a user id with
// surrounding whitespace, or a user id, email or role longer than
// session.MaxFieldLen bytes.
func (m *Manager) GenerateTokenPair(ctx context.Context, id Identity) (TokenPair, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	userID := id.UserID
	if userID == "" || strings.TrimSpace(userID) != userID {
		m.metricInc(MetricSessionCreateFailure)
		m.emitAudit(ctx, auditEventSessionCreateFail, false, "", "", FailureNone, ErrInvalidIdentity, nil)
		return TokenPair{}, ErrInvalidIdentity
	}
	role := id.Role
	if role == "" {
		role = m.config.Session.DefaultRole
	}

	secret, err := refresh.NewSecret()
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}

	now := m.now()
	sessionID, err := m.store.Create(ctx, session.CreateParams{
		UserID:             userID,
		Email:              id.Email,
		Role:               role,
		RefreshFingerprint: m.fingerprint.Sum(secret),
		CreatedAt:          now,
		ExpiresAt:          now.Add(m.config.Refresh.TTL),
	})
	if err != nil {
		m.metricInc(MetricSessionCreateFailure)
		if errors.Is(err, session.ErrFieldTooLong) {
			err = fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
		} else {
			err = m.storeErr(err)
		}
		m.emitAudit(ctx, auditEventSessionCreateFail, false, userID, "", FailureNone, err, nil)
		return TokenPair{}, err
	}

	pair, err := m.issue(sessionID, userID, id.Email, role, secret, now.Add(m.config.Refresh.TTL))
	if err != nil {
		// The client never saw this session; do not leave it usable.
		if rerr := m.store.Revoke(ctx, sessionID, now); rerr != nil && !errors.Is(rerr, session.ErrNotFound) {
			m.logger.Warn("revoke after failed issuance", "session_id", sessionID, "error", rerr)
		}
		m.metricInc(MetricSessionCreateFailure)
		m.emitAudit(ctx, auditEventSessionCreateFail, false, userID, sessionID, FailureNone, err, nil)
		return TokenPair{}, err
	}

	m.metricInc(MetricSessionCreated)
	m.emitAudit(ctx, auditEventSessionCreated, true, userID, sessionID, FailureNone, nil, func() map[string]string {
		ua := userAgentFromContext(ctx)
		if ua == "" {
			return nil
		}
		return map[string]string{"user_agent": ua}
	})
	return pair, nil
}

func (m *Manager) issue(sessionID, userID, email, role string, secret refresh.Secret, horizon time.Time) (TokenPair, error) {
	access, claims, err := m.codec.Sign(jwt.Subject{
		UserID:    userID,
		Email:     email,
		Role:      role,
		SessionID: sessionID,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}
	refreshToken, err := refresh.Encode(sessionID, secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refreshToken,
		SessionID:        sessionID,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshExpiresAt: horizon,
	}, nil
}

/*
====================================
VERIFICATION
====================================
*/

// VerifyToken authenticates an access token. Beyond the signature and exp
// check it requires the bound session to exist, be unrevoked and be inside
// its refresh horizon. Every authentication failure is ErrUnauthorized.
func (m *Manager) VerifyToken(ctx context.Context, accessToken string) (*Claims, error) {
	if m.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			m.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}()
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	ac, err := m.codec.Verify(accessToken)
	if err != nil {
		return nil, m.verifyFailed(ctx, "", "", failureFromCodec(err))
	}

	rec, err := m.store.Get(ctx, ac.SID)
	if err != nil {
		if !isSessionState(err) {
			m.metricInc(MetricVerifyFailure)
			return nil, m.storeErr(err)
		}
		if errors.Is(err, session.ErrCorrupt) {
			m.logger.Error("corrupt session record", "session_id", ac.SID)
		}
		return nil, m.verifyFailed(ctx, ac.UID, ac.SID, FailureSessionRevokedOrAbsent)
	}

	switch rec.State(m.now()) {
	case session.StateRevoked:
		return nil, m.verifyFailed(ctx, ac.UID, ac.SID, FailureSessionRevokedOrAbsent)
	case session.StateExpired:
		return nil, m.verifyFailed(ctx, ac.UID, ac.SID, FailureExpired)
	}
	if rec.UserID != ac.UID {
		return nil, m.verifyFailed(ctx, ac.UID, ac.SID, FailureSessionRevokedOrAbsent)
	}

	m.metricInc(MetricVerifySuccess)
	return claimsFrom(ac), nil
}

func (m *Manager) verifyFailed(ctx context.Context, userID, sessionID string, kind FailureKind) error {
	m.metricInc(MetricVerifyFailure)
	m.failureInc(kind)
	m.emitAudit(ctx, auditEventVerifyFailure, false, userID, sessionID, kind, ErrUnauthorized, nil)
	return ErrUnauthorized
}

func claimsFrom(ac *jwt.AccessClaims) *Claims {
	c := &Claims{
		UserID:    ac.UID,
		Email:     ac.Email,
		Role:      ac.Role,
		SessionID: ac.SID,
		TokenID:   ac.ID,
	}
	if ac.IssuedAt != nil {
		c.IssuedAt = ac.IssuedAt.Time
	}
	if ac.ExpiresAt != nil {
		c.ExpiresAt = ac.ExpiresAt.Time
	}
	return c
}

/*
====================================
REFRESH
====================================
*/

// RefreshAccessToken exchanges a refresh token for a new token pair. With
// RotateOnUse the presented secret is replaced atomically, so of several
// concurrent refreshes with the same token exactly one succeeds, and the
// horizon moves to now plus the refresh TTL. Without rotation the presented
// refresh token is returned unchanged and the horizon stays where it was.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	if m.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			m.metrics.Observe(MetricRefreshLatency, time.Since(start))
		}()
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	sessionID, secret, err := refresh.Decode(refreshToken)
	if err != nil {
		return TokenPair{}, m.refreshFailed(ctx, "", FailureMalformedToken)
	}

	if err := m.limiter.Allow(ctx, sessionID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			m.metricInc(MetricRefreshRateLimited)
			m.emitAudit(ctx, auditEventRefreshRateLimited, false, "", sessionID, FailureNone, ErrRefreshRateLimited, nil)
			return TokenPair{}, ErrRefreshRateLimited
		}
		m.metricInc(MetricRefreshFailure)
		return TokenPair{}, m.storeErr(err)
	}

	presented := m.fingerprint.Sum(secret)
	now := m.now()

	var (
		rec       *session.Record
		newSecret = secret
	)
	if m.config.Refresh.RotateOnUse {
		newSecret, err = refresh.NewSecret()
		if err != nil {
			return TokenPair{}, fmt.Errorf("%w: %w", ErrTokenIssue, err)
		}
		rec, err = m.store.RotateRefreshToken(ctx, session.RotateParams{
			SessionID: sessionID,
			Current:   presented,
			Next:      m.fingerprint.Sum(newSecret),
			Now:       now,
			ExpiresAt: now.Add(m.config.Refresh.TTL),
		})
	} else {
		rec, err = m.touch(ctx, sessionID, presented, now)
	}
	if err != nil {
		if !isSessionState(err) {
			m.metricInc(MetricRefreshFailure)
			return TokenPair{}, m.storeErr(err)
		}
		if errors.Is(err, session.ErrFingerprintMismatch) && m.config.Refresh.RevokeOnReuse {
			m.revokeOnReuse(ctx, sessionID, now)
		}
		return TokenPair{}, m.refreshFailed(ctx, sessionID, failureFromStore(err))
	}

	pair, err := m.issue(rec.SessionID, rec.UserID, rec.Email, rec.Role, newSecret, rec.ExpiresAt)
	if err != nil {
		m.metricInc(MetricRefreshFailure)
		return TokenPair{}, err
	}
	if !m.config.Refresh.RotateOnUse {
		pair.RefreshToken = refreshToken
	}

	m.metricInc(MetricRefreshSuccess)
	m.emitAudit(ctx, auditEventRefreshSuccess, true, rec.UserID, rec.SessionID, FailureNone, nil, nil)
	return pair, nil
}

// touch validates the presented fingerprint and records the refresh time
// without changing the secret or the horizon.
func (m *Manager) touch(ctx context.Context, sessionID string, presented refresh.Fingerprint, now time.Time) (*session.Record, error) {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.ClassifyRotate(rec, presented, now); err != nil {
		return nil, err
	}
	return m.store.RotateRefreshToken(ctx, session.RotateParams{
		SessionID: sessionID,
		Current:   presented,
		Next:      presented,
		Now:       now,
		ExpiresAt: rec.ExpiresAt,
	})
}

func (m *Manager) revokeOnReuse(ctx context.Context, sessionID string, now time.Time) {
	if err := m.store.Revoke(ctx, sessionID, now); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			m.logger.Warn("revoke on refresh reuse", "session_id", sessionID, "error", err)
		}
		return
	}
	m.metricInc(MetricRefreshReuseRevoked)
	m.emitAudit(ctx, auditEventRefreshReuse, true, "", sessionID, FailureRefreshMismatch, nil, nil)
}

func (m *Manager) refreshFailed(ctx context.Context, sessionID string, kind FailureKind) error {
	m.metricInc(MetricRefreshFailure)
	m.failureInc(kind)
	m.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, kind, ErrUnauthorized, nil)
	return ErrUnauthorized
}

/*
====================================
REVOCATION
====================================
*/

// InvalidateSession revokes sessionID. Unknown and already revoked sessions
// are not errors; only store failures are returned.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.revoke(ctx, sessionID); err != nil {
		m.emitAudit(ctx, auditEventSessionInvalidated, false, "", sessionID, FailureNone, err, nil)
		return err
	}
	m.metricInc(MetricSessionInvalidated)
	m.emitAudit(ctx, auditEventSessionInvalidated, true, "", sessionID, FailureNone, nil, nil)
	return nil
}

// Logout revokes the session an access token is bound to. The signature is
// checked but expiry is tolerated, so a client holding only an expired
// access token can still end its session. Invalid tokens are ignored.
func (m *Manager) Logout(ctx context.Context, accessToken string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	ac, err := m.codec.VerifyIgnoringExpiry(accessToken)
	if err != nil {
		kind := failureFromCodec(err)
		m.failureInc(kind)
		m.emitAudit(ctx, auditEventLogoutSession, false, "", "", kind, ErrUnauthorized, nil)
		return nil
	}

	if err := m.revoke(ctx, ac.SID); err != nil {
		m.emitAudit(ctx, auditEventLogoutSession, false, ac.UID, ac.SID, FailureNone, err, nil)
		return err
	}
	m.metricInc(MetricLogout)
	m.emitAudit(ctx, auditEventLogoutSession, true, ac.UID, ac.SID, FailureNone, nil, nil)
	return nil
}

func (m *Manager) revoke(ctx context.Context, sessionID string) error {
	err := m.store.Revoke(ctx, sessionID, m.now())
	switch {
	case err == nil, errors.Is(err, session.ErrNotFound):
	case errors.Is(err, session.ErrCorrupt):
		m.logger.Error("revoke corrupt session", "session_id", sessionID, "error", err)
	default:
		return m.storeErr(err)
	}
	if rerr := m.limiter.Reset(ctx, sessionID); rerr != nil {
		m.logger.Warn("reset refresh counter", "session_id", sessionID, "error", rerr)
	}
	return nil
}

// InvalidateUserSessions revokes every session of userID and returns how
// many were live before the call.
func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) (int, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidIdentity
	}
	index, ok := m.store.(session.UserIndex)
	if !ok {
		return 0, ErrUserIndexUnsupported
	}

	n, err := index.RevokeUserSessions(ctx, userID, m.now())
	if err != nil {
		err = m.storeErr(err)
		m.emitAudit(ctx, auditEventLogoutAll, false, userID, "", FailureNone, err, nil)
		return 0, err
	}

	m.metricInc(MetricLogoutAll)
	m.emitAudit(ctx, auditEventLogoutAll, true, userID, "", FailureNone, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return n, nil
}

// ActiveSessionCount reports how many of userID's sessions would currently
// pass verification.
func (m *Manager) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(userID) == "" {
		return 0, ErrInvalidIdentity
	}
	index, ok := m.store.(session.UserIndex)
	if !ok {
		return 0, ErrUserIndexUnsupported
	}

	records, err := index.ListUserSessions(ctx, userID)
	if err != nil {
		return 0, m.storeErr(err)
	}
	now := m.now()
	count := 0
	for _, rec := range records {
		if rec.Active(now) {
			count++
		}
	}
	return count, nil
}

/*
====================================
SWEEPING
====================================
*/

// SweepExpired deletes records past their horizon. Verification already
// treats them as dead; sweeping only reclaims space.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	sweeper, ok := m.store.(session.Sweeper)
	if !ok {
		return 0, ErrSweepUnsupported
	}
	n, err := sweeper.Sweep(ctx, m.now())
	if err != nil {
		return 0, m.storeErr(err)
	}
	m.metrics.Add(MetricSweepRemoved, uint64(n))
	if n > 0 {
		m.emitAudit(ctx, auditEventSweep, true, "", "", FailureNone, nil, func() map[string]string {
			return map[string]string{"removed": fmt.Sprint(n)}
		})
	}
	return n, nil
}

// StartSweeper runs SweepExpired every interval until ctx is done or the
// returned stop function is called. A non-positive interval uses
// Config.Session.SweepInterval. stop waits for an in-flight sweep.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = m.config.Session.SweepInterval
	}
	if _, ok := m.store.(session.Sweeper); !ok || interval <= 0 {
		m.logger.Warn("session sweeper not started", "interval", interval, "supported", ok)
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.SweepExpired(ctx)
				if err != nil {
					if ctx.Err() == nil {
						m.logger.Warn("session sweep failed", "error", err)
					}
					continue
				}
				if n > 0 {
					m.logger.Debug("session sweep", "removed", n)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

/*
====================================
LIFECYCLE / INTROSPECTION
====================================
*/

// Ping reports store round-trip latency for stores with a remote backend.
// Process-local stores report zero.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	pinger, ok := m.store.(session.Pinger)
	if !ok {
		return 0, nil
	}
	d, err := pinger.Ping(ctx)
	if err != nil {
		return d, m.storeErr(err)
	}
	return d, nil
}

// Close flushes pending audit events. The store and its clients belong to
// the caller and are left open.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.audit.Close()
}

// AuditDropped reports audit events discarded under backpressure.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot copies the in-process counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

func (m *Manager) metricInc(id MetricID) {
	m.metrics.Inc(id)
}

func (m *Manager) failureInc(kind FailureKind) {
	if id, ok := kind.metric(); ok {
		m.metrics.Inc(id)
	}
}

func (m *Manager) storeErr(err error) error {
	m.metrics.Inc(MetricStoreUnavailable)
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.config.OperationTimeout)
}
