package goSession

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/goSession/internal/audit"
)

// AuditEvent is one session lifecycle record handed to an AuditSink.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Manager's dispatcher goroutine.
// Emit must not retain ctx.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel; see NewChannelSink.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes events as JSON lines; see NewJSONWriterSink.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink records events on a *slog.Logger; see NewSlogSink.
type SlogSink = audit.SlogSink

// MultiSink delivers every event to each of its sinks in order.
type MultiSink = audit.MultiSink

// AuditSinkFunc adapts a plain function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink logs successful events at Info and failures at Warn.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}

const (
	auditEventSessionCreated     = "session_created"
	auditEventSessionCreateFail  = "session_create_failure"
	auditEventVerifyFailure      = "verify_failure"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshInvalid     = "refresh_invalid"
	auditEventRefreshRateLimited = "refresh_rate_limited"
	auditEventRefreshReuse       = "refresh_reuse_revoked"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventLogoutSession      = "logout_session"
	auditEventLogoutAll          = "logout_all"
	auditEventSweep              = "sweep"
)

// AuditErrorCode is the stable error string recorded on failed events.
type AuditErrorCode string

const (
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrInvalidIdentity AuditErrorCode = "invalid_identity"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidIdentity):
		return auditErrInvalidIdentity
	case errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	kind FailureKind,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: m.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    kind.String(),
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	m.audit.Emit(ctx, event)
}
