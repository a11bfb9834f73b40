package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLinkIssued          ActivityEventType = "auth.link.issued"
	ActivityEventLinkDeliveryFailed  ActivityEventType = "auth.link.delivery_failed"
	ActivityEventLinkConsumed        ActivityEventType = "auth.link.consumed"
	ActivityEventLinkRejected        ActivityEventType = "auth.link.rejected"
	ActivityEventSessionCreated      ActivityEventType = "auth.session.created"
	ActivityEventSessionRefreshed    ActivityEventType = "auth.session.refreshed"
	ActivityEventSessionRevoked      ActivityEventType = "auth.session.revoked"
	ActivityEventRefreshReuse        ActivityEventType = "auth.session.refresh_reuse"
	ActivityEventRoleAssigned        ActivityEventType = "auth.role.assigned"
	ActivityEventPrincipalProvisoned ActivityEventType = "auth.principal.provisioned"
	ActivityEventPrincipalSuspended  ActivityEventType = "auth.principal.suspended"
	ActivityEventPrincipalReinstated ActivityEventType = "auth.principal.reinstated"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	PrincipalID string
	TenantID    string
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	sink = normalizeActivitySink(sink)

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink record error: %v", err)
	}
}
