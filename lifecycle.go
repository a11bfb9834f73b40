package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid principal state transition", goerrors.CategoryValidation).
	WithTextCode("INVALID_PRINCIPAL_STATE_TRANSITION").
	WithCode(goerrors.CodeBadRequest)

// SessionRevoker is the slice of the refresh store the lifecycle needs
// to kill every outstanding session for a principal.
type SessionRevoker interface {
	RevokeForPrincipal(ctx context.Context, principalID uuid.UUID, at time.Time) error
}

// PrincipalUpdater is the slice of the user repository the lifecycle
// needs to persist status changes.
type PrincipalUpdater interface {
	Update(ctx context.Context, user *User, criteria ...repository.UpdateCriteria) (*User, error)
}

// PrincipalLifecycle moves principals between active and suspended.
// Suspension revokes every outstanding session so the change takes
// effect immediately, not at the next refresh.
type PrincipalLifecycle struct {
	users    PrincipalUpdater
	sessions SessionRevoker
	logger   Logger
	sink     ActivitySink
	now      func() time.Time
}

type LifecycleOption func(*PrincipalLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *PrincipalLifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish lifecycle events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *PrincipalLifecycle) {
		l.sink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *PrincipalLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewPrincipalLifecycle(users PrincipalUpdater, sessions SessionRevoker, opts ...LifecycleOption) *PrincipalLifecycle {
	l := &PrincipalLifecycle{
		users:    users,
		sessions: sessions,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Suspend blocks a principal from authenticating and revokes their
// outstanding sessions.
func (l *PrincipalLifecycle) Suspend(ctx context.Context, actor ActorRef, user *User, reason string) (*User, error) {
	return l.transition(ctx, actor, user, UserStatusSuspended, reason)
}

// Reinstate returns a suspended principal to active.
func (l *PrincipalLifecycle) Reinstate(ctx context.Context, actor ActorRef, user *User, reason string) (*User, error) {
	return l.transition(ctx, actor, user, UserStatusActive, reason)
}

func (l *PrincipalLifecycle) transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, reason string) (*User, error) {
	if user == nil {
		return nil, goerrors.New("principal is required", goerrors.CategoryBadInput)
	}

	from := user.Status
	if from == "" {
		from = UserStatusActive
	}

	if from == target {
		return user, nil
	}

	if !allowedTransition(from, target) {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}

	user.Status = target
	updated, err := l.users.Update(ctx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist status change")
	}

	if target == UserStatusSuspended && l.sessions != nil {
		if err := l.sessions.RevokeForPrincipal(ctx, user.ID, l.now()); err != nil {
			l.logger.Error("failed to revoke sessions on suspension", "principal", user.ID.String(), "error", err)
		}
	}

	eventType := ActivityEventPrincipalSuspended
	if target == UserStatusActive {
		eventType = ActivityEventPrincipalReinstated
	}

	metadata := map[string]any{
		"from": string(from),
		"to":   string(target),
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	emitActivity(ctx, l.sink, l.logger, ActivityEvent{
		EventType:   eventType,
		Actor:       actor,
		PrincipalID: user.ID.String(),
		Metadata:    metadata,
	})

	return updated, nil
}

func allowedTransition(from, to UserStatus) bool {
	switch from {
	case UserStatusActive:
		return to == UserStatusSuspended
	case UserStatusSuspended:
		return to == UserStatusActive
	default:
		return false
	}
}
