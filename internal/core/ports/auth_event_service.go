package ports

import (
	"context"
	"time"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// AuthEventInput is the DTO handed to the audit dispatcher.
type AuthEventInput struct {
	Type       domain.AuthEventType
	IdentityID string
	Email      string
	Role       domain.Role
	Detail     string
	OccurredAt time.Time
}

// AuthEventService records audit events.
type AuthEventService interface {
	Process(ctx context.Context, event AuthEventInput) error
}

// AuthEventRecorder is how the auth service emits audit events without
// waiting on persistence.
type AuthEventRecorder interface {
	Enqueue(event AuthEventInput)
}
