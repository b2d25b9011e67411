package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

type authEventService struct {
	repo ports.AuthEventRepository
	log  zerolog.Logger
}

// NewAuthEventService returns an AuthEventService that writes to repo.
func NewAuthEventService(repo ports.AuthEventRepository, log zerolog.Logger) ports.AuthEventService {
	return &authEventService{repo: repo, log: log}
}

// Process stamps and persists one audit event.
func (s *authEventService) Process(ctx context.Context, in ports.AuthEventInput) error {
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := &domain.AuthEvent{
		ID:         uuid.NewString(),
		Type:       in.Type,
		IdentityID: in.IdentityID,
		Email:      domain.NormalizeEmail(in.Email),
		Role:       in.Role,
		Detail:     in.Detail,
		OccurredAt: occurredAt,
	}

	if err := s.repo.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("record %s: %w", in.Type, err)
	}

	s.log.Debug().
		Str("type", string(in.Type)).
		Str("identity_id", in.IdentityID).
		Msg("auth event recorded")
	return nil
}
