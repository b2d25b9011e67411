package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	// maxPage keeps (page-1)*limit far from overflowing the repository skip.
	maxPage = 10_000
)

// IdentityAdminService implements the admin dashboard's account operations.
type IdentityAdminService struct {
	repo     ports.IdentityRepository
	recorder ports.AuthEventRecorder
	logger   zerolog.Logger
}

func NewIdentityAdminService(repo ports.IdentityRepository, recorder ports.AuthEventRecorder, logger zerolog.Logger) *IdentityAdminService {
	return &IdentityAdminService{repo: repo, recorder: recorder, logger: logger}
}

// ListIdentities returns one page of identities matching the filters.
func (s *IdentityAdminService) ListIdentities(ctx context.Context, in ports.ListIdentitiesInput) (*ports.ListIdentitiesResult, error) {
	filter := ports.ListIdentitiesFilter{
		Search: in.Search,
		Page:   in.Page,
		Limit:  in.Limit,
	}
	if in.Role != "" {
		role := domain.Role(in.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("list identities: %w: %q", domain.ErrInvalidRole, in.Role)
		}
		filter.Role = role
	}
	if in.KYCStatus != "" {
		status := domain.KYCStatus(in.KYCStatus)
		if !status.Valid() {
			return nil, fmt.Errorf("list identities: %w: %q", domain.ErrInvalidKYCStatus, in.KYCStatus)
		}
		filter.KYCStatus = status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Page > maxPage {
		filter.Page = maxPage
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	totalPages := int(total) / filter.Limit
	if int(total)%filter.Limit != 0 {
		totalPages++
	}

	return &ports.ListIdentitiesResult{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// SetKYCStatus records the outcome of a KYC review.
func (s *IdentityAdminService) SetKYCStatus(ctx context.Context, id string, status domain.KYCStatus) (*domain.Identity, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("set kyc: %w: %q", domain.ErrInvalidKYCStatus, status)
	}
	if err := s.repo.UpdateKYCStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("set kyc: %w", err)
	}

	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("set kyc: %w", err)
	}

	s.logger.Info().Str("identity_id", id).Str("kyc_status", string(status)).Msg("kyc status updated")
	if s.recorder != nil {
		s.recorder.Enqueue(ports.AuthEventInput{
			Type:       domain.EventKYCUpdated,
			IdentityID: identity.ID,
			Email:      identity.Email,
			Role:       identity.Role,
			Detail:     string(status),
			OccurredAt: time.Now().UTC(),
		})
	}
	return identity, nil
}
