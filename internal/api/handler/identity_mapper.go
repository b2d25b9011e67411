package handler

import (
	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

func toIdentityResponse(i *domain.Identity) identityResponse {
	return identityResponse{
		ID:                 i.ID,
		Name:               i.Name,
		Email:              i.Email,
		Phone:              i.Phone,
		Role:               string(i.Role),
		KYCStatus:          string(i.KYCStatus),
		SubscriptionStatus: string(i.SubscriptionStatus),
		CreatedAt:          i.CreatedAt.UTC(),
	}
}

func toAuthResponse(g *ports.Grant) authResponse {
	return authResponse{
		Token:     g.Token,
		ExpiresAt: g.ExpiresAt.UTC(),
		User:      toIdentityResponse(g.Identity),
	}
}

func toListResponse(r *ports.ListIdentitiesResult) listIdentitiesResponse {
	items := make([]identityResponse, len(r.Items))
	for i, identity := range r.Items {
		items[i] = toIdentityResponse(identity)
	}
	return listIdentitiesResponse{
		Data: items,
		Pagination: paginationResponse{
			Total:      r.Total,
			Page:       r.Page,
			Limit:      r.Limit,
			TotalPages: r.TotalPages,
		},
	}
}
