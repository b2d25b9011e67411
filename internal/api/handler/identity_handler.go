package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// IdentityHandler serves the admin dashboard's account management.
type IdentityHandler struct {
	service ports.IdentityAdminService
}

func NewIdentityHandler(service ports.IdentityAdminService) *IdentityHandler {
	return &IdentityHandler{service: service}
}

// List handles GET /v1/admin/identities.
//
// @Summary      List identities
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        role        query     string  false  "customer, owner, broker or admin"
// @Param        kyc_status  query     string  false  "pending, verified or rejected"
// @Param        search      query     string  false  "Partial match on name or email"
// @Param        page        query     int     false  "1-based page"
// @Param        limit       query     int     false  "Page size (max 100)"
// @Success      200         {object}  listIdentitiesResponse
// @Failure      401         {object}  errorResponse
// @Failure      403         {object}  errorResponse
// @Failure      422         {object}  errorResponse
// @Router       /v1/admin/identities [get]
func (h *IdentityHandler) List(c echo.Context) error {
	page, err := intQuery(c, "page")
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}

	result, err := h.service.ListIdentities(c.Request().Context(), ports.ListIdentitiesInput{
		Role:      c.QueryParam("role"),
		KYCStatus: c.QueryParam("kyc_status"),
		Search:    c.QueryParam("search"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(result))
}

// UpdateKYC handles PATCH /v1/admin/identities/:id/kyc.
//
// @Summary      Set an identity's KYC status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "Identity ID (e.g. ECO2547002)"
// @Param        body  body      kycUpdateRequest  true  "New KYC status"
// @Success      200   {object}  identityResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/admin/identities/{id}/kyc [patch]
func (h *IdentityHandler) UpdateKYC(c echo.Context) error {
	var req kycUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	identity, err := h.service.SetKYCStatus(c.Request().Context(), c.Param("id"), domain.KYCStatus(req.KYCStatus))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toIdentityResponse(identity))
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
