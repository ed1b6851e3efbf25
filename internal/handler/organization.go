package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/handler/dto"
	"github.com/signet-auth/signet-api/internal/service"
)

type OrganizationHandler struct {
	orgs   *service.OrganizationService
	logger *zap.Logger
}

func NewOrganizationHandler(orgs *service.OrganizationService, logger *zap.Logger) *OrganizationHandler {
	return &OrganizationHandler{
		orgs:   orgs,
		logger: logger.Named("OrganizationHandler"),
	}
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req dto.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create organization request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	org, err := h.orgs.Create(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewOrganizationResponse(org))
}

func (h *OrganizationHandler) GetBySlug(c *gin.Context) {
	org, err := h.orgs.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewOrganizationResponse(org))
}

func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, total, err := h.orgs.List(c.Request.Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.ListOrganizationsResponse{
		Organizations: make([]*dto.OrganizationResponse, len(orgs)),
		Total:         total,
	}
	for i, org := range orgs {
		resp.Organizations[i] = dto.NewOrganizationResponse(org)
	}
	c.JSON(http.StatusOK, resp)
}
