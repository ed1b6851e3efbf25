package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signet-auth/signet-api/internal/domain/apikey"
	"github.com/signet-auth/signet-api/internal/handler/dto"
	"github.com/signet-auth/signet-api/internal/handler/middleware"
	"github.com/signet-auth/signet-api/internal/ierr"
	"github.com/signet-auth/signet-api/internal/service"
)

type APIKeyHandler struct {
	keys     *service.APIKeyService
	recorder *service.AuditRecorder
	logger   *zap.Logger
}

func NewAPIKeyHandler(keys *service.APIKeyService, recorder *service.AuditRecorder, logger *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		keys:     keys,
		recorder: recorder,
		logger:   logger.Named("APIKeyHandler"),
	}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind create api key request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	actor := middleware.GetActor(c)
	key, secret, err := h.keys.Create(c.Request.Context(), actor, service.CreateKeyInput{
		Subject:     req.Subject,
		SubjectType: apikey.SubjectType(req.SubjectType),
		Name:        req.Name,
		Description: req.Description,
		Scopes:      req.Scopes,
		Claims:      req.Claims,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateAPIKeyResponse{
		Key:    dto.NewAPIKeyResponse(key, time.Now().UTC()),
		Secret: secret,
	})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	subject := c.Query("subject")
	if subject == "" {
		if access := middleware.GetAccessContext(c); access != nil {
			subject = access.Subject
		}
	}
	if subject == "" {
		_ = c.Error(fmt.Errorf("%w: subject query parameter is required", ierr.ErrValidation))
		return
	}

	params := apikey.ListParams{
		Status: apikey.StatusFilter(c.DefaultQuery("status", string(apikey.FilterAll))),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	actor := middleware.GetActor(c)
	keys, total, err := h.keys.List(c.Request.Context(), actor, subject, params)
	if err != nil {
		_ = c.Error(err)
		return
	}

	now := time.Now().UTC()
	resp := dto.ListAPIKeysResponse{
		Keys:  make([]*dto.APIKeyResponse, len(keys)),
		Total: total,
	}
	for i, key := range keys {
		resp.Keys[i] = dto.NewAPIKeyResponse(key, now)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) Get(c *gin.Context) {
	id, ok := h.keyID(c)
	if !ok {
		return
	}

	key, err := h.keys.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAPIKeyResponse(key, time.Now().UTC()))
}

func (h *APIKeyHandler) Update(c *gin.Context) {
	id, ok := h.keyID(c)
	if !ok {
		return
	}

	var req dto.UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind update api key request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	key, err := h.keys.Update(c.Request.Context(), middleware.GetActor(c), id, apikey.Patch{
		Name:        req.Name,
		Description: req.Description,
		Scopes:      req.Scopes,
		Claims:      req.Claims,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.NewAPIKeyResponse(key, time.Now().UTC()))
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	id, ok := h.keyID(c)
	if !ok {
		return
	}

	var req dto.RevokeAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind revoke api key request", zap.Error(err))
		_ = c.Error(err)
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), middleware.GetActor(c), id, req.Reason); err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("API key revoked via handler", zap.String("id", id.String()))
	c.Status(http.StatusNoContent)
}

func (h *APIKeyHandler) ListEvents(c *gin.Context) {
	id, ok := h.keyID(c)
	if !ok {
		return
	}

	// Ownership check rides on Get; listing events for another
	// subject's key is forbidden the same way reading the key is.
	if _, err := h.keys.Get(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		_ = c.Error(err)
		return
	}

	events, total, err := h.recorder.ListForKey(c.Request.Context(), id, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.ListAuditEventsResponse{
		Events: make([]*dto.AuditEventResponse, len(events)),
		Total:  total,
	}
	for i, event := range events {
		resp.Events[i] = dto.NewAuditEventResponse(event)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIKeyHandler) keyID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid UUID format for api key id", zap.String("id_param", idStr))
		_ = c.Error(fmt.Errorf("%w: invalid api key id format", ierr.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
