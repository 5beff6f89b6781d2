package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/service"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
	"github.com/aulalabs/aula-api/pkg/response"
)

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param entity_type query string false "Filter by entity type"
// @Param entity_id query string false "Filter by entity"
// @Param user_id query string false "Filter by actor"
// @Param limit query int false "Page size"
// @Param skip query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	entries, err := h.audit.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
