// internal/handlers/admin.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medvault/medvault-backend/internal/services"
	"github.com/medvault/medvault-backend/internal/utils"
)

type AdminHandler struct {
	approvalService *services.ApprovalService
	sweeperService  *services.SweeperService
}

func NewAdminHandler(approvalService *services.ApprovalService, sweeperService *services.SweeperService) *AdminHandler {
	return &AdminHandler{
		approvalService: approvalService,
		sweeperService:  sweeperService,
	}
}

// RunCleanup handles POST /api/v1/admin/approvals/cleanup. It triggers an
// immediate expiration sweep and reports what was revoked.
func (h *AdminHandler) RunCleanup(c *gin.Context) {
	result, err := h.sweeperService.Run(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "SWEEP_FAILED", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, result)
}

// ListApprovals handles GET /api/v1/admin/approvals.
func (h *AdminHandler) ListApprovals(c *gin.Context) {
	params := parseApprovalSearchParams(c)

	approvals, total, err := h.approvalService.ListAll(c.Request.Context(), params)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.PaginatedResponse(c, approvals, utils.NewPagination(params.Page, params.Limit, total))
}

// GetStatistics handles GET /api/v1/admin/approvals/statistics.
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	stats, err := h.approvalService.GetStatistics(c.Request.Context())
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, stats)
}
