// internal/handlers/approval.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medvault/medvault-backend/internal/middleware"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/services"
	"github.com/medvault/medvault-backend/internal/utils"
)

type ApprovalHandler struct {
	approvalService *services.ApprovalService
}

func NewApprovalHandler(approvalService *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// CreateApproval handles POST /api/v1/approvals. Patients grant a
// practitioner access to their records.
func (h *ApprovalHandler) CreateApproval(c *gin.Context) {
	patientID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req services.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}

	approval, err := h.approvalService.CreateApproval(c.Request.Context(), patientID, &req)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, approval)
}

// AcceptApproval handles POST /api/v1/approvals/:approval_id/accept. Only
// the addressed practitioner may accept.
func (h *ApprovalHandler) AcceptApproval(c *gin.Context) {
	h.resolve(c, true)
}

// RejectApproval handles POST /api/v1/approvals/:approval_id/reject.
func (h *ApprovalHandler) RejectApproval(c *gin.Context) {
	h.resolve(c, false)
}

func (h *ApprovalHandler) resolve(c *gin.Context, accept bool) {
	practitionerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	approvalID, err := uuid.Parse(c.Param("approval_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid approval id")
		return
	}

	var approval *models.Approval
	if accept {
		approval, err = h.approvalService.AcceptApproval(c.Request.Context(), approvalID, practitionerID)
	} else {
		approval, err = h.approvalService.RejectApproval(c.Request.Context(), approvalID, practitionerID)
	}
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, approval)
}

// GetApproval handles GET /api/v1/approvals/:approval_id.
func (h *ApprovalHandler) GetApproval(c *gin.Context) {
	callerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	approvalID, err := uuid.Parse(c.Param("approval_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid approval id")
		return
	}

	approval, err := h.approvalService.GetApproval(c.Request.Context(), approvalID, callerID)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, approval)
}

// ListMyApprovals handles GET /api/v1/approvals. Patients see the grants
// they issued; practitioners see the grants addressed to them.
func (h *ApprovalHandler) ListMyApprovals(c *gin.Context) {
	callerID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	params := parseApprovalSearchParams(c)

	var (
		approvals []models.Approval
		total     int64
		err       error
	)
	if c.GetString("user_type") == string(models.UserTypePractitioner) {
		approvals, total, err = h.approvalService.ListForPractitioner(c.Request.Context(), callerID, params)
	} else {
		approvals, total, err = h.approvalService.ListForPatient(c.Request.Context(), callerID, params)
	}
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.PaginatedResponse(c, approvals, utils.NewPagination(params.Page, params.Limit, total))
}

func parseApprovalSearchParams(c *gin.Context) services.ApprovalSearchParams {
	params := services.ApprovalSearchParams{
		Page:  utils.NormalizePage(queryInt(c, "page")),
		Limit: utils.NormalizeLimit(queryInt(c, "limit")),
	}

	if raw := c.Query("status"); raw != "" {
		status := models.ApprovalStatus(raw)
		if status.Valid() {
			params.Status = &status
		}
	}
	return params
}
