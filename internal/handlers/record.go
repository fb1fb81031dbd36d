// internal/handlers/record.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medvault/medvault-backend/internal/middleware"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/services"
	"github.com/medvault/medvault-backend/internal/utils"
)

type RecordHandler struct {
	recordService *services.RecordService
	authService   *services.AuthService
}

func NewRecordHandler(recordService *services.RecordService, authService *services.AuthService) *RecordHandler {
	return &RecordHandler{
		recordService: recordService,
		authService:   authService,
	}
}

// CreateRecord handles POST /api/v1/records. Only patients create records,
// always for themselves.
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	patientID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req services.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}

	record, err := h.recordService.CreateRecord(patientID, &req)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, record)
}

// GetRecord handles GET /api/v1/records/:record_id.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	requester, ok := h.requester(c)
	if !ok {
		return
	}

	recordID, err := strconv.ParseInt(c.Param("record_id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid record id")
		return
	}

	record, err := h.recordService.GetRecord(c.Request.Context(), recordID, requester)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, record)
}

// UpdateRecord handles PATCH /api/v1/records/:record_id.
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	requester, ok := h.requester(c)
	if !ok {
		return
	}

	recordID, err := strconv.ParseInt(c.Param("record_id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid record id")
		return
	}

	var req services.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}

	record, err := h.recordService.UpdateRecord(c.Request.Context(), recordID, requester, &req)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/v1/records/:record_id.
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	requester, ok := h.requester(c)
	if !ok {
		return
	}

	recordID, err := strconv.ParseInt(c.Param("record_id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid record id")
		return
	}

	if err := h.recordService.DeleteRecord(recordID, requester); err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, gin.H{"message": "record deleted"})
}

// ListPatientRecords handles GET /api/v1/patients/:patient_id/records.
func (h *RecordHandler) ListPatientRecords(c *gin.Context) {
	requester, ok := h.requester(c)
	if !ok {
		return
	}

	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid patient id")
		return
	}

	params := services.RecordSearchParams{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     utils.NormalizePage(queryInt(c, "page")),
		Limit:    utils.NormalizeLimit(queryInt(c, "limit")),
	}

	records, total, err := h.recordService.ListPatientRecords(c.Request.Context(), patientID, requester, params)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.PaginatedResponse(c, records, utils.NewPagination(params.Page, params.Limit, total))
}

// UploadAttachment handles POST /api/v1/records/:record_id/attachments.
func (h *RecordHandler) UploadAttachment(c *gin.Context) {
	requester, ok := h.requester(c)
	if !ok {
		return
	}

	recordID, err := strconv.ParseInt(c.Param("record_id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid record id")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "VALIDATION_FAILED", "file is required")
		return
	}

	attachment, err := h.recordService.AttachFile(c.Request.Context(), recordID, requester, file)
	if err != nil {
		utils.MapError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, attachment)
}

// requester loads the authenticated user; record authorization needs the
// user's type and chain address, not just the id.
func (h *RecordHandler) requester(c *gin.Context) (*models.User, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return nil, false
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "user not found")
		return nil, false
	}
	return user, true
}
