// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/apperrors"
)

type APIResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func SuccessResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Data:    data,
	})
}

func PaginatedResponse(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, APIResponse{
		Success:    true,
		Data:       data,
		Pagination: &pagination,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// MapError translates a service error into an HTTP response using its
// error code. Unknown codes are reported as internal errors without
// leaking the underlying message.
func MapError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)

	var appErr *apperrors.Error
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	status, known := statusForCode(code)
	if !known {
		logrus.WithError(err).Error("Unhandled service error")
		ErrorResponse(c, http.StatusInternalServerError, string(apperrors.CodeInternal), "internal server error")
		return
	}

	ErrorResponse(c, status, string(code), message)
}

func statusForCode(code apperrors.Code) (int, bool) {
	switch code {
	case apperrors.CodeValidationFailed,
		apperrors.CodeRecordIDRequired,
		apperrors.CodeInvalidDuration,
		apperrors.CodeInvalidAccessLevel:
		return http.StatusBadRequest, true
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized, true
	case apperrors.CodeAccessDenied,
		apperrors.CodeNotAValidPractitioner:
		return http.StatusForbidden, true
	case apperrors.CodeApprovalNotFound,
		apperrors.CodeRecordNotFound:
		return http.StatusNotFound, true
	case apperrors.CodeApprovalAlreadyExists,
		apperrors.CodeApprovalNotPending:
		return http.StatusConflict, true
	case apperrors.CodeLedgerDispatchFailed:
		return http.StatusBadGateway, true
	default:
		return 0, false
	}
}
