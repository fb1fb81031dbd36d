// internal/services/approval_validator.go
package services

import (
	"github.com/google/uuid"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
)

// DefaultApprovalDurationMs is applied when a create request omits the
// duration: one day.
const DefaultApprovalDurationMs int64 = 86_400_000

type CreateApprovalRequest struct {
	PractitionerID uuid.UUID          `json:"practitioner_id" validate:"required"`
	AccessLevel    models.AccessLevel `json:"access_level" validate:"required"`
	RecordID       *int64             `json:"record_id,omitempty"`
	DurationMs     *int64             `json:"duration_ms,omitempty"`
}

// ValidateApprovalRequest enforces the request-shape invariants: write and
// full access must name a record, and the duration, when provided, must be
// positive. It returns the effective duration in milliseconds. Pure function,
// no side effects.
func ValidateApprovalRequest(req *CreateApprovalRequest) (int64, error) {
	if !req.AccessLevel.Valid() {
		return 0, apperrors.ErrInvalidAccessLevel
	}

	if req.AccessLevel.RequiresRecordID() && req.RecordID == nil {
		return 0, apperrors.ErrRecordIDRequired
	}

	duration := DefaultApprovalDurationMs
	if req.DurationMs != nil {
		if *req.DurationMs <= 0 {
			return 0, apperrors.ErrInvalidDuration
		}
		duration = *req.DurationMs
	}

	return duration, nil
}
