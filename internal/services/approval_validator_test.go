// internal/services/approval_validator_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestValidateApprovalRequest(t *testing.T) {
	practitionerID := uuid.New()

	tests := []struct {
		name         string
		req          CreateApprovalRequest
		wantDuration int64
		wantErr      error
	}{
		{
			name: "read without record uses default duration",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelRead,
			},
			wantDuration: DefaultApprovalDurationMs,
		},
		{
			name: "read scoped to a record is allowed",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelRead,
				RecordID:       int64Ptr(42),
			},
			wantDuration: DefaultApprovalDurationMs,
		},
		{
			name: "write requires a record id",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelWrite,
			},
			wantErr: apperrors.ErrRecordIDRequired,
		},
		{
			name: "full requires a record id",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelFull,
			},
			wantErr: apperrors.ErrRecordIDRequired,
		},
		{
			name: "write with record id passes",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelWrite,
				RecordID:       int64Ptr(7),
			},
			wantDuration: DefaultApprovalDurationMs,
		},
		{
			name: "unknown access level is rejected",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevel("owner"),
			},
			wantErr: apperrors.ErrInvalidAccessLevel,
		},
		{
			name: "zero duration is rejected",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelRead,
				DurationMs:     int64Ptr(0),
			},
			wantErr: apperrors.ErrInvalidDuration,
		},
		{
			name: "negative duration is rejected",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelRead,
				DurationMs:     int64Ptr(-1000),
			},
			wantErr: apperrors.ErrInvalidDuration,
		},
		{
			name: "explicit duration is returned",
			req: CreateApprovalRequest{
				PractitionerID: practitionerID,
				AccessLevel:    models.AccessLevelRead,
				DurationMs:     int64Ptr(3_600_000),
			},
			wantDuration: 3_600_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			duration, err := ValidateApprovalRequest(&tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantDuration, duration)
		})
	}
}
