// internal/models/approval.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval is a single time-bound access grant from a patient to a
// practitioner. Identity fields are immutable after creation; only Status,
// IsRequestAccepted and LedgerTxHash change over the lifecycle.
type Approval struct {
	BaseModel
	PatientID           uuid.UUID      `json:"patient_id" gorm:"type:uuid;not null;index"`
	PractitionerID      uuid.UUID      `json:"practitioner_id" gorm:"type:uuid;not null;index"`
	PractitionerAddress string         `json:"practitioner_address" gorm:"size:66;not null;index"`
	RecordID            *int64         `json:"record_id,omitempty" gorm:"index"`
	AccessLevel         AccessLevel    `json:"access_level" gorm:"type:varchar(10);not null"`
	DurationMs          int64          `json:"duration_ms" gorm:"not null"`
	Status              ApprovalStatus `json:"status" gorm:"type:varchar(20);default:'created';index"`
	IsRequestAccepted   bool           `json:"is_request_accepted" gorm:"default:false"`
	LedgerTxHash        string         `json:"ledger_tx_hash,omitempty" gorm:"size:66"`

	// Relationships
	Patient      User `json:"patient,omitempty" gorm:"foreignKey:PatientID"`
	Practitioner User `json:"practitioner,omitempty" gorm:"foreignKey:PractitionerID"`
}

// ExpiresAt is anchored on CreatedAt; the stored status may lag behind it
// until the sweeper runs.
func (a *Approval) ExpiresAt() time.Time {
	return a.CreatedAt.Add(time.Duration(a.DurationMs) * time.Millisecond)
}

// ExpiredAt reports whether the approval is logically expired at the given
// instant, regardless of whether a sweep has transitioned it yet.
func (a *Approval) ExpiredAt(now time.Time) bool {
	return now.After(a.ExpiresAt())
}

func (a *Approval) IsTerminal() bool {
	return a.Status.IsTerminal()
}
