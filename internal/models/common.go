// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypePatient      UserType = "patient"
	UserTypePractitioner UserType = "practitioner"
	UserTypeAdmin        UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

type AccessLevel string

const (
	AccessLevelRead  AccessLevel = "read"
	AccessLevelWrite AccessLevel = "write"
	AccessLevelFull  AccessLevel = "full"
)

// RequiresRecordID reports whether approvals at this level must name a
// specific medical record.
func (l AccessLevel) RequiresRecordID() bool {
	return l == AccessLevelWrite || l == AccessLevelFull
}

func (l AccessLevel) Valid() bool {
	switch l {
	case AccessLevelRead, AccessLevelWrite, AccessLevelFull:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalStatusCreated   ApprovalStatus = "created"
	ApprovalStatusAccepted  ApprovalStatus = "accepted"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusCompleted ApprovalStatus = "completed"
	ApprovalStatusTimedOut  ApprovalStatus = "timed_out"
)

// IsTerminal reports whether no further status writes are permitted.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalStatusCompleted || s == ApprovalStatusTimedOut
}

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusCreated, ApprovalStatusAccepted, ApprovalStatusRejected,
		ApprovalStatusCompleted, ApprovalStatusTimedOut:
		return true
	}
	return false
}

// ActiveApprovalStatuses are the states that block a new approval for the
// same (patient, practitioner, record) tuple.
func ActiveApprovalStatuses() []ApprovalStatus {
	return []ApprovalStatus{ApprovalStatusCreated, ApprovalStatusAccepted}
}

type RecordCategory string

const (
	RecordCategoryConsultation RecordCategory = "consultation"
	RecordCategoryLabResult    RecordCategory = "lab_result"
	RecordCategoryPrescription RecordCategory = "prescription"
	RecordCategoryImaging      RecordCategory = "imaging"
	RecordCategoryVaccination  RecordCategory = "vaccination"
	RecordCategoryOther        RecordCategory = "other"
)

func (c RecordCategory) Valid() bool {
	switch c {
	case RecordCategoryConsultation, RecordCategoryLabResult, RecordCategoryPrescription,
		RecordCategoryImaging, RecordCategoryVaccination, RecordCategoryOther:
		return true
	}
	return false
}
