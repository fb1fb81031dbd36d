// internal/models/record.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MedicalRecord keeps an integer primary key; approvals reference records by
// this id and the ledger contract indexes grants the same way.
type MedicalRecord struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement"`
	PatientID uuid.UUID      `json:"patient_id" gorm:"type:uuid;not null;index"`
	Category  RecordCategory `json:"category" gorm:"type:varchar(20);not null;index"`
	Title     string         `json:"title" gorm:"size:255;not null"`
	Summary   string         `json:"summary,omitempty" gorm:"type:text"`
	Data      JSONB          `json:"data" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relationships
	Patient     User               `json:"patient,omitempty" gorm:"foreignKey:PatientID"`
	Attachments []RecordAttachment `json:"attachments,omitempty" gorm:"foreignKey:RecordID"`
}

type RecordAttachment struct {
	BaseModel
	RecordID int64  `json:"record_id" gorm:"not null;index"`
	FileName string `json:"file_name" gorm:"size:255;not null"`
	FileKey  string `json:"file_key" gorm:"size:512;not null"`
	FileURL  string `json:"file_url" gorm:"size:1024"`
	MimeType string `json:"mime_type" gorm:"size:100"`
	Size     int64  `json:"size"`
}
