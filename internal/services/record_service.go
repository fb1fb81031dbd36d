// internal/services/record_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/database"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/utils"
)

// RecordService manages medical records and enforces that practitioners only
// read or modify them through an accepted, unexpired approval.
type RecordService struct {
	db        *gorm.DB
	approvals *ApprovalService
	storage   *StorageService
}

type CreateRecordRequest struct {
	Category models.RecordCategory  `json:"category" validate:"required"`
	Title    string                 `json:"title" validate:"required,min=3,max=200"`
	Summary  string                 `json:"summary,omitempty" validate:"max=2000"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type UpdateRecordRequest struct {
	Title   *string                `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Summary *string                `json:"summary,omitempty" validate:"omitempty,max=2000"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type RecordSearchParams struct {
	Category string `form:"category"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

func NewRecordService(db *gorm.DB, approvals *ApprovalService, storage *StorageService) *RecordService {
	return &RecordService{
		db:        db,
		approvals: approvals,
		storage:   storage,
	}
}

// CreateRecord creates a record owned by the given patient.
func (s *RecordService) CreateRecord(patientID uuid.UUID, req *CreateRecordRequest) (*models.MedicalRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidationFailed, "invalid record payload", err)
	}

	if !req.Category.Valid() {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "invalid record category")
	}

	record := &models.MedicalRecord{
		PatientID: patientID,
		Category:  req.Category,
		Title:     req.Title,
		Summary:   req.Summary,
		Data:      models.JSONB(req.Data),
	}

	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"record_id":  record.ID,
		"patient_id": patientID,
		"category":   record.Category,
	}).Info("Medical record created")

	return record, nil
}

// GetRecord returns a record to its owner, an admin, or a practitioner
// holding at least read access for it.
func (s *RecordService) GetRecord(ctx context.Context, recordID int64, requester *models.User) (*models.MedicalRecord, error) {
	var record models.MedicalRecord
	if err := s.db.Preload("Attachments").First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.authorize(ctx, &record, requester, models.AccessLevelRead); err != nil {
		return nil, err
	}

	return &record, nil
}

// UpdateRecord applies a partial update. Practitioners need write or full
// access; the owner and admins may always update.
func (s *RecordService) UpdateRecord(ctx context.Context, recordID int64, requester *models.User, req *UpdateRecordRequest) (*models.MedicalRecord, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidationFailed, "invalid record payload", err)
	}

	var record models.MedicalRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.authorize(ctx, &record, requester, models.AccessLevelWrite); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Summary != nil {
		updates["summary"] = *req.Summary
	}
	if req.Data != nil {
		updates["data"] = models.JSONB(req.Data)
	}
	if len(updates) == 0 {
		return &record, nil
	}

	if err := s.db.Model(&record).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	return &record, nil
}

// DeleteRecord soft-deletes a record. Only the owner or an admin may delete;
// no approval level grants deletion.
func (s *RecordService) DeleteRecord(recordID int64, requester *models.User) error {
	var record models.MedicalRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrRecordNotFound
		}
		return fmt.Errorf("database error: %w", err)
	}

	if record.PatientID != requester.ID && requester.UserType != models.UserTypeAdmin {
		return apperrors.ErrAccessDenied
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", recordID).Delete(&models.RecordAttachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&record).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"record_id":  recordID,
		"deleted_by": requester.ID,
	}).Info("Medical record deleted")

	return nil
}

// ListPatientRecords returns the records of one patient, paginated. The
// requester must be the patient, an admin, or a practitioner with a
// patient-wide read approval.
func (s *RecordService) ListPatientRecords(ctx context.Context, patientID uuid.UUID, requester *models.User, params RecordSearchParams) ([]models.MedicalRecord, int64, error) {
	if requester.ID != patientID && requester.UserType != models.UserTypeAdmin {
		if requester.UserType != models.UserTypePractitioner {
			return nil, 0, apperrors.ErrAccessDenied
		}
		// Patient-wide read is modeled as an approval without a record id;
		// HasActiveAccess with id 0 matches only those.
		ok, err := s.approvals.HasActiveAccess(ctx, patientID, requester.ChainAddress, 0, models.AccessLevelRead)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, apperrors.ErrAccessDenied
		}
	}

	query := s.db.Model(&models.MedicalRecord{}).Where("patient_id = ?", patientID)

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("title ILIKE ? OR summary ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	page := utils.NormalizePage(params.Page)
	limit := utils.NormalizeLimit(params.Limit)

	var records []models.MedicalRecord
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}

	return records, total, nil
}

// AttachFile uploads a file for a record and persists the attachment row in
// one transaction with the upload already done; a failed insert removes the
// uploaded object.
func (s *RecordService) AttachFile(ctx context.Context, recordID int64, requester *models.User, file *multipart.FileHeader) (*models.RecordAttachment, error) {
	if s.storage == nil {
		return nil, errors.New("attachment storage is not configured")
	}

	var record models.MedicalRecord
	if err := s.db.First(&record, recordID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.authorize(ctx, &record, requester, models.AccessLevelWrite); err != nil {
		return nil, err
	}

	upload, err := s.storage.UploadRecordFile(file, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	attachment := &models.RecordAttachment{
		RecordID: record.ID,
		FileName: file.Filename,
		FileKey:  upload.Key,
		FileURL:  upload.URL,
		MimeType: upload.ContentType,
		Size:     file.Size,
	}

	if err := s.db.Create(attachment).Error; err != nil {
		if delErr := s.storage.DeleteFile(upload.Key); delErr != nil {
			logrus.WithError(delErr).WithField("key", upload.Key).
				Warn("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}

	return attachment, nil
}

// authorize allows the owner and admins unconditionally; practitioners must
// hold an accepted, unexpired approval of at least the desired level.
func (s *RecordService) authorize(ctx context.Context, record *models.MedicalRecord, requester *models.User, desired models.AccessLevel) error {
	if record.PatientID == requester.ID || requester.UserType == models.UserTypeAdmin {
		return nil
	}
	if requester.UserType != models.UserTypePractitioner {
		return apperrors.ErrAccessDenied
	}

	ok, err := s.approvals.HasActiveAccess(ctx, record.PatientID, requester.ChainAddress, record.ID, desired)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrAccessDenied
	}
	return nil
}
