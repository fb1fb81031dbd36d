// internal/store/postgres_store.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
)

type PostgresApprovalStore struct {
	db *gorm.DB
}

func NewPostgresApprovalStore(db *gorm.DB) *PostgresApprovalStore {
	return &PostgresApprovalStore{db: db}
}

func (s *PostgresApprovalStore) Create(ctx context.Context, a *models.Approval) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrApprovalAlreadyExists
		}
		return fmt.Errorf("failed to create approval: %w", err)
	}
	return nil
}

func (s *PostgresApprovalStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	var approval models.Approval
	if err := s.db.WithContext(ctx).First(&approval, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &approval, nil
}

func (s *PostgresApprovalStore) FindActive(ctx context.Context, patientID uuid.UUID, practitionerAddress string, recordID *int64) (*models.Approval, error) {
	query := s.db.WithContext(ctx).
		Where("patient_id = ? AND practitioner_address = ? AND status IN ?",
			patientID, practitionerAddress, statusStrings(models.ActiveApprovalStatuses()))
	if recordID != nil {
		query = query.Where("record_id = ?", *recordID)
	} else {
		query = query.Where("record_id IS NULL")
	}

	var approval models.Approval
	if err := query.First(&approval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &approval, nil
}

func (s *PostgresApprovalStore) ListActiveByPractitioner(ctx context.Context, patientID uuid.UUID, practitionerAddress string) ([]models.Approval, error) {
	var approvals []models.Approval
	err := s.db.WithContext(ctx).
		Where("patient_id = ? AND practitioner_address = ? AND status IN ?",
			patientID, practitionerAddress, statusStrings(models.ActiveApprovalStatuses())).
		Order("created_at DESC").
		Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return approvals, nil
}

func (s *PostgresApprovalStore) List(ctx context.Context, filter ApprovalFilter) ([]models.Approval, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Approval{})

	if filter.PatientID != nil {
		query = query.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.PractitionerID != nil {
		query = query.Where("practitioner_id = ?", *filter.PractitionerID)
	}
	if filter.PractitionerAddress != "" {
		query = query.Where("practitioner_address = ?", filter.PractitionerAddress)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count approvals: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var approvals []models.Approval
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&approvals).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approvals: %w", err)
	}
	return approvals, total, nil
}

func (s *PostgresApprovalStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) (*models.Approval, error) {
	result := s.db.WithContext(ctx).Model(&models.Approval{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Updates(map[string]interface{}{
			"status":              to,
			"is_request_accepted": accepted,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update approval: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing row from a row that lost the CAS.
		if _, err := s.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrApprovalNotPending
	}

	return s.GetByID(ctx, id)
}

func (s *PostgresApprovalStore) SaveTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	err := s.db.WithContext(ctx).Model(&models.Approval{}).
		Where("id = ?", id).
		Update("ledger_tx_hash", txHash).Error
	if err != nil {
		return fmt.Errorf("failed to save tx hash: %w", err)
	}
	return nil
}

func (s *PostgresApprovalStore) ListUnaccepted(ctx context.Context) ([]models.Approval, error) {
	var approvals []models.Approval
	err := s.db.WithContext(ctx).
		Where("is_request_accepted = ? AND status NOT IN ?", false,
			[]string{string(models.ApprovalStatusTimedOut), string(models.ApprovalStatusCompleted)}).
		Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan unaccepted approvals: %w", err)
	}
	return approvals, nil
}

func (s *PostgresApprovalStore) ListAcceptedOpen(ctx context.Context) ([]models.Approval, error) {
	var approvals []models.Approval
	err := s.db.WithContext(ctx).
		Where("is_request_accepted = ? AND status <> ?", true, models.ApprovalStatusCompleted).
		Find(&approvals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan accepted approvals: %w", err)
	}
	return approvals, nil
}

func (s *PostgresApprovalStore) BulkTransition(ctx context.Context, ids []uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// One conditional UPDATE over the collected ids; RETURNING reports which
	// rows actually matched the expected pre-states.
	var transitioned []uuid.UUID
	err := s.db.WithContext(ctx).Raw(
		`UPDATE approvals
		 SET status = ?, is_request_accepted = ?, updated_at = NOW()
		 WHERE id IN ? AND status IN ? AND deleted_at IS NULL
		 RETURNING id`,
		string(to), accepted, ids, statusStrings(from),
	).Scan(&transitioned).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bulk transition approvals: %w", err)
	}
	return transitioned, nil
}

func (s *PostgresApprovalStore) CountByStatus(ctx context.Context) (map[models.ApprovalStatus]int64, error) {
	type row struct {
		Status models.ApprovalStatus
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Approval{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count approvals by status: %w", err)
	}

	counts := make(map[models.ApprovalStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func statusStrings(statuses []models.ApprovalStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// PostgresUserStore backs UserStore with the users table.
type PostgresUserStore struct {
	db *gorm.DB
}

func NewPostgresUserStore(db *gorm.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}
