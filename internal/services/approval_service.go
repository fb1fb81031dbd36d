// internal/services/approval_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/store"
)

// ApprovalService orchestrates the approval lifecycle: request validation,
// conflict detection, the create/accept/reject transitions and the
// compensating rollback when the ledger dispatch fails after the row is
// already inserted.
type ApprovalService struct {
	approvals           store.ApprovalStore
	users               store.UserStore
	directory           PractitionerDirectory
	ledger              LedgerBridge
	notificationService *NotificationService
	now                 func() time.Time
}

type ApprovalSearchParams struct {
	Status *models.ApprovalStatus
	Page   int
	Limit  int
}

func NewApprovalService(
	approvals store.ApprovalStore,
	users store.UserStore,
	directory PractitionerDirectory,
	ledger LedgerBridge,
	notificationService *NotificationService,
) *ApprovalService {
	return &ApprovalService{
		approvals:           approvals,
		users:               users,
		directory:           directory,
		ledger:              ledger,
		notificationService: notificationService,
		now:                 time.Now,
	}
}

func (s *ApprovalService) CreateApproval(ctx context.Context, patientID uuid.UUID, req *CreateApprovalRequest) (*models.Approval, error) {
	durationMs, err := ValidateApprovalRequest(req)
	if err != nil {
		return nil, err
	}

	patient, err := s.users.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthorized, "patient not found", err)
	}

	practitioner, err := s.lookupPractitioner(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}

	// Remote eligibility check. A negative, erroring or timed-out lookup is
	// a precondition failure, never silently retried: the state machine must
	// not advance on an unconfirmed precondition.
	eligible, err := s.directory.IsEligible(ctx, practitioner.ID, DirectoryRoleFor(req.AccessLevel))
	if err != nil || !eligible {
		if err != nil {
			logrus.WithError(err).WithField("practitioner_id", practitioner.ID).
				Warn("Practitioner eligibility lookup failed")
		}
		return nil, apperrors.ErrNotAValidPractitioner
	}

	// Pre-insert conflict read. The storage-level unique constraint on the
	// active tuple is the authoritative guard; this read only gives callers
	// a cheap, friendly failure for the common case.
	if _, err := s.approvals.FindActive(ctx, patientID, practitioner.ChainAddress, req.RecordID); err == nil {
		return nil, apperrors.ErrApprovalAlreadyExists
	}

	approval := &models.Approval{
		PatientID:           patientID,
		PractitionerID:      practitioner.ID,
		PractitionerAddress: practitioner.ChainAddress,
		RecordID:            req.RecordID,
		AccessLevel:         req.AccessLevel,
		DurationMs:          durationMs,
		Status:              models.ApprovalStatusCreated,
		IsRequestAccepted:   false,
	}

	if err := s.approvals.Create(ctx, approval); err != nil {
		return nil, err
	}

	txHash, err := s.ledger.DispatchGrant(ctx, GrantTx{
		PractitionerAddress: practitioner.ChainAddress,
		PatientChainID:      patient.ChainAddress,
		RecordID:            req.RecordID,
		AccessLevel:         string(req.AccessLevel),
		DurationMs:          durationMs,
	})
	if err != nil {
		s.compensateFailedDispatch(ctx, approval.ID, err)
		return nil, apperrors.Wrap(apperrors.CodeLedgerDispatchFailed, "ledger grant dispatch failed", err)
	}

	if err := s.approvals.SaveTxHash(ctx, approval.ID, txHash); err != nil {
		logrus.WithError(err).WithField("approval_id", approval.ID).
			Error("Failed to persist ledger tx hash")
	}
	approval.LedgerTxHash = txHash

	go s.sendRequestedNotification(approval, patient, practitioner)

	return approval, nil
}

// compensateFailedDispatch retires the just-inserted row so a grant that
// never reached the ledger cannot look active. The rollback runs on a
// context detached from the request: when the dispatch failed because the
// caller's context was cancelled or timed out, the same dead context would
// doom the rollback too. If the compensation itself fails the two systems
// disagree and the row is flagged for manual reconciliation.
func (s *ApprovalService) compensateFailedDispatch(ctx context.Context, approvalID uuid.UUID, dispatchErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := s.approvals.UpdateStatusIf(ctx, approvalID,
		[]models.ApprovalStatus{models.ApprovalStatusCreated},
		models.ApprovalStatusRejected, false)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"approval_id":    approvalID,
			"dispatch_error": dispatchErr,
		}).WithError(err).Error("INCONSISTENCY: approval row could not be rolled back after failed ledger dispatch, manual reconciliation required")
	}
}

func (s *ApprovalService) AcceptApproval(ctx context.Context, approvalID, practitionerID uuid.UUID) (*models.Approval, error) {
	return s.resolvePending(ctx, approvalID, practitionerID, models.ApprovalStatusAccepted, true)
}

func (s *ApprovalService) RejectApproval(ctx context.Context, approvalID, practitionerID uuid.UUID) (*models.Approval, error) {
	return s.resolvePending(ctx, approvalID, practitionerID, models.ApprovalStatusRejected, false)
}

func (s *ApprovalService) resolvePending(ctx context.Context, approvalID, practitionerID uuid.UUID, to models.ApprovalStatus, accepted bool) (*models.Approval, error) {
	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	practitioner, err := s.users.GetUserByID(ctx, practitionerID)
	if err != nil || practitioner.ChainAddress != approval.PractitionerAddress {
		// The caller is not the addressed practitioner; do not reveal the row.
		return nil, apperrors.ErrApprovalNotFound
	}

	if approval.Status != models.ApprovalStatusCreated {
		return nil, apperrors.ErrApprovalNotPending
	}

	// A row past its expiry is logically dead even before the sweeper has
	// transitioned it; refuse rather than honor a stale grant.
	if approval.ExpiredAt(s.now()) {
		return nil, apperrors.ErrApprovalNotPending
	}

	// Conditional update: if the sweeper (or a concurrent call) won the race
	// since the read above, exactly one writer succeeds and this caller gets
	// a clean not-pending result instead of clobbering state.
	updated, err := s.approvals.UpdateStatusIf(ctx, approvalID,
		[]models.ApprovalStatus{models.ApprovalStatusCreated}, to, accepted)
	if err != nil {
		return nil, err
	}

	go s.sendResolvedNotification(updated, accepted)

	return updated, nil
}

func (s *ApprovalService) GetApproval(ctx context.Context, approvalID, callerID uuid.UUID) (*models.Approval, error) {
	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	if approval.PatientID != callerID && approval.PractitionerID != callerID {
		caller, err := s.users.GetUserByID(ctx, callerID)
		if err != nil || caller.UserType != models.UserTypeAdmin {
			return nil, apperrors.ErrApprovalNotFound
		}
	}

	return approval, nil
}

func (s *ApprovalService) ListForPatient(ctx context.Context, patientID uuid.UUID, params ApprovalSearchParams) ([]models.Approval, int64, error) {
	return s.approvals.List(ctx, store.ApprovalFilter{
		PatientID: &patientID,
		Status:    params.Status,
		Page:      params.Page,
		Limit:     params.Limit,
	})
}

func (s *ApprovalService) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, params ApprovalSearchParams) ([]models.Approval, int64, error) {
	return s.approvals.List(ctx, store.ApprovalFilter{
		PractitionerID: &practitionerID,
		Status:         params.Status,
		Page:           params.Page,
		Limit:          params.Limit,
	})
}

func (s *ApprovalService) ListAll(ctx context.Context, params ApprovalSearchParams) ([]models.Approval, int64, error) {
	return s.approvals.List(ctx, store.ApprovalFilter{
		Status: params.Status,
		Page:   params.Page,
		Limit:  params.Limit,
	})
}

func (s *ApprovalService) GetStatistics(ctx context.Context) (map[string]interface{}, error) {
	counts, err := s.approvals.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to gather approval statistics: %w", err)
	}

	stats := make(map[string]interface{}, len(counts)+1)
	var total int64
	for status, count := range counts {
		stats[string(status)] = count
		total += count
	}
	stats["total"] = total
	return stats, nil
}

// HasActiveAccess reports whether the practitioner currently holds an
// accepted, unexpired approval from the patient sufficient for the desired
// access level. Record-scoped levels require a matching record id.
func (s *ApprovalService) HasActiveAccess(ctx context.Context, patientID uuid.UUID, practitionerAddress string, recordID int64, desired models.AccessLevel) (bool, error) {
	approvals, err := s.approvals.ListActiveByPractitioner(ctx, patientID, practitionerAddress)
	if err != nil {
		return false, err
	}

	now := s.now()
	for i := range approvals {
		a := &approvals[i]
		if a.Status != models.ApprovalStatusAccepted || a.ExpiredAt(now) {
			continue
		}
		if desired.RequiresRecordID() {
			if a.AccessLevel.RequiresRecordID() && a.RecordID != nil && *a.RecordID == recordID {
				return true, nil
			}
			continue
		}
		// Read access: a patient-wide read grant or any grant scoped to this
		// record suffices.
		if a.RecordID == nil || *a.RecordID == recordID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ApprovalService) lookupPractitioner(ctx context.Context, practitionerID uuid.UUID) (*models.User, error) {
	practitioner, err := s.users.GetUserByID(ctx, practitionerID)
	if err != nil {
		return nil, apperrors.ErrNotAValidPractitioner
	}
	if practitioner.UserType != models.UserTypePractitioner ||
		practitioner.Status != models.UserStatusActive ||
		practitioner.ChainAddress == "" {
		return nil, apperrors.ErrNotAValidPractitioner
	}
	return practitioner, nil
}

// Notification fan-out

func (s *ApprovalService) sendRequestedNotification(approval *models.Approval, patient, practitioner *models.User) {
	if s.notificationService == nil {
		return
	}
	s.notificationService.SendApprovalRequestedNotification(approval, patient, practitioner)
}

func (s *ApprovalService) sendResolvedNotification(approval *models.Approval, accepted bool) {
	if s.notificationService == nil {
		return
	}
	if accepted {
		s.notificationService.SendApprovalAcceptedNotification(approval)
	} else {
		s.notificationService.SendApprovalRejectedNotification(approval)
	}
}
