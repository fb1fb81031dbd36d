// internal/services/sweeper_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/store"
)

// SweeperService enforces approval expiration independently of user action.
// It shares no in-memory state with the lifecycle service; both coordinate
// exclusively through the store's conditional updates, so a scheduled run,
// a manual run and any number of accept/reject calls may overlap safely.
type SweeperService struct {
	approvals     store.ApprovalStore
	users         store.UserStore
	ledger        LedgerBridge
	notifications *NotificationService
	interval      time.Duration
	now           func() time.Time
}

// SweepResult reports what one sweep transitioned, for operational
// visibility on the manual trigger.
type SweepResult struct {
	RevokedCount       int         `json:"revoked_count"`
	RevokedApprovalIDs []uuid.UUID `json:"revoked_approval_ids"`
}

func NewSweeperService(approvals store.ApprovalStore, users store.UserStore, ledger LedgerBridge, notifications *NotificationService, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweeperService{
		approvals:     approvals,
		users:         users,
		ledger:        ledger,
		notifications: notifications,
		interval:      interval,
		now:           time.Now,
	}
}

// Start runs the sweep on a fixed schedule until ctx is cancelled. A failed
// run is logged and retried on the next tick; the two passes are independent
// and order-insensitive, so partial execution is safe to resume.
func (s *SweeperService) Start(ctx context.Context) {
	logrus.WithField("interval", s.interval).Info("Expiration sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Expiration sweeper stopped")
			return
		case <-ticker.C:
			result, err := s.Run(ctx)
			if err != nil {
				logrus.WithError(err).Error("Scheduled sweep failed, will retry on next tick")
				continue
			}
			if result.RevokedCount > 0 {
				logrus.WithField("revoked_count", result.RevokedCount).Info("Scheduled sweep revoked expired approvals")
			}
		}
	}
}

// Run executes both expiration passes once. Idempotent: a second run with no
// intervening writes transitions nothing.
func (s *SweeperService) Run(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{RevokedApprovalIDs: []uuid.UUID{}}

	timedOut, err := s.sweepUnaccepted(ctx)
	if err != nil {
		return nil, fmt.Errorf("unaccepted pass failed: %w", err)
	}
	result.RevokedApprovalIDs = append(result.RevokedApprovalIDs, timedOut...)

	revoked, err := s.sweepAccepted(ctx)
	if err != nil {
		return nil, fmt.Errorf("accepted pass failed: %w", err)
	}
	result.RevokedApprovalIDs = append(result.RevokedApprovalIDs, revoked...)

	result.RevokedCount = len(result.RevokedApprovalIDs)
	return result, nil
}

// sweepUnaccepted times out rows nobody accepted before their deadline. The
// transition is one bulk conditional update over the collected ids, so a row
// accepted between scan and update keeps its new state.
func (s *SweeperService) sweepUnaccepted(ctx context.Context) ([]uuid.UUID, error) {
	candidates, err := s.approvals.ListUnaccepted(ctx)
	if err != nil {
		return nil, err
	}

	expired := s.collectExpired(candidates)
	if len(expired) == 0 {
		return nil, nil
	}

	return s.approvals.BulkTransition(ctx, expired,
		[]models.ApprovalStatus{models.ApprovalStatusCreated, models.ApprovalStatusRejected},
		models.ApprovalStatusTimedOut, false)
}

// sweepAccepted retires accepted grants whose window has closed and informs
// the ledger so on-chain access does not outlive the approval record. A
// failed revoke dispatch is logged and does not undo the transition; the
// next reconciliation handles the gap.
func (s *SweeperService) sweepAccepted(ctx context.Context) ([]uuid.UUID, error) {
	candidates, err := s.approvals.ListAcceptedOpen(ctx)
	if err != nil {
		return nil, err
	}

	expired := s.collectExpired(candidates)
	if len(expired) == 0 {
		return nil, nil
	}

	transitioned, err := s.approvals.BulkTransition(ctx, expired,
		[]models.ApprovalStatus{models.ApprovalStatusAccepted},
		models.ApprovalStatusTimedOut, false)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Approval, len(candidates))
	for i := range candidates {
		byID[candidates[i].ID] = &candidates[i]
	}
	for _, id := range transitioned {
		if approval, ok := byID[id]; ok {
			s.dispatchRevoke(ctx, approval)
			if s.notifications != nil {
				if err := s.notifications.SendApprovalExpiredNotification(approval); err != nil {
					logrus.WithError(err).WithField("approval_id", approval.ID).
						Warn("Failed to send expiry notification")
				}
			}
		}
	}

	return transitioned, nil
}

// collectExpired filters the scan result down to rows past their deadline.
// A row with unusable timing data is logged and skipped; it must never abort
// the rest of the batch.
func (s *SweeperService) collectExpired(candidates []models.Approval) []uuid.UUID {
	now := s.now()

	var expired []uuid.UUID
	for i := range candidates {
		a := &candidates[i]
		if a.CreatedAt.IsZero() || a.DurationMs <= 0 {
			logrus.WithFields(logrus.Fields{
				"approval_id": a.ID,
				"created_at":  a.CreatedAt,
				"duration_ms": a.DurationMs,
			}).Warn("Skipping approval with unusable timing data")
			continue
		}
		if a.ExpiredAt(now) {
			expired = append(expired, a.ID)
		}
	}
	return expired
}

func (s *SweeperService) dispatchRevoke(ctx context.Context, approval *models.Approval) {
	if s.ledger == nil {
		return
	}

	patientChainID := ""
	if patient, err := s.users.GetUserByID(ctx, approval.PatientID); err == nil {
		patientChainID = patient.ChainAddress
	}

	_, err := s.ledger.DispatchRevoke(ctx, RevokeTx{
		ApprovalID:          approval.ID,
		PractitionerAddress: approval.PractitionerAddress,
		PatientChainID:      patientChainID,
		RecordID:            approval.RecordID,
	})
	if err != nil {
		logrus.WithError(err).WithField("approval_id", approval.ID).
			Error("Failed to dispatch ledger revoke for expired approval")
	}
}
