// internal/store/approval_store.go
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/medvault/medvault-backend/internal/models"
)

// ApprovalFilter narrows List queries. Zero-value fields are ignored.
type ApprovalFilter struct {
	PatientID           *uuid.UUID
	PractitionerID      *uuid.UUID
	PractitionerAddress string
	Status              *models.ApprovalStatus
	Page                int
	Limit               int
}

// ApprovalStore is the durable table of approvals. All cross-operation
// coordination goes through its conditional updates: every status write is
// guarded by the expected prior states, so a terminal state can never be
// reverted and concurrent writers resolve to exactly one winner.
type ApprovalStore interface {
	// Create inserts the approval at its initial status. The implementation
	// must enforce uniqueness of the active (patient, practitioner address,
	// record) tuple at the storage layer and return ErrApprovalAlreadyExists
	// on violation; the caller's pre-insert read alone cannot close the race
	// between two concurrent creates.
	Create(ctx context.Context, a *models.Approval) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Approval, error)

	// FindActive returns the non-terminal approval for the tuple, or
	// ErrApprovalNotFound when none exists.
	FindActive(ctx context.Context, patientID uuid.UUID, practitionerAddress string, recordID *int64) (*models.Approval, error)

	// ListActiveByPractitioner returns the practitioner's created/accepted
	// approvals from the given patient, newest first.
	ListActiveByPractitioner(ctx context.Context, patientID uuid.UUID, practitionerAddress string) ([]models.Approval, error)

	List(ctx context.Context, filter ApprovalFilter) ([]models.Approval, int64, error)

	// UpdateStatusIf transitions the row to the target status only if its
	// current status is one of from (compare-and-swap). It returns
	// ErrApprovalNotFound when the row does not exist and
	// ErrApprovalNotPending when the row exists but is no longer in an
	// expected state.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) (*models.Approval, error)

	// SaveTxHash records the ledger transaction hash after a successful
	// dispatch. Identity and status fields are untouched.
	SaveTxHash(ctx context.Context, id uuid.UUID, txHash string) error

	// ListUnaccepted returns rows with is_request_accepted = false in a
	// non-terminal status (sweep pass A candidates).
	ListUnaccepted(ctx context.Context) ([]models.Approval, error)

	// ListAcceptedOpen returns rows with is_request_accepted = true not yet
	// completed (sweep pass B candidates).
	ListAcceptedOpen(ctx context.Context) ([]models.Approval, error)

	// BulkTransition applies one conditional update over the collected ids
	// and returns the ids actually transitioned. Rows that left the expected
	// pre-states since the scan are skipped, not clobbered.
	BulkTransition(ctx context.Context, ids []uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) ([]uuid.UUID, error)

	CountByStatus(ctx context.Context) (map[models.ApprovalStatus]int64, error)
}

// UserStore is the slice of user lookups the approval engine needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
