// internal/services/approval_service_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/store"
)

type fakeDirectory struct {
	eligible bool
	err      error

	mtx   sync.Mutex
	calls []string
}

func (f *fakeDirectory) IsEligible(ctx context.Context, practitionerID uuid.UUID, role string) (bool, error) {
	f.mtx.Lock()
	f.calls = append(f.calls, role)
	f.mtx.Unlock()
	return f.eligible, f.err
}

type fakeLedger struct {
	grantErr  error
	revokeErr error

	mtx         sync.Mutex
	grantCalls  []GrantTx
	revokeCalls []RevokeTx
}

func (f *fakeLedger) DispatchGrant(ctx context.Context, tx GrantTx) (string, error) {
	f.mtx.Lock()
	f.grantCalls = append(f.grantCalls, tx)
	f.mtx.Unlock()
	if f.grantErr != nil {
		return "", f.grantErr
	}
	return "0xgrant", nil
}

func (f *fakeLedger) DispatchRevoke(ctx context.Context, tx RevokeTx) (string, error) {
	f.mtx.Lock()
	f.revokeCalls = append(f.revokeCalls, tx)
	f.mtx.Unlock()
	if f.revokeErr != nil {
		return "", f.revokeErr
	}
	return "0xrevoke", nil
}

func (f *fakeLedger) revokes() []RevokeTx {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]RevokeTx(nil), f.revokeCalls...)
}

type approvalFixture struct {
	svc          *ApprovalService
	approvals    *store.MemoryApprovalStore
	users        *store.MemoryUserStore
	directory    *fakeDirectory
	ledger       *fakeLedger
	patient      *models.User
	practitioner *models.User
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()

	approvals := store.NewMemoryApprovalStore()
	users := store.NewMemoryUserStore()
	directory := &fakeDirectory{eligible: true}
	ledger := &fakeLedger{}

	patient := &models.User{
		Username:     "alice",
		UserType:     models.UserTypePatient,
		Status:       models.UserStatusActive,
		ChainAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	practitioner := &models.User{
		Username:     "dr-bob",
		UserType:     models.UserTypePractitioner,
		Status:       models.UserStatusActive,
		ChainAddress: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	users.Put(patient)
	users.Put(practitioner)

	svc := NewApprovalService(approvals, users, directory, ledger, nil)

	return &approvalFixture{
		svc:          svc,
		approvals:    approvals,
		users:        users,
		directory:    directory,
		ledger:       ledger,
		patient:      patient,
		practitioner: practitioner,
	}
}

func (f *approvalFixture) createApproval(t *testing.T, req *CreateApprovalRequest) *models.Approval {
	t.Helper()
	approval, err := f.svc.CreateApproval(context.Background(), f.patient.ID, req)
	require.NoError(t, err)
	return approval
}

func TestCreateApproval(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	assert.Equal(t, models.ApprovalStatusCreated, approval.Status)
	assert.False(t, approval.IsRequestAccepted)
	assert.Equal(t, f.practitioner.ChainAddress, approval.PractitionerAddress)
	assert.Equal(t, DefaultApprovalDurationMs, approval.DurationMs)
	assert.Equal(t, "0xgrant", approval.LedgerTxHash)
	assert.Nil(t, approval.RecordID)

	stored, err := f.approvals.GetByID(context.Background(), approval.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xgrant", stored.LedgerTxHash)
}

func TestCreateApprovalWriteNeedsRecord(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
	})

	assert.ErrorIs(t, err, apperrors.ErrRecordIDRequired)
	assert.Empty(t, f.ledger.grantCalls, "nothing should reach the ledger on a validation failure")
}

func TestCreateApprovalIneligiblePractitioner(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.eligible = false

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAValidPractitioner)
}

func TestCreateApprovalDirectoryFailureIsIneligibility(t *testing.T) {
	f := newApprovalFixture(t)
	f.directory.eligible = false
	f.directory.err = errors.New("directory timeout")

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAValidPractitioner)
	assert.Empty(t, f.ledger.grantCalls)
}

func TestCreateApprovalDirectoryRoleMatchesLevel(t *testing.T) {
	f := newApprovalFixture(t)

	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
		RecordID:       int64Ptr(3),
	})

	assert.Equal(t, []string{DirectoryRoleViewer, DirectoryRoleEditor}, f.directory.calls)
}

func TestCreateApprovalRejectsNonPractitioners(t *testing.T) {
	f := newApprovalFixture(t)

	otherPatient := &models.User{
		Username:     "carol",
		UserType:     models.UserTypePatient,
		Status:       models.UserStatusActive,
		ChainAddress: "0xcccccccccccccccccccccccccccccccccccccccc",
	}
	f.users.Put(otherPatient)

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: otherPatient.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAValidPractitioner)
}

func TestCreateApprovalRejectsSuspendedPractitioner(t *testing.T) {
	f := newApprovalFixture(t)

	suspended := &models.User{
		Username:     "dr-eve",
		UserType:     models.UserTypePractitioner,
		Status:       models.UserStatusSuspended,
		ChainAddress: "0xdddddddddddddddddddddddddddddddddddddddd",
	}
	f.users.Put(suspended)

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: suspended.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAValidPractitioner)
}

func TestCreateApprovalConflict(t *testing.T) {
	f := newApprovalFixture(t)

	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
		RecordID:       int64Ptr(1),
	})

	// Same tuple again: blocked while the first is still active.
	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
		RecordID:       int64Ptr(1),
	})
	assert.ErrorIs(t, err, apperrors.ErrApprovalAlreadyExists)

	// A different record is a different tuple.
	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
		RecordID:       int64Ptr(2),
	})

	// Patient-wide (nil record) does not collide with record-scoped grants.
	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
}

func TestCreateApprovalConcurrentDuplicates(t *testing.T) {
	f := newApprovalFixture(t)

	const workers = 8
	results := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
				PractitionerID: f.practitioner.ID,
				AccessLevel:    models.AccessLevelWrite,
				RecordID:       int64Ptr(9),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.ErrApprovalAlreadyExists):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one concurrent create may win")
	assert.Equal(t, workers-1, conflicted)
}

func TestCreateApprovalCompensatesFailedDispatch(t *testing.T) {
	f := newApprovalFixture(t)
	f.ledger.grantErr = errors.New("gateway unreachable")

	_, err := f.svc.CreateApproval(context.Background(), f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLedgerDispatchFailed, apperrors.CodeOf(err))

	// The inserted row must not remain active.
	_, err = f.approvals.FindActive(context.Background(), f.patient.ID, f.practitioner.ChainAddress, nil)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotFound)

	// The tuple is free again once compensation has run.
	f.ledger.grantErr = nil
	f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
}

// ctxSensitiveStore refuses writes once the caller's context is done, the
// way a real database driver does.
type ctxSensitiveStore struct {
	store.ApprovalStore
}

func (s *ctxSensitiveStore) Create(ctx context.Context, a *models.Approval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ApprovalStore.Create(ctx, a)
}

func (s *ctxSensitiveStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) (*models.Approval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ApprovalStore.UpdateStatusIf(ctx, id, from, to, accepted)
}

// cancellingLedger simulates the request deadline expiring mid-dispatch:
// the grant call cancels the caller's context and fails with its error.
type cancellingLedger struct {
	cancel context.CancelFunc
}

func (l *cancellingLedger) DispatchGrant(ctx context.Context, tx GrantTx) (string, error) {
	l.cancel()
	return "", ctx.Err()
}

func (l *cancellingLedger) DispatchRevoke(ctx context.Context, tx RevokeTx) (string, error) {
	return "0xrevoke", nil
}

func TestCreateApprovalCompensatesOnCancelledContext(t *testing.T) {
	f := newApprovalFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewApprovalService(&ctxSensitiveStore{f.approvals}, f.users, f.directory,
		&cancellingLedger{cancel: cancel}, nil)

	_, err := svc.CreateApproval(ctx, f.patient.ID, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLedgerDispatchFailed, apperrors.CodeOf(err))

	// The rollback must not ride the dead request context; the row is
	// retired even though the caller's context is already cancelled.
	_, err = f.approvals.FindActive(context.Background(), f.patient.ID, f.practitioner.ChainAddress, nil)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotFound)
}

func TestAcceptApproval(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	accepted, err := f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalStatusAccepted, accepted.Status)
	assert.True(t, accepted.IsRequestAccepted)
}

func TestRejectApproval(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	rejected, err := f.svc.RejectApproval(context.Background(), approval.ID, f.practitioner.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ApprovalStatusRejected, rejected.Status)
	assert.False(t, rejected.IsRequestAccepted)

	// A rejected row is no longer pending.
	_, err = f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotPending)
}

func TestAcceptApprovalWrongPractitioner(t *testing.T) {
	f := newApprovalFixture(t)

	other := &models.User{
		Username:     "dr-mallory",
		UserType:     models.UserTypePractitioner,
		Status:       models.UserStatusActive,
		ChainAddress: "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
	}
	f.users.Put(other)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	// The row's existence is not revealed to a different practitioner.
	_, err := f.svc.AcceptApproval(context.Background(), approval.ID, other.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotFound)
}

func TestAcceptApprovalTwice(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	_, err := f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	require.NoError(t, err)

	_, err = f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotPending)
}

func TestAcceptExpiredApproval(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
		DurationMs:     int64Ptr(1000),
	})

	// The row is logically dead past its deadline even though the sweeper
	// has not visited it yet.
	f.svc.now = func() time.Time { return approval.CreatedAt.Add(2 * time.Second) }

	_, err := f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotPending)
}

func TestAcceptLosesRaceToSweep(t *testing.T) {
	f := newApprovalFixture(t)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	// The sweeper transitions the row between the service's read and its
	// conditional write.
	_, err := f.approvals.BulkTransition(context.Background(), []uuid.UUID{approval.ID},
		[]models.ApprovalStatus{models.ApprovalStatusCreated},
		models.ApprovalStatusTimedOut, false)
	require.NoError(t, err)

	_, err = f.svc.AcceptApproval(context.Background(), approval.ID, f.practitioner.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotPending)

	stored, err := f.approvals.GetByID(context.Background(), approval.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusTimedOut, stored.Status, "terminal state must not be overwritten")
}

func TestGetApprovalVisibility(t *testing.T) {
	f := newApprovalFixture(t)

	admin := &models.User{
		Username: "root",
		UserType: models.UserTypeAdmin,
		Status:   models.UserStatusActive,
	}
	stranger := &models.User{
		Username:     "trudy",
		UserType:     models.UserTypePatient,
		Status:       models.UserStatusActive,
		ChainAddress: "0xffffffffffffffffffffffffffffffffffffffff",
	}
	f.users.Put(admin)
	f.users.Put(stranger)

	approval := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})

	for _, callerID := range []uuid.UUID{f.patient.ID, f.practitioner.ID, admin.ID} {
		got, err := f.svc.GetApproval(context.Background(), approval.ID, callerID)
		require.NoError(t, err)
		assert.Equal(t, approval.ID, got.ID)
	}

	_, err := f.svc.GetApproval(context.Background(), approval.ID, stranger.ID)
	assert.ErrorIs(t, err, apperrors.ErrApprovalNotFound)
}

func TestHasActiveAccess(t *testing.T) {
	f := newApprovalFixture(t)
	ctx := context.Background()

	patientWide := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelRead,
	})
	writeScoped := f.createApproval(t, &CreateApprovalRequest{
		PractitionerID: f.practitioner.ID,
		AccessLevel:    models.AccessLevelWrite,
		RecordID:       int64Ptr(5),
	})

	// A created approval grants nothing until accepted.
	ok, err := f.svc.HasActiveAccess(ctx, f.patient.ID, f.practitioner.ChainAddress, 5, models.AccessLevelRead)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.AcceptApproval(ctx, patientWide.ID, f.practitioner.ID)
	require.NoError(t, err)
	_, err = f.svc.AcceptApproval(ctx, writeScoped.ID, f.practitioner.ID)
	require.NoError(t, err)

	// Patient-wide read covers any record.
	ok, err = f.svc.HasActiveAccess(ctx, f.patient.ID, f.practitioner.ChainAddress, 999, models.AccessLevelRead)
	require.NoError(t, err)
	assert.True(t, ok)

	// Write is record-scoped.
	ok, err = f.svc.HasActiveAccess(ctx, f.patient.ID, f.practitioner.ChainAddress, 5, models.AccessLevelWrite)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.HasActiveAccess(ctx, f.patient.ID, f.practitioner.ChainAddress, 6, models.AccessLevelWrite)
	require.NoError(t, err)
	assert.False(t, ok)

	// An expired grant stops conferring access at its deadline.
	f.svc.now = func() time.Time {
		return patientWide.CreatedAt.Add(time.Duration(DefaultApprovalDurationMs)*time.Millisecond + time.Second)
	}
	ok, err = f.svc.HasActiveAccess(ctx, f.patient.ID, f.practitioner.ChainAddress, 999, models.AccessLevelRead)
	require.NoError(t, err)
	assert.False(t, ok)
}
