// internal/store/memory_store.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/apperrors"
	"github.com/medvault/medvault-backend/internal/models"
)

// MemoryApprovalStore mirrors the postgres store's semantics, including the
// active-tuple uniqueness constraint and the conditional-update contract.
// Used by tests and local development without a database.
type MemoryApprovalStore struct {
	mtx       sync.Mutex
	approvals map[uuid.UUID]*models.Approval
}

func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{
		approvals: make(map[uuid.UUID]*models.Approval),
	}
}

func (s *MemoryApprovalStore) Create(ctx context.Context, a *models.Approval) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, existing := range s.approvals {
		if existing.PatientID == a.PatientID &&
			existing.PractitionerAddress == a.PractitionerAddress &&
			recordIDEqual(existing.RecordID, a.RecordID) &&
			isActiveStatus(existing.Status) {
			return apperrors.ErrApprovalAlreadyExists
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.ApprovalStatusCreated
	}

	cp := *a
	s.approvals[a.ID] = &cp
	return nil
}

func (s *MemoryApprovalStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, apperrors.ErrApprovalNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryApprovalStore) FindActive(ctx context.Context, patientID uuid.UUID, practitionerAddress string, recordID *int64) (*models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, a := range s.approvals {
		if a.PatientID == patientID &&
			a.PractitionerAddress == practitionerAddress &&
			recordIDEqual(a.RecordID, recordID) &&
			isActiveStatus(a.Status) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrApprovalNotFound
}

func (s *MemoryApprovalStore) ListActiveByPractitioner(ctx context.Context, patientID uuid.UUID, practitionerAddress string) ([]models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []models.Approval
	for _, a := range s.approvals {
		if a.PatientID == patientID && a.PractitionerAddress == practitionerAddress && isActiveStatus(a.Status) {
			out = append(out, *a)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryApprovalStore) List(ctx context.Context, filter ApprovalFilter) ([]models.Approval, int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var matched []models.Approval
	for _, a := range s.approvals {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.PractitionerID != nil && a.PractitionerID != *filter.PractitionerID {
			continue
		}
		if filter.PractitionerAddress != "" && a.PractitionerAddress != filter.PractitionerAddress {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		matched = append(matched, *a)
	}
	sortNewestFirst(matched)

	total := int64(len(matched))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryApprovalStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) (*models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, apperrors.ErrApprovalNotFound
	}
	if !statusIn(a.Status, from) {
		return nil, apperrors.ErrApprovalNotPending
	}

	a.Status = to
	a.IsRequestAccepted = accepted
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (s *MemoryApprovalStore) SaveTxHash(ctx context.Context, id uuid.UUID, txHash string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return apperrors.ErrApprovalNotFound
	}
	a.LedgerTxHash = txHash
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryApprovalStore) ListUnaccepted(ctx context.Context) ([]models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []models.Approval
	for _, a := range s.approvals {
		if !a.IsRequestAccepted && !a.Status.IsTerminal() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryApprovalStore) ListAcceptedOpen(ctx context.Context) ([]models.Approval, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []models.Approval
	for _, a := range s.approvals {
		if a.IsRequestAccepted && a.Status != models.ApprovalStatusCompleted {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryApprovalStore) BulkTransition(ctx context.Context, ids []uuid.UUID, from []models.ApprovalStatus, to models.ApprovalStatus, accepted bool) ([]uuid.UUID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var transitioned []uuid.UUID
	now := time.Now()
	for _, id := range ids {
		a, ok := s.approvals[id]
		if !ok || !statusIn(a.Status, from) {
			continue
		}
		a.Status = to
		a.IsRequestAccepted = accepted
		a.UpdatedAt = now
		transitioned = append(transitioned, id)
	}
	return transitioned, nil
}

func (s *MemoryApprovalStore) CountByStatus(ctx context.Context) (map[models.ApprovalStatus]int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	counts := make(map[models.ApprovalStatus]int64)
	for _, a := range s.approvals {
		counts[a.Status]++
	}
	return counts, nil
}

func isActiveStatus(status models.ApprovalStatus) bool {
	return statusIn(status, models.ActiveApprovalStatuses())
}

func statusIn(status models.ApprovalStatus, set []models.ApprovalStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

func recordIDEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sortNewestFirst(approvals []models.Approval) {
	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.After(approvals[j].CreatedAt)
	})
}

// MemoryUserStore backs UserStore for tests.
type MemoryUserStore struct {
	mtx   sync.Mutex
	users map[uuid.UUID]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[uuid.UUID]*models.User)}
}

func (s *MemoryUserStore) Put(u *models.User) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}
