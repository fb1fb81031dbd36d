// internal/services/directory_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/models"
)

// PractitionerDirectory answers whether a practitioner is eligible to hold
// the requested kind of access. Lookups are remote and bounded by a timeout;
// the caller treats a negative, erroring or timed-out answer identically.
type PractitionerDirectory interface {
	IsEligible(ctx context.Context, practitionerID uuid.UUID, role string) (bool, error)
}

// Roles the engine asks the directory about, keyed by requested access level.
const (
	DirectoryRoleViewer = "record_viewer"
	DirectoryRoleEditor = "record_editor"
)

type DirectoryService struct {
	config *config.Config
	client *http.Client
}

func NewDirectoryService(cfg *config.Config) *DirectoryService {
	timeout := time.Duration(cfg.Directory.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &DirectoryService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Role     string `json:"role"`
}

func (s *DirectoryService) IsEligible(ctx context.Context, practitionerID uuid.UUID, role string) (bool, error) {
	if s.config.Directory.BaseURL == "" {
		// Directory not configured (local development): eligibility is
		// decided by the practitioner row checks alone.
		logrus.WithField("practitioner_id", practitionerID).
			Debug("Practitioner directory not configured, skipping remote eligibility check")
		return true, nil
	}

	endpoint := fmt.Sprintf("%s/practitioners/%s/eligibility?role=%s",
		s.config.Directory.BaseURL, practitionerID, url.QueryEscape(role))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build directory request: %w", err)
	}
	if s.config.Directory.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Directory.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Timeouts land here; the lifecycle service must not advance on an
		// unconfirmed precondition, so this surfaces as ineligibility.
		return false, fmt.Errorf("directory lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("directory lookup returned status %d", resp.StatusCode)
	}

	var body eligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode directory response: %w", err)
	}

	return body.Eligible, nil
}

// DirectoryRoleFor maps the requested access level to the directory role the
// practitioner must hold.
func DirectoryRoleFor(level models.AccessLevel) string {
	if level.RequiresRecordID() {
		return DirectoryRoleEditor
	}
	return DirectoryRoleViewer
}
