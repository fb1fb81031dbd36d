// internal/services/notification_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvault/medvault-backend/internal/config"
)

func TestApprovalExpiredEmailTemplate(t *testing.T) {
	svc := NewNotificationService(nil, &config.Config{})

	tmpl := svc.getEmailTemplate("approval_expired")
	assert.Equal(t, "Access Grant Expired", tmpl.Subject)

	body, err := svc.renderTemplate(tmpl.Body, map[string]interface{}{
		"PatientName": "alice",
		"AccessLevel": "read",
		"ExpiredAt":   "Mar 1, 2026 12:00 UTC",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "read")
	assert.Contains(t, body, "Mar 1, 2026 12:00 UTC")
}

func TestUnknownTemplateFallsBack(t *testing.T) {
	svc := NewNotificationService(nil, &config.Config{})

	tmpl := svc.getEmailTemplate("no_such_template")
	assert.Equal(t, "Notification", tmpl.Subject)
}

func TestSendEmailSkipsWhenUnconfigured(t *testing.T) {
	svc := NewNotificationService(nil, &config.Config{})

	assert.NoError(t, svc.sendEmail("alice@example.com", "Subject", "<p>body</p>"))
}
