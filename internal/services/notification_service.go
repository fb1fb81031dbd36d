// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Approval notifications

func (s *NotificationService) SendApprovalRequestedNotification(approval *models.Approval, patient, practitioner *models.User) error {
	notification := &models.Notification{
		UserID:              approval.PractitionerID,
		Type:                "approval_requested",
		Title:               "New Access Request",
		Message:             fmt.Sprintf("Patient %s requested to grant you %s access", patient.Username, approval.AccessLevel),
		Priority:            "medium",
		RelatedResourceType: "approval",
		RelatedResourceID:   &approval.ID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	data := map[string]interface{}{
		"PractitionerName": practitioner.Username,
		"PatientName":      patient.Username,
		"AccessLevel":      approval.AccessLevel,
		"ExpiresAt":        approval.ExpiresAt().Format("Jan 2, 2006 15:04 MST"),
		"ApprovalURL":      fmt.Sprintf("%s/approvals/%s", s.config.Frontend.BaseURL, approval.ID),
	}

	subject := "New Access Request from " + patient.Username
	tmpl := s.getEmailTemplate("approval_requested")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(practitioner.Email, subject, body)
}

func (s *NotificationService) SendApprovalAcceptedNotification(approval *models.Approval) error {
	patient, err := s.loadUser(approval.PatientID)
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:              approval.PatientID,
		Type:                "approval_accepted",
		Title:               "Access Request Accepted",
		Message:             fmt.Sprintf("Your %s access grant was accepted by the practitioner", approval.AccessLevel),
		Priority:            "medium",
		RelatedResourceType: "approval",
		RelatedResourceID:   &approval.ID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	data := map[string]interface{}{
		"PatientName": patient.Username,
		"AccessLevel": approval.AccessLevel,
		"ExpiresAt":   approval.ExpiresAt().Format("Jan 2, 2006 15:04 MST"),
		"ApprovalURL": fmt.Sprintf("%s/approvals/%s", s.config.Frontend.BaseURL, approval.ID),
	}

	subject := "Access Request Accepted"
	tmpl := s.getEmailTemplate("approval_accepted")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(patient.Email, subject, body)
}

func (s *NotificationService) SendApprovalRejectedNotification(approval *models.Approval) error {
	patient, err := s.loadUser(approval.PatientID)
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:              approval.PatientID,
		Type:                "approval_rejected",
		Title:               "Access Request Declined",
		Message:             "The practitioner declined your access grant",
		Priority:            "low",
		RelatedResourceType: "approval",
		RelatedResourceID:   &approval.ID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	data := map[string]interface{}{
		"PatientName": patient.Username,
		"AccessLevel": approval.AccessLevel,
	}

	subject := "Access Request Declined"
	tmpl := s.getEmailTemplate("approval_rejected")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(patient.Email, subject, body)
}

func (s *NotificationService) SendApprovalExpiredNotification(approval *models.Approval) error {
	patient, err := s.loadUser(approval.PatientID)
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:              approval.PatientID,
		Type:                "approval_expired",
		Title:               "Access Grant Expired",
		Message:             fmt.Sprintf("Your %s access grant has expired and was revoked", approval.AccessLevel),
		Priority:            "low",
		RelatedResourceType: "approval",
		RelatedResourceID:   &approval.ID,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	data := map[string]interface{}{
		"PatientName": patient.Username,
		"AccessLevel": approval.AccessLevel,
		"ExpiredAt":   approval.ExpiresAt().Format("Jan 2, 2006 15:04 MST"),
	}

	subject := "Access Grant Expired"
	tmpl := s.getEmailTemplate("approval_expired")
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(patient.Email, subject, body)
}

// Authentication notifications

func (s *NotificationService) SendWelcomeEmail(user *models.User, verificationToken string) error {
	tmpl := s.getEmailTemplate("welcome")

	data := map[string]interface{}{
		"Username":        user.Username,
		"VerificationURL": fmt.Sprintf("%s/verify-email?token=%s", s.config.Frontend.BaseURL, verificationToken),
		"PlatformName":    "MedVault",
	}

	subject := "Welcome to MedVault"
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

func (s *NotificationService) SendPasswordResetEmail(user *models.User, resetToken string) error {
	tmpl := s.getEmailTemplate("password_reset")

	data := map[string]interface{}{
		"Username":  user.Username,
		"ResetURL":  fmt.Sprintf("%s/reset-password?token=%s", s.config.Frontend.BaseURL, resetToken),
		"ExpiresIn": "1 hour",
	}

	subject := "Password Reset Request"
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// Helper methods

func (s *NotificationService) loadUser(id interface{}) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return &user, nil
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).
			Info("Email not configured, skipping delivery")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"welcome": {
			Subject: "Welcome to MedVault",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome {{.Username}}!</h2>
	<p>Thank you for joining MedVault. Please verify your email address by clicking the link below:</p>
	<a href="{{.VerificationURL}}">Verify Email</a>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
		},
		"approval_requested": {
			Subject: "New Access Request",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>New Access Request</h2>
	<p>Hello {{.PractitionerName}},</p>
	<p>{{.PatientName}} wants to grant you <strong>{{.AccessLevel}}</strong> access to their medical records.</p>
	<p>The grant expires on {{.ExpiresAt}} if you do not respond.</p>
	<a href="{{.ApprovalURL}}">Review Request</a>
	<p>Best regards,<br>MedVault Team</p>
</body>
</html>`,
		},
		"approval_accepted": {
			Subject: "Access Request Accepted",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Access Request Accepted</h2>
	<p>Hello {{.PatientName}},</p>
	<p>The practitioner accepted your <strong>{{.AccessLevel}}</strong> access grant. It remains valid until {{.ExpiresAt}}.</p>
	<a href="{{.ApprovalURL}}">View Grant</a>
	<p>Best regards,<br>MedVault Team</p>
</body>
</html>`,
		},
		"approval_expired": {
			Subject: "Access Grant Expired",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Access Grant Expired</h2>
	<p>Hello {{.PatientName}},</p>
	<p>Your <strong>{{.AccessLevel}}</strong> access grant expired on {{.ExpiredAt}} and was revoked.</p>
	<p>Best regards,<br>MedVault Team</p>
</body>
</html>`,
		},
		// Add more templates as needed...
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
