// internal/middleware/logging.go
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/models"
)

// RequestLogger logs each request with method, path, status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})

		if c.Writer.Status() >= 500 {
			entry.Error("Request failed")
		} else {
			entry.Info("Request handled")
		}
	}
}

// AuditLogger records mutating requests against approvals and records so
// access grants leave a trail independent of the ledger.
func AuditLogger(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "GET" || c.Writer.Status() >= 400 {
			return
		}

		resourceType, resourceID := auditResource(c)
		if resourceType == "" {
			return
		}

		var userID *uuid.UUID
		if id, ok := GetUserID(c); ok {
			userID = &id
		}

		log := models.AuditLog{
			UserID:       userID,
			Action:       c.Request.Method + " " + c.FullPath(),
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}

		if err := db.Create(&log).Error; err != nil {
			logrus.WithError(err).Warn("Failed to write audit log")
		}
	}
}

func auditResource(c *gin.Context) (string, string) {
	if id := c.Param("approval_id"); id != "" {
		return "approval", id
	}
	if id := c.Param("record_id"); id != "" {
		return "record", id
	}

	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	switch {
	case strings.Contains(path, "/approvals"):
		return "approval", ""
	case strings.Contains(path, "/records"):
		return "record", ""
	}
	return "", ""
}
