// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/handlers"
	"github.com/medvault/medvault-backend/internal/middleware"
	"github.com/medvault/medvault-backend/internal/models"
	"github.com/medvault/medvault-backend/internal/services"
	"github.com/medvault/medvault-backend/internal/store"
)

// Services bundles the wired service layer so main can reuse it for the
// background sweeper.
type Services struct {
	Auth     *services.AuthService
	Approval *services.ApprovalService
	Record   *services.RecordService
	Sweeper  *services.SweeperService
}

// Setup wires stores, services and handlers into the HTTP router.
func Setup(db *gorm.DB, cfg *config.Config) (*gin.Engine, *Services) {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	approvalStore := store.NewPostgresApprovalStore(db)
	userStore := store.NewPostgresUserStore(db)

	notificationService := services.NewNotificationService(db, cfg)
	directoryService := services.NewDirectoryService(cfg)
	ledgerService := services.NewLedgerService(cfg)

	authService := services.NewAuthService(db, cfg, notificationService)
	approvalService := services.NewApprovalService(approvalStore, userStore, directoryService, ledgerService, notificationService)
	sweeperService := services.NewSweeperService(approvalStore, userStore, ledgerService,
		notificationService, time.Duration(cfg.Sweeper.IntervalMinutes)*time.Minute)

	var storageService *services.StorageService
	if cfg.AWS.AccessKeyID != "" {
		var err error
		storageService, err = services.NewStorageService(cfg)
		if err != nil {
			logrus.WithError(err).Warn("Storage service unavailable, attachments disabled")
		}
	}
	recordService := services.NewRecordService(db, approvalService, storageService)

	authHandler := handlers.NewAuthHandler(authService)
	approvalHandler := handlers.NewApprovalHandler(approvalService)
	recordHandler := handlers.NewRecordHandler(recordService, authService)
	adminHandler := handlers.NewAdminHandler(approvalService, sweeperService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	v1 := r.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.Use(middleware.AuthRateLimit())
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.GET("/verify-email", authHandler.VerifyEmail)
		auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
	}

	approvals := v1.Group("/approvals")
	approvals.Use(middleware.AuthRequired(), middleware.AuditLogger(db))
	{
		approvals.POST("", middleware.RequireUserType(string(models.UserTypePatient)), approvalHandler.CreateApproval)
		approvals.GET("", approvalHandler.ListMyApprovals)
		approvals.GET("/:approval_id", approvalHandler.GetApproval)
		approvals.POST("/:approval_id/accept", middleware.RequireUserType(string(models.UserTypePractitioner)), approvalHandler.AcceptApproval)
		approvals.POST("/:approval_id/reject", middleware.RequireUserType(string(models.UserTypePractitioner)), approvalHandler.RejectApproval)
	}

	records := v1.Group("/records")
	records.Use(middleware.AuthRequired(), middleware.AuditLogger(db))
	{
		records.POST("", middleware.RequireUserType(string(models.UserTypePatient)), recordHandler.CreateRecord)
		records.GET("/:record_id", recordHandler.GetRecord)
		records.PATCH("/:record_id", recordHandler.UpdateRecord)
		records.DELETE("/:record_id", recordHandler.DeleteRecord)
		records.POST("/:record_id/attachments", middleware.UploadRateLimit(), recordHandler.UploadAttachment)
	}

	v1.GET("/patients/:patient_id/records", middleware.AuthRequired(), recordHandler.ListPatientRecords)

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.RequireUserType(string(models.UserTypeAdmin)))
	{
		admin.POST("/approvals/cleanup", adminHandler.RunCleanup)
		admin.GET("/approvals", adminHandler.ListApprovals)
		admin.GET("/approvals/statistics", adminHandler.GetStatistics)
	}

	return r, &Services{
		Auth:     authService,
		Approval: approvalService,
		Record:   recordService,
		Sweeper:  sweeperService,
	}
}
