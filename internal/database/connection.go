// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/medvault/medvault-backend/internal/config"
	"github.com/medvault/medvault-backend/internal/models"
)

// Initialize opens the Postgres connection pool. The lib/pq driver is used
// explicitly so storage errors surface as *pq.Error and unique violations
// can be recognized by SQLSTATE.
func Initialize(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormLogger(cfg.Database.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        cfg.Database.DSN(),
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Database,
	}).Info("Database connection established")

	return db, nil
}

func gormLogger(level string) logger.Interface {
	switch level {
	case "info":
		return logger.Default.LogMode(logger.Info)
	case "warn":
		return logger.Default.LogMode(logger.Warn)
	case "error":
		return logger.Default.LogMode(logger.Error)
	default:
		return logger.Default.LogMode(logger.Silent)
	}
}

// Migrate runs the schema migrations and creates the indexes gorm's
// AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto: %w", err)
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Approval{},
		&models.MedicalRecord{},
		&models.RecordAttachment{},
		&models.AuditLog{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// At most one created-or-accepted approval per (patient, practitioner,
		// record) tuple. COALESCE folds the patient-wide NULL record into the
		// same uniqueness space so duplicate patient-wide grants collide too.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_active_tuple
			ON approvals (patient_id, practitioner_address, COALESCE(record_id, -1))
			WHERE status IN ('created', 'accepted') AND deleted_at IS NULL`,

		// Sweeper scans by status.
		`CREATE INDEX IF NOT EXISTS idx_approvals_status_created_at
			ON approvals (status, created_at)
			WHERE deleted_at IS NULL`,

		// Practitioner-facing listings.
		`CREATE INDEX IF NOT EXISTS idx_approvals_practitioner_address
			ON approvals (practitioner_address, status)
			WHERE deleted_at IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_records_patient_category
			ON medical_records (patient_id, category)
			WHERE deleted_at IS NULL`,

		`CREATE INDEX IF NOT EXISTS idx_notifications_user_status
			ON notifications (user_id, status)`,
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return err
		}
	}
	return nil
}

// WithTransaction executes fn inside a transaction, rolling back on error.
func WithTransaction(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return db.Transaction(fn)
}
