package database

import (
	"fmt"
	"time"

	"advancedreminders/internal/config"
	"advancedreminders/internal/models"
	"advancedreminders/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Open connects to the host database and migrates the plugin tables.
// Host tables (course, user, ...) are owned by the LMS and never migrated here.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}

	// The enabled-course scan runs on every tick; keep it out of the SQL log
	gormLogger := utils.NewGormLogger(
		logrus.StandardLogger(),
		level,
		`FROM "local_advancedreminders_cs" WHERE courseenabled`,
	)

	gormConfig := &gorm.Config{
		Logger: gormLogger,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt: true,
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
		if err == nil {
			break
		}
		logrus.WithError(err).Warnf("database connection attempt %d failed", i+1)
		if i < retries-1 {
			logrus.Infof("retrying in %v...", cfg.RetryDelay)
			time.Sleep(cfg.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logrus.Info("database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates the tables owned by the reminders plugin
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.CourseSettings{},
		&models.SentEmail{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
