package database

import (
	"context"
	"time"

	"CampaignClinic/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// InitDB opens the postgres connection, checks it and migrates the schema.
func InitDB(ctx context.Context, dsn string, pool PoolConfig, development bool, log zerolog.Logger) (*gorm.DB, error) {
	logMode := logger.Silent
	if development {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: false,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	if err := configureConnectionPool(db, pool); err != nil {
		return nil, err
	}

	if err := testDatabaseConnection(ctx, db); err != nil {
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	log.Info().Msg("database initialized")
	return db, nil
}

// configureConnectionPool sets up the connection pool settings for the database.
func configureConnectionPool(db *gorm.DB, pool PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB from GORM")
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 40
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 20
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return nil
}

// testDatabaseConnection verifies that the database connection is functional.
func testDatabaseConnection(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB from GORM")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Wrap(err, "failed to ping database")
	}
	return nil
}

// RunMigrations performs database schema migrations.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Permission{},
		&models.Group{},
		&models.User{},
		&models.AuditLog{},
		&models.Campaign{},
		&models.LabTest{},
		&models.Drug{},
		&models.Patient{},
		&models.PatientIDSequence{},
		&models.ClinicalParameters{},
		&models.Consultation{},
		&models.LabOrder{},
		&models.LabResult{},
		&models.Prescription{},
	)
	return errors.Wrap(err, "failed to run migrations")
}

// SeedInitialData provisions the role groups and their permissions.
func SeedInitialData(db *gorm.DB, grants []models.GroupGrant) error {
	if err := models.SeedGroups(db, grants); err != nil {
		return errors.Wrap(err, "failed to seed role groups")
	}
	return nil
}
