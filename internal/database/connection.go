// internal/database/connection.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool. A sqlite ledger is served by a single connection so
	// that every statement of a transaction sees the same in-memory database.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return db, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

// Models lists every ledger table, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.ModuleRegistration{},
		&models.ProtocolSetting{},
		&models.IPAsset{},
		&models.IPPermission{},
		&models.DisputeTag{},
		&models.LicenseTerms{},
		&models.DerivativeApproval{},
		&models.IPLicenseState{},
		&models.LicenseAttachment{},
		&models.DerivativeEdge{},
		&models.LicensingConfig{},
		&models.LicenseToken{},
		&models.TokenBalance{},
		&models.RoyaltyVault{},
		&models.AncestorRoyalty{},
		&models.VaultRevenueToken{},
		&models.VaultSnapshot{},
		&models.SnapshotPool{},
		&models.ShareBalance{},
		&models.ShareCheckpoint{},
		&models.RevenueClaim{},
		&models.IPGroup{},
		&models.GroupMember{},
		&models.GroupRewardBalance{},
		&models.ProtocolEvent{},
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

type txKey struct{}

// ContextWithTx returns a context carrying tx, so that nested calls join it.
func ContextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction carried by ctx, or db bound to ctx when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}

// InTransaction reports whether ctx already carries a transaction.
func InTransaction(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// RunInTransaction runs fn inside the transaction carried by ctx, or a new one.
func RunInTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}
	return WithTransaction(db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(ContextWithTx(ctx, tx))
	})
}
