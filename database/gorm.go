package database

import (
	"fmt"
	"log"

	"realty-messenger/config"
	"realty-messenger/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured relational store and migrates the messaging schema.
func Open(s *config.Settings) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch s.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(s.SQLitePath)
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			s.PostgresHost,
			s.PostgresPort,
			s.PostgresUser,
			s.PostgresPassword,
			s.PostgresDB,
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.DBDriver, err)
	}
	log.Printf("Connection opened to %s", s.DBDriver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Printf("Database migrated")

	return db, nil
}

// Migrate creates the messaging tables and the external tables the messaging core reads.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Property{},
		&model.PropertyImage{},
		&model.Conversation{},
		&model.Message{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// OpenMemory returns a migrated in-memory SQLite database, one per call.
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// every pooled connection would otherwise see its own empty database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, Migrate(db)
}
