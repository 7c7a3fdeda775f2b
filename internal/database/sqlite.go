package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskora-labs/taskora/backend/internal/categories"
	"github.com/taskora-labs/taskora/backend/internal/responses"
	"github.com/taskora-labs/taskora/backend/internal/reviews"
	"github.com/taskora-labs/taskora/backend/internal/tasks"
	"github.com/taskora-labs/taskora/backend/internal/users"
)

// OpenSQLite establishes a SQLite connection, performs schema migrations and
// seeds the category catalog. TranslateError is required so unique-constraint
// violations surface as gorm.ErrDuplicatedKey to the response service.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&users.User{},
		&categories.Category{},
		&categories.Specialization{},
		&tasks.Task{},
		&tasks.Attachment{},
		&responses.Response{},
		&reviews.Review{},
		&migrationRecord{},
	)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if err := categories.Seed(db); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
