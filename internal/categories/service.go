package categories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound indicates no active category exists for the requested slug.
var ErrNotFound = errors.New("categories: not found")

// ServiceConfig describes the dependencies of the category catalog.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service serves the read-only category taxonomy.
type Service struct {
	db *gorm.DB
}

// NewService constructs the category service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("categories: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// List returns all active categories ordered by sort, each with its active
// specializations.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	var result []Category
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("sort asc").
		Preload("Specializations", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("sort asc")
		}).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBySlug returns a single active category with its specializations.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Category, error) {
	var category Category
	err := s.db.WithContext(ctx).
		Where("slug = ? AND active = ?", slug, true).
		Preload("Specializations", func(db *gorm.DB) *gorm.DB {
			return db.Where("active = ?", true).Order("sort asc")
		}).
		First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, err
	}
	return category, nil
}
