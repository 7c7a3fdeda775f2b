package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskora-labs/taskora/backend/internal/auth"
)

var (
	// ErrInvalidIdentity indicates the verified payload did not contain a
	// usable external identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrNotFound indicates no user exists for the requested identifier.
	ErrNotFound = errors.New("users: not found")
	// ErrInvalidRole indicates a role outside CUSTOMER/EXECUTOR.
	ErrInvalidRole = errors.New("users: invalid role")
)

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maps verified Telegram identities onto internal user records.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the user identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// ResolveTelegramUser returns the internal user for a verified Telegram
// identity, creating one on first contact. The operation is a single atomic
// upsert keyed on tg_id: concurrent first-time authentications for the same
// identity collapse onto one row, and username drift is accepted silently.
func (s *Service) ResolveTelegramUser(ctx context.Context, identity auth.TelegramIdentity) (User, error) {
	telegramID := identity.TelegramID()
	if identity.ID == 0 || strings.TrimSpace(telegramID) == "" {
		return User{}, ErrInvalidIdentity
	}

	now := s.now().UTC()
	candidate := User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Username:   strings.TrimSpace(identity.Username),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tg_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"username":   candidate.Username,
				"updated_at": now,
			}),
		}).
		Create(&candidate).Error
	if err != nil {
		return User{}, err
	}

	// The insert may have resolved onto an existing row; read back the
	// canonical record either way.
	var user User
	if err := s.db.WithContext(ctx).Where("tg_id = ?", telegramID).First(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// GetByID loads the public profile for the given internal user id.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateRole sets the caller's declared marketplace role.
func (s *Service) UpdateRole(ctx context.Context, id string, role Role) (User, error) {
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"role": role, "updated_at": s.now().UTC()})
	if result.Error != nil {
		return User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return User{}, ErrNotFound
	}

	return s.GetByID(ctx, id)
}
