package responses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskora-labs/taskora/backend/internal/tasks"
)

const (
	minTextLength = 10

	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	// ErrInvalidInput covers request-shape validation failures.
	ErrInvalidInput = errors.New("responses: invalid input")
	// ErrTaskNotFound indicates the referenced task does not exist.
	ErrTaskNotFound = errors.New("responses: task not found")
	// ErrTaskNotActive indicates the task is not accepting responses.
	ErrTaskNotActive = errors.New("responses: task is not active")
	// ErrOwnTask indicates an author responding to their own task.
	ErrOwnTask = errors.New("responses: cannot respond to own task")
	// ErrAlreadyResponded is the conflict surfaced when the same user
	// responds to the same task twice.
	ErrAlreadyResponded = errors.New("responses: already responded to this task")
)

// ServiceConfig describes the dependencies of the response service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns response creation and listing.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the response service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("responses: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// CreateInput is the request body for responding to a task.
type CreateInput struct {
	TaskID string `json:"taskId"`
	Text   string `json:"text"`
	Price  *int   `json:"price"`
}

// CreateResult carries the created response together with the task it
// answered, so callers can notify the task author.
type CreateResult struct {
	Response Response
	Task     tasks.Task
}

// Create records a response to an active task. The double-respond race is
// delegated to the store's unique constraint and surfaced as
// ErrAlreadyResponded rather than checked with a prior read.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (CreateResult, error) {
	if strings.TrimSpace(userID) == "" {
		return CreateResult{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.TaskID) == "" {
		return CreateResult{}, fmt.Errorf("%w: taskId is required", ErrInvalidInput)
	}
	text := strings.TrimSpace(input.Text)
	if len(text) < minTextLength {
		return CreateResult{}, fmt.Errorf("%w: text must be at least %d characters", ErrInvalidInput, minTextLength)
	}
	if input.Price != nil && *input.Price < 0 {
		return CreateResult{}, fmt.Errorf("%w: price must be non-negative", ErrInvalidInput)
	}

	var task tasks.Task
	err := s.db.WithContext(ctx).Where("id = ?", input.TaskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CreateResult{}, ErrTaskNotFound
	}
	if err != nil {
		return CreateResult{}, err
	}
	if task.Status != tasks.StatusActive {
		return CreateResult{}, ErrTaskNotActive
	}
	if task.AuthorID == userID {
		return CreateResult{}, ErrOwnTask
	}

	response := Response{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		UserID:    userID,
		Text:      text,
		Price:     input.Price,
		CreatedAt: s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Create(&response).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return CreateResult{}, ErrAlreadyResponded
	}
	if err != nil {
		return CreateResult{}, err
	}

	s.logger.Info("response created",
		zap.String("response_id", response.ID),
		zap.String("task_id", task.ID),
		zap.String("user_id", userID))

	return CreateResult{Response: response, Task: task}, nil
}

// ListFilter narrows the response listing.
type ListFilter struct {
	TaskID string
	Skip   int
	Take   int
}

// List returns responses newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Response, error) {
	take := filter.Take
	if take <= 0 {
		take = defaultPageSize
	}
	if take > maxPageSize {
		take = maxPageSize
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := s.db.WithContext(ctx).Model(&Response{})
	if filter.TaskID != "" {
		query = query.Where("task_id = ?", filter.TaskID)
	}

	var result []Response
	err := query.
		Order("created_at desc").
		Offset(skip).
		Limit(take).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HasResponded reports whether the user responded to the task. Used by the
// review service to establish participation.
func (s *Service) HasResponded(ctx context.Context, taskID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Response{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
