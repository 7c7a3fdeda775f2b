package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskora-labs/taskora/backend/internal/responses"
	"github.com/taskora-labs/taskora/backend/internal/tasks"
	"github.com/taskora-labs/taskora/backend/internal/users"
)

const (
	minRating = 1
	maxRating = 5
)

var (
	// ErrInvalidInput covers request-shape validation failures.
	ErrInvalidInput = errors.New("reviews: invalid input")
	// ErrSelfReview indicates reviewer and reviewee are the same user.
	ErrSelfReview = errors.New("reviews: cannot review yourself")
	// ErrTaskNotFound indicates the referenced task does not exist.
	ErrTaskNotFound = errors.New("reviews: task not found")
	// ErrTaskNotCompleted indicates the task is not in the DONE state.
	ErrTaskNotCompleted = errors.New("reviews: can only review completed tasks")
	// ErrNotParticipant indicates reviewer or reviewee was neither the
	// task's author nor a responder.
	ErrNotParticipant = errors.New("reviews: not a participant of this task")
)

// ServiceConfig describes the dependencies of the review service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service records reviews and keeps the reviewee's reputation scores equal
// to the mean of all ratings ever directed at them, partitioned by the role
// they played in the reviewed task.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the review service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("reviews: database connection required")
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

// CreateInput is the request body for leaving a review.
type CreateInput struct {
	ToUserID string `json:"toUserId"`
	TaskID   string `json:"taskId"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// Create validates the business preconditions, persists the review, and
// synchronously recomputes the reviewee's reputation for the role they held
// in the task. Concurrent reviews for the same target can race on the score
// field; the last writer wins, which is the documented behavior.
func (s *Service) Create(ctx context.Context, fromUserID string, input CreateInput) (Review, error) {
	if strings.TrimSpace(fromUserID) == "" {
		return Review{}, fmt.Errorf("%w: reviewer is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.ToUserID) == "" {
		return Review{}, fmt.Errorf("%w: toUserId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.TaskID) == "" {
		return Review{}, fmt.Errorf("%w: taskId is required", ErrInvalidInput)
	}
	if input.Rating < minRating || input.Rating > maxRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, minRating, maxRating)
	}
	if fromUserID == input.ToUserID {
		return Review{}, ErrSelfReview
	}

	var task tasks.Task
	err := s.db.WithContext(ctx).Where("id = ?", input.TaskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Review{}, ErrTaskNotFound
	}
	if err != nil {
		return Review{}, err
	}
	if task.Status != tasks.StatusDone {
		return Review{}, ErrTaskNotCompleted
	}

	reviewerParticipates, err := s.participates(ctx, task, fromUserID)
	if err != nil {
		return Review{}, err
	}
	if !reviewerParticipates {
		return Review{}, fmt.Errorf("%w: reviewer", ErrNotParticipant)
	}
	revieweeParticipates, err := s.participates(ctx, task, input.ToUserID)
	if err != nil {
		return Review{}, err
	}
	if !revieweeParticipates {
		return Review{}, fmt.Errorf("%w: reviewee", ErrNotParticipant)
	}

	review := Review{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   input.ToUserID,
		TaskID:     task.ID,
		Rating:     input.Rating,
		Comment:    strings.TrimSpace(input.Comment),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
		return Review{}, err
	}

	if err := s.recomputeReputation(ctx, task, input.ToUserID); err != nil {
		return Review{}, err
	}

	s.logger.Info("review created",
		zap.String("review_id", review.ID),
		zap.String("task_id", task.ID),
		zap.String("to_user_id", input.ToUserID),
		zap.Int("rating", input.Rating))

	return review, nil
}

// ListForUser returns all reviews directed at the user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Review, error) {
	var result []Review
	err := s.db.WithContext(ctx).
		Where("to_user_id = ?", userID).
		Order("created_at desc").
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// participates reports whether the user was the task's author or responded
// to it. Participation is a property of the task, not of the user's
// declared role.
func (s *Service) participates(ctx context.Context, task tasks.Task, userID string) (bool, error) {
	if task.AuthorID == userID {
		return true, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&responses.Response{}).
		Where("task_id = ? AND user_id = ?", task.ID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// recomputeReputation recalculates the subject's score from the full review
// history and writes it into the role-partition the subject held in this
// task: executor when they were a responder, customer when they authored it.
// Runs only after an insert, so the review set is never empty.
func (s *Service) recomputeReputation(ctx context.Context, task tasks.Task, subjectID string) error {
	var ratings []int
	err := s.db.WithContext(ctx).
		Model(&Review{}).
		Where("to_user_id = ?", subjectID).
		Pluck("rating", &ratings).Error
	if err != nil {
		return err
	}
	if len(ratings) == 0 {
		return fmt.Errorf("reviews: reputation recompute found no reviews for %s", subjectID)
	}

	sum := 0
	for _, rating := range ratings {
		sum += rating
	}
	mean := float64(sum) / float64(len(ratings))

	column := "rating_as_executor"
	if task.AuthorID == subjectID {
		column = "rating_as_customer"
	}

	return s.db.WithContext(ctx).
		Model(&users.User{}).
		Where("id = ?", subjectID).
		Update(column, mean).Error
}
