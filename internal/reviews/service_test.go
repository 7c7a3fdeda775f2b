package reviews

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/taskora-labs/taskora/backend/internal/categories"
	"github.com/taskora-labs/taskora/backend/internal/responses"
	"github.com/taskora-labs/taskora/backend/internal/tasks"
	"github.com/taskora-labs/taskora/backend/internal/users"
)

type fixture struct {
	db      *gorm.DB
	service *Service

	author   users.User
	executor users.User
	outsider users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reviews.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&users.User{},
		&categories.Category{},
		&categories.Specialization{},
		&tasks.Task{},
		&tasks.Attachment{},
		&responses.Response{},
		&Review{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1_700_000_000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	f := &fixture{db: db, service: service}
	f.author = f.createUser(t, "author")
	f.executor = f.createUser(t, "executor")
	f.outsider = f.createUser(t, "outsider")
	return f
}

func (f *fixture) createUser(t *testing.T, username string) users.User {
	t.Helper()
	user := users.User{
		ID:         uuid.NewString(),
		TelegramID: uuid.NewString(),
		Username:   username,
	}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func (f *fixture) createTask(t *testing.T, authorID string, status tasks.Status) tasks.Task {
	t.Helper()
	task := tasks.Task{
		ID:          uuid.NewString(),
		AuthorID:    authorID,
		CategoryID:  uuid.NewString(),
		Type:        tasks.TypeServiceRequest,
		Title:       "Build a landing page",
		Description: "A landing page with a signup form and basic analytics.",
		Currency:    "USDT",
		Status:      status,
	}
	if err := f.db.Create(&task).Error; err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func (f *fixture) respond(t *testing.T, taskID, userID string) {
	t.Helper()
	response := responses.Response{
		ID:     uuid.NewString(),
		TaskID: taskID,
		UserID: userID,
		Text:   "I can take care of this one.",
	}
	if err := f.db.Create(&response).Error; err != nil {
		t.Fatalf("failed to create response: %v", err)
	}
}

func (f *fixture) reloadUser(t *testing.T, id string) users.User {
	t.Helper()
	var user users.User
	if err := f.db.Where("id = ?", id).First(&user).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	return user
}

func TestCreateReviewUpdatesExecutorReputation(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, task.ID, f.executor.ID)

	review, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.executor.ID,
		TaskID:   task.ID,
		Rating:   5,
		Comment:  "Great work",
	})
	if err != nil {
		t.Fatalf("review creation failed: %v", err)
	}
	if review.Rating != 5 {
		t.Fatalf("unexpected rating %d", review.Rating)
	}

	subject := f.reloadUser(t, f.executor.ID)
	if subject.RatingAsExecutor != 5.0 {
		t.Fatalf("expected executor rating 5.0, got %v", subject.RatingAsExecutor)
	}
	if subject.RatingAsCustomer != 0 {
		t.Fatalf("customer rating must stay untouched, got %v", subject.RatingAsCustomer)
	}
}

func TestReputationIsMeanOfAllRatings(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, task.ID, f.executor.ID)

	for _, rating := range []int{5, 3, 4} {
		_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
			ToUserID: f.executor.ID,
			TaskID:   task.ID,
			Rating:   rating,
		})
		if err != nil {
			t.Fatalf("review with rating %d failed: %v", rating, err)
		}
	}

	subject := f.reloadUser(t, f.executor.ID)
	if subject.RatingAsExecutor != 4.0 {
		t.Fatalf("expected mean 4.0 for ratings [5 3 4], got %v", subject.RatingAsExecutor)
	}
}

func TestReputationRecomputesAcrossTasks(t *testing.T) {
	f := newFixture(t)

	first := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, first.ID, f.executor.ID)
	second := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, second.ID, f.executor.ID)

	_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.executor.ID, TaskID: first.ID, Rating: 5,
	})
	if err != nil {
		t.Fatalf("first review failed: %v", err)
	}
	if got := f.reloadUser(t, f.executor.ID).RatingAsExecutor; got != 5.0 {
		t.Fatalf("expected executor rating 5.0 after one review, got %v", got)
	}

	_, err = f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.executor.ID, TaskID: second.ID, Rating: 3,
	})
	if err != nil {
		t.Fatalf("second review failed: %v", err)
	}
	if got := f.reloadUser(t, f.executor.ID).RatingAsExecutor; got != 4.0 {
		t.Fatalf("expected executor rating 4.0 after two reviews, got %v", got)
	}
}

func TestReviewingTheAuthorUpdatesCustomerReputation(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, task.ID, f.executor.ID)

	_, err := f.service.Create(context.Background(), f.executor.ID, CreateInput{
		ToUserID: f.author.ID,
		TaskID:   task.ID,
		Rating:   4,
	})
	if err != nil {
		t.Fatalf("review creation failed: %v", err)
	}

	subject := f.reloadUser(t, f.author.ID)
	if subject.RatingAsCustomer != 4.0 {
		t.Fatalf("expected customer rating 4.0, got %v", subject.RatingAsCustomer)
	}
	if subject.RatingAsExecutor != 0 {
		t.Fatalf("executor rating must stay untouched, got %v", subject.RatingAsExecutor)
	}
}

func TestCreateReviewRejectsSelfReview(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusDone)

	_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.author.ID,
		TaskID:   task.ID,
		Rating:   5,
	})
	if !errors.Is(err, ErrSelfReview) {
		t.Fatalf("expected ErrSelfReview, got %v", err)
	}
}

func TestCreateReviewRequiresCompletedTask(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusActive)
	f.respond(t, task.ID, f.executor.ID)

	_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.executor.ID,
		TaskID:   task.ID,
		Rating:   5,
	})
	if !errors.Is(err, ErrTaskNotCompleted) {
		t.Fatalf("expected ErrTaskNotCompleted, got %v", err)
	}
}

func TestCreateReviewRejectsNonParticipants(t *testing.T) {
	f := newFixture(t)
	task := f.createTask(t, f.author.ID, tasks.StatusDone)
	f.respond(t, task.ID, f.executor.ID)

	// An outsider reviewing a participant.
	_, err := f.service.Create(context.Background(), f.outsider.ID, CreateInput{
		ToUserID: f.executor.ID,
		TaskID:   task.ID,
		Rating:   5,
	})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for outside reviewer, got %v", err)
	}

	// A participant reviewing an outsider.
	_, err = f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.outsider.ID,
		TaskID:   task.ID,
		Rating:   5,
	})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant for outside reviewee, got %v", err)
	}
}

func TestCreateReviewRejectsMissingTaskAndBadRating(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
		ToUserID: f.executor.ID,
		TaskID:   "missing",
		Rating:   5,
	})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	task := f.createTask(t, f.author.ID, tasks.StatusDone)
	for _, rating := range []int{0, 6, -1} {
		_, err := f.service.Create(context.Background(), f.author.ID, CreateInput{
			ToUserID: f.executor.ID,
			TaskID:   task.ID,
			Rating:   rating,
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for rating %d, got %v", rating, err)
		}
	}
}
