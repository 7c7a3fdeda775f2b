package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/taskora-labs/taskora/backend/internal/categories"
)

const (
	minTitleLength       = 5
	maxTitleLength       = 140
	minDescriptionLength = 20
	maxSpecializations   = 5
	maxAttachments       = 3
	defaultCurrency      = "USDT"

	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	// ErrInvalidInput covers all request-shape validation failures.
	ErrInvalidInput = errors.New("tasks: invalid input")
	// ErrNotFound indicates no task exists for the requested identifier.
	ErrNotFound = errors.New("tasks: not found")
	// ErrNotAuthor indicates the caller does not own the task.
	ErrNotAuthor = errors.New("tasks: only the author may modify a task")
	// ErrCategoryNotFound indicates the referenced category does not exist.
	ErrCategoryNotFound = errors.New("tasks: category not found")
	// ErrSpecializationNotFound indicates a referenced specialization does not exist.
	ErrSpecializationNotFound = errors.New("tasks: specialization not found")
	// ErrSpecializationMismatch indicates a specialization outside the task's category.
	ErrSpecializationMismatch = errors.New("tasks: specialization does not belong to category")
)

// ServiceConfig describes the dependencies of the task service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the task listing lifecycle.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("tasks: database connection required")
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

// AttachmentInput references an already-uploaded file.
type AttachmentInput struct {
	URL  string `json:"url"`
	Mime string `json:"mime"`
}

// CreateInput is the request body for task creation.
type CreateInput struct {
	Type              Type              `json:"type"`
	CategoryID        string            `json:"categoryId"`
	SpecializationIDs []string          `json:"specializationIds"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	BudgetMin         *int              `json:"budgetMin"`
	BudgetMax         *int              `json:"budgetMax"`
	Currency          string            `json:"currency"`
	Attachments       []AttachmentInput `json:"attachments"`
}

func (in CreateInput) validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, in.Type)
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		return fmt.Errorf("%w: categoryId is required", ErrInvalidInput)
	}
	if len(in.SpecializationIDs) == 0 || len(in.SpecializationIDs) > maxSpecializations {
		return fmt.Errorf("%w: between 1 and %d specializations required", ErrInvalidInput, maxSpecializations)
	}
	title := strings.TrimSpace(in.Title)
	if len(title) < minTitleLength || len(title) > maxTitleLength {
		return fmt.Errorf("%w: title must be %d-%d characters", ErrInvalidInput, minTitleLength, maxTitleLength)
	}
	if len(strings.TrimSpace(in.Description)) < minDescriptionLength {
		return fmt.Errorf("%w: description must be at least %d characters", ErrInvalidInput, minDescriptionLength)
	}
	if in.BudgetMin != nil && *in.BudgetMin < 0 {
		return fmt.Errorf("%w: budgetMin must be non-negative", ErrInvalidInput)
	}
	if in.BudgetMax != nil && *in.BudgetMax < 0 {
		return fmt.Errorf("%w: budgetMax must be non-negative", ErrInvalidInput)
	}
	if in.BudgetMin != nil && in.BudgetMax != nil && *in.BudgetMin > *in.BudgetMax {
		return fmt.Errorf("%w: budgetMin must be <= budgetMax", ErrInvalidInput)
	}
	if len(in.Attachments) > maxAttachments {
		return fmt.Errorf("%w: at most %d attachments allowed", ErrInvalidInput, maxAttachments)
	}
	for _, attachment := range in.Attachments {
		if strings.TrimSpace(attachment.URL) == "" || strings.TrimSpace(attachment.Mime) == "" {
			return fmt.Errorf("%w: attachment url and mime are required", ErrInvalidInput)
		}
	}
	return nil
}

// Create validates the listing against the category taxonomy and persists it
// with its specializations and attachments in one transaction.
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (Task, error) {
	if strings.TrimSpace(authorID) == "" {
		return Task{}, fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	if err := input.validate(); err != nil {
		return Task{}, err
	}

	var category categories.Category
	err := s.db.WithContext(ctx).Where("id = ?", input.CategoryID).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, ErrCategoryNotFound
	}
	if err != nil {
		return Task{}, err
	}

	var specs []categories.Specialization
	err = s.db.WithContext(ctx).Where("id IN ?", input.SpecializationIDs).Find(&specs).Error
	if err != nil {
		return Task{}, err
	}
	if len(specs) != len(uniqueStrings(input.SpecializationIDs)) {
		return Task{}, ErrSpecializationNotFound
	}
	for _, spec := range specs {
		if spec.CategoryID != category.ID {
			return Task{}, fmt.Errorf("%w: %s", ErrSpecializationMismatch, spec.Slug)
		}
	}

	currency := strings.TrimSpace(input.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	now := s.now().UTC()
	task := Task{
		ID:              uuid.NewString(),
		AuthorID:        authorID,
		CategoryID:      category.ID,
		Type:            input.Type,
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		BudgetMin:       input.BudgetMin,
		BudgetMax:       input.BudgetMax,
		Currency:        currency,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		Specializations: specs,
	}
	for _, attachment := range input.Attachments {
		task.Attachments = append(task.Attachments, Attachment{
			ID:     uuid.NewString(),
			TaskID: task.ID,
			URL:    strings.TrimSpace(attachment.URL),
			Mime:   strings.TrimSpace(attachment.Mime),
		})
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return Task{}, err
	}

	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("author_id", authorID),
		zap.String("category", category.Slug))

	task.Category = category
	return task, nil
}

// ListFilter narrows the task listing.
type ListFilter struct {
	CategoryID       string
	SpecializationID string
	Status           Status
	Skip             int
	Take             int
}

// List returns tasks newest first with category, specializations,
// attachments and response counts attached.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, error) {
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
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}

	query := s.db.WithContext(ctx).Model(&Task{})
	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.SpecializationID != "" {
		query = query.Where(
			"id IN (?)",
			s.db.Table("task_specializations").
				Select("task_id").
				Where("specialization_id = ?", filter.SpecializationID),
		)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var result []Task
	err := query.
		Order("created_at desc").
		Offset(skip).
		Limit(take).
		Preload("Category").
		Preload("Specializations").
		Preload("Attachments").
		Find(&result).Error
	if err != nil {
		return nil, err
	}

	if err := s.attachResponseCounts(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Get loads a single task with its associations.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	var task Task
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Category").
		Preload("Specializations").
		Preload("Attachments").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// UpdateStatus moves a task into a new lifecycle state. Only the author may
// do so, and DRAFT is not a valid target.
func (s *Service) UpdateStatus(ctx context.Context, taskID, callerID string, status Status) (Task, error) {
	if !status.ValidTransitionTarget() {
		return Task{}, fmt.Errorf("%w: cannot move task to %q", ErrInvalidInput, status)
	}

	var task Task
	err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	if task.AuthorID != callerID {
		return Task{}, ErrNotAuthor
	}

	err = s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{"status": status, "updated_at": s.now().UTC()}).Error
	if err != nil {
		return Task{}, err
	}

	s.logger.Info("task status updated",
		zap.String("task_id", taskID),
		zap.String("status", string(status)))

	return s.Get(ctx, taskID)
}

// attachResponseCounts fills the derived ResponseCount field with one
// grouped query over the responses table.
func (s *Service) attachResponseCounts(ctx context.Context, result []Task) error {
	if len(result) == 0 {
		return nil
	}
	ids := make([]string, 0, len(result))
	for _, task := range result {
		ids = append(ids, task.ID)
	}

	type countRow struct {
		TaskID string
		Total  int64
	}
	var rows []countRow
	err := s.db.WithContext(ctx).
		Table("responses").
		Select("task_id, COUNT(*) AS total").
		Where("task_id IN ?", ids).
		Group("task_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TaskID] = row.Total
	}
	for i := range result {
		result[i].ResponseCount = counts[result[i].ID]
	}
	return nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
