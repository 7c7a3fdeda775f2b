package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/taskora-labs/taskora/backend/internal/auth"
	"github.com/taskora-labs/taskora/backend/internal/categories"
	"github.com/taskora-labs/taskora/backend/internal/responses"
	"github.com/taskora-labs/taskora/backend/internal/reviews"
	"github.com/taskora-labs/taskora/backend/internal/tasks"
	"github.com/taskora-labs/taskora/backend/internal/uploads"
	"github.com/taskora-labs/taskora/backend/internal/users"
)

const (
	userIDContextKey     = "taskora_user_id"
	telegramIDContextKey = "taskora_tg_id"

	heartbeatInterval = 25 * time.Second
)

var (
	errMissingVerifier      = errors.New("init data verifier dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingCatalog       = errors.New("categories service dependency required")
	errMissingTasksService  = errors.New("tasks service dependency required")
	errMissingResponses     = errors.New("responses service dependency required")
	errMissingReviews       = errors.New("reviews service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// InitDataVerifier validates a Telegram Mini-App launch payload.
type InitDataVerifier interface {
	Verify(rawInitData string) (auth.TelegramIdentity, error)
}

// SessionTokenManager issues and validates bearer tokens.
type SessionTokenManager interface {
	Issue(userID, telegramID string) (string, int64, error)
	Validate(token string) (auth.SessionClaims, error)
}

// Dependencies enumerates everything the HTTP surface needs, passed
// explicitly at construction.
type Dependencies struct {
	Verifier   InitDataVerifier
	Tokens     SessionTokenManager
	Users      *users.Service
	Categories *categories.Service
	Tasks      *tasks.Service
	Responses  *responses.Service
	Reviews    *reviews.Service
	Uploads    *uploads.Presigner
	Notifier   *Notifier
	Logger     *zap.Logger
}

// NewHTTPHandler assembles the gin router over the provided dependencies.
// Uploads may be nil (endpoint answers 503); everything else is mandatory.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Categories == nil {
		return nil, errMissingCatalog
	}
	if deps.Tasks == nil {
		return nil, errMissingTasksService
	}
	if deps.Responses == nil {
		return nil, errMissingResponses
	}
	if deps.Reviews == nil {
		return nil, errMissingReviews
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.Verifier,
		tokens:     deps.Tokens,
		users:      deps.Users,
		categories: deps.Categories,
		tasks:      deps.Tasks,
		responses:  deps.Responses,
		reviews:    deps.Reviews,
		uploads:    deps.Uploads,
		notifier:   notifier,
		logger:     logger,
	}

	router.POST("/auth/telegram", handler.handleTelegramAuth)
	router.GET("/api/categories", handler.handleListCategories)
	router.GET("/api/categories/:slug", handler.handleGetCategory)
	router.GET("/api/users/:id", handler.handleGetUser)
	router.GET("/api/tasks", handler.handleListTasks)
	router.GET("/api/responses", handler.handleListResponses)
	router.GET("/api/reviews", handler.handleListReviews)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PATCH("/api/users/me/role", handler.handleUpdateRole)
	protected.POST("/api/tasks", handler.handleCreateTask)
	protected.PATCH("/api/tasks/:id/status", handler.handleUpdateTaskStatus)
	protected.POST("/api/responses", handler.handleCreateResponse)
	protected.POST("/api/reviews", handler.handleCreateReview)
	protected.POST("/api/uploads/presign", handler.handlePresignUpload)
	protected.GET("/api/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	verifier   InitDataVerifier
	tokens     SessionTokenManager
	users      *users.Service
	categories *categories.Service
	tasks      *tasks.Service
	responses  *responses.Service
	reviews    *reviews.Service
	uploads    *uploads.Presigner
	notifier   *Notifier
	logger     *zap.Logger
}

type telegramAuthPayload struct {
	InitData string `json:"initData"`
}

type telegramAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	TokenType string `json:"token_type"`
}

func (h *httpHandler) handleTelegramAuth(c *gin.Context) {
	var request telegramAuthPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.InitData) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.verifier.Verify(request.InitData)
	if err != nil {
		// All verification sub-cases collapse to one outward error.
		h.logger.Warn("init data verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.ResolveTelegramUser(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("failed to resolve telegram user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}

	token, expiresIn, err := h.tokens.Issue(user.ID, user.TelegramID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, telegramAuthResponse{
		Token:     token,
		ExpiresIn: expiresIn,
		TokenType: "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(telegramIDContextKey, claims.TelegramID)
	c.Next()
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	result, err := h.categories.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list categories", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog_unavailable"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleGetCategory(c *gin.Context) {
	category, err := h.categories.GetBySlug(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, categories.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load category", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog_unavailable"})
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, users.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateRolePayload struct {
	Role users.Role `json:"role"`
}

func (h *httpHandler) handleUpdateRole(c *gin.Context) {
	var request updateRolePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.UpdateRole(c.Request.Context(), c.GetString(userIDContextKey), request.Role)
	switch {
	case errors.Is(err, users.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be CUSTOMER or EXECUTOR"})
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case err != nil:
		h.logger.Error("failed to update role", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "role_update_failed"})
	default:
		c.JSON(http.StatusOK, user)
	}
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var input tasks.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), c.GetString(userIDContextKey), input)
	switch {
	case errors.Is(err, tasks.ErrCategoryNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "category not found"})
	case errors.Is(err, tasks.ErrSpecializationNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "some specializations not found"})
	case errors.Is(err, tasks.ErrSpecializationMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "specialization does not belong to category"})
	case errors.Is(err, tasks.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to create task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task_creation_failed"})
	default:
		c.JSON(http.StatusCreated, task)
	}
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	filter := tasks.ListFilter{
		CategoryID:       c.Query("categoryId"),
		SpecializationID: c.Query("specializationId"),
		Status:           tasks.Status(c.Query("status")),
		Skip:             queryInt(c, "skip"),
		Take:             queryInt(c, "take"),
	}

	result, err := h.tasks.List(c.Request.Context(), filter)
	if errors.Is(err, tasks.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task_listing_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type updateTaskStatusPayload struct {
	Status tasks.Status `json:"status"`
}

func (h *httpHandler) handleUpdateTaskStatus(c *gin.Context) {
	var request updateTaskStatusPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	task, err := h.tasks.UpdateStatus(c.Request.Context(), c.Param("id"), c.GetString(userIDContextKey), request.Status)
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, tasks.ErrNotAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "only author can update task status"})
	case errors.Is(err, tasks.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to update task status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_update_failed"})
	default:
		c.JSON(http.StatusOK, task)
	}
}

func (h *httpHandler) handleCreateResponse(c *gin.Context) {
	var input responses.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID := c.GetString(userIDContextKey)
	result, err := h.responses.Create(c.Request.Context(), userID, input)
	switch {
	case errors.Is(err, responses.ErrAlreadyResponded):
		c.JSON(http.StatusConflict, gin.H{"error": "already responded to this task"})
	case errors.Is(err, responses.ErrTaskNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "task not found"})
	case errors.Is(err, responses.ErrTaskNotActive):
		c.JSON(http.StatusBadRequest, gin.H{"error": "task is not active"})
	case errors.Is(err, responses.ErrOwnTask):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot respond to own task"})
	case errors.Is(err, responses.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to create response", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "response_creation_failed"})
	default:
		h.notifier.Publish(Event{
			UserID:     result.Task.AuthorID,
			Type:       EventResponseCreated,
			TaskID:     result.Task.ID,
			ResponseID: result.Response.ID,
			FromUserID: userID,
			Timestamp:  result.Response.CreatedAt,
		})
		c.JSON(http.StatusCreated, result.Response)
	}
}

func (h *httpHandler) handleListResponses(c *gin.Context) {
	result, err := h.responses.List(c.Request.Context(), responses.ListFilter{
		TaskID: c.Query("taskId"),
		Skip:   queryInt(c, "skip"),
		Take:   queryInt(c, "take"),
	})
	if err != nil {
		h.logger.Error("failed to list responses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "response_listing_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleCreateReview(c *gin.Context) {
	var input reviews.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	review, err := h.reviews.Create(c.Request.Context(), c.GetString(userIDContextKey), input)
	switch {
	case errors.Is(err, reviews.ErrSelfReview):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot review yourself"})
	case errors.Is(err, reviews.ErrTaskNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "task not found"})
	case errors.Is(err, reviews.ErrTaskNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "can only review completed tasks"})
	case errors.Is(err, reviews.ErrNotParticipant):
		c.JSON(http.StatusBadRequest, gin.H{"error": "can only review tasks you participated in"})
	case errors.Is(err, reviews.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("failed to create review", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review_creation_failed"})
	default:
		c.JSON(http.StatusCreated, review)
	}
}

func (h *httpHandler) handleListReviews(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter required"})
		return
	}
	result, err := h.reviews.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list reviews", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "review_listing_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type presignPayload struct {
	Mime string `json:"mime"`
}

func (h *httpHandler) handlePresignUpload(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads not configured"})
		return
	}

	var request presignPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	grant, err := h.uploads.PresignPut(c.Request.Context(), request.Mime)
	if errors.Is(err, uploads.ErrInvalidMime) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mime type required"})
		return
	}
	if err != nil {
		h.logger.Error("failed to presign upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "presign_failed"})
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	stream, cancel := h.notifier.Subscribe(c.Request.Context(), userID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-heartbeat.C:
			c.SSEvent(eventHeartbeat, time.Now().UTC().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
