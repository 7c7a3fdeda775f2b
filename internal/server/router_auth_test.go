package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskora-labs/taskora/backend/internal/auth"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/tasks", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenManager{validateErr: jwt.ErrTokenExpired},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), jwt.ErrTokenExpired) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/tasks", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenManager{validateErr: errors.New("signature mismatch")},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestAuthorizeRequestRejectsMissingBearerHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, header := range []string{"", "Bearer ", "Basic abc", "token-without-scheme"} {
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		request := httptest.NewRequest(http.MethodGet, "/api/tasks", http.NoBody)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		ctx.Request = request

		handler := &httpHandler{tokens: stubTokenManager{}, logger: zap.NewNop()}
		handler.authorizeRequest(ctx)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected unauthorized, got %d", header, recorder.Code)
		}
	}
}

func TestAuthorizeRequestSetsIdentityContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/tasks", http.NoBody)
	request.Header.Set("Authorization", "Bearer valid-token")
	ctx.Request = request

	handler := &httpHandler{
		tokens: stubTokenManager{claims: auth.SessionClaims{UserID: "user-77", TelegramID: "9000"}},
		logger: zap.NewNop(),
	}
	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to pass, got status %d", recorder.Code)
	}
	if got := ctx.GetString(userIDContextKey); got != "user-77" {
		t.Fatalf("unexpected user id in context: %q", got)
	}
	if got := ctx.GetString(telegramIDContextKey); got != "9000" {
		t.Fatalf("unexpected telegram id in context: %q", got)
	}
}

func TestHandleTelegramAuthRejectsEmptyInitData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodPost, "/auth/telegram", strings.NewReader(`{"initData":""}`))
	request.Header.Set("Content-Type", "application/json")
	ctx.Request = request

	handler := &httpHandler{
		verifier: stubVerifier{},
		tokens:   stubTokenManager{},
		logger:   zap.NewNop(),
	}
	handler.handleTelegramAuth(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", recorder.Code)
	}
}

func TestHandleTelegramAuthHidesVerificationDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, verifyErr := range []error{auth.ErrInvalidSignature, auth.ErrExpiredAuthData, auth.ErrMissingSignature} {
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		request := httptest.NewRequest(http.MethodPost, "/auth/telegram", strings.NewReader(`{"initData":"query_id=x"}`))
		request.Header.Set("Content-Type", "application/json")
		ctx.Request = request

		handler := &httpHandler{
			verifier: stubVerifier{err: verifyErr},
			tokens:   stubTokenManager{},
			logger:   zap.NewNop(),
		}
		handler.handleTelegramAuth(ctx)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%v: expected unauthorized, got %d", verifyErr, recorder.Code)
		}
		expected := `{"error":"unauthorized"}`
		if recorder.Body.String() != expected {
			t.Fatalf("%v: expected uniform body %s, got %s", verifyErr, expected, recorder.Body.String())
		}
	}
}

type stubTokenManager struct {
	claims      auth.SessionClaims
	validateErr error
}

func (s stubTokenManager) Issue(string, string) (string, int64, error) {
	return "stub-token", 7200, nil
}

func (s stubTokenManager) Validate(string) (auth.SessionClaims, error) {
	if s.validateErr != nil {
		return auth.SessionClaims{}, s.validateErr
	}
	return s.claims, nil
}

type stubVerifier struct {
	identity auth.TelegramIdentity
	err      error
}

func (s stubVerifier) Verify(string) (auth.TelegramIdentity, error) {
	if s.err != nil {
		return auth.TelegramIdentity{}, s.err
	}
	return s.identity, nil
}
