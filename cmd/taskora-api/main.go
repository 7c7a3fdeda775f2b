package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/taskora-labs/taskora/backend/internal/auth"
	"github.com/taskora-labs/taskora/backend/internal/categories"
	"github.com/taskora-labs/taskora/backend/internal/config"
	"github.com/taskora-labs/taskora/backend/internal/database"
	"github.com/taskora-labs/taskora/backend/internal/logging"
	"github.com/taskora-labs/taskora/backend/internal/responses"
	"github.com/taskora-labs/taskora/backend/internal/reviews"
	"github.com/taskora-labs/taskora/backend/internal/server"
	"github.com/taskora-labs/taskora/backend/internal/tasks"
	"github.com/taskora-labs/taskora/backend/internal/uploads"
	"github.com/taskora-labs/taskora/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskora-api",
		Short: "Taskora marketplace backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("bot-token", "", "Telegram bot token (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().String("s3-endpoint", defaults.GetString("s3.endpoint"), "S3-compatible storage endpoint")
	cmd.PersistentFlags().String("s3-region", defaults.GetString("s3.region"), "S3 region")
	cmd.PersistentFlags().String("s3-bucket", defaults.GetString("s3.bucket"), "S3 bucket for uploads")
	cmd.PersistentFlags().String("s3-public-url", defaults.GetString("s3.public_url"), "Public base URL for uploaded objects")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "bot.token", "bot-token")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "s3.endpoint", "s3-endpoint")
	bindFlag(cmd, "s3.region", "s3-region")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "s3.public_url", "s3-public-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewInitDataVerifier(auth.InitDataVerifierConfig{
		BotToken: appConfig.BotToken,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "taskora-auth",
		Audience:      "taskora-api",
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	categoriesService, err := categories.NewService(categories.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	tasksService, err := tasks.NewService(tasks.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	responsesService, err := responses.NewService(responses.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	reviewsService, err := reviews.NewService(reviews.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	var presigner *uploads.Presigner
	if appConfig.S3.Complete() {
		presigner, err = uploads.NewPresigner(appConfig.S3)
		if err != nil {
			return err
		}
		logger.Info("upload presigning enabled", zap.String("bucket", appConfig.S3.Bucket))
	} else {
		logger.Warn("upload presigning disabled: storage not configured")
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:   verifier,
		Tokens:     tokenIssuer,
		Users:      usersService,
		Categories: categoriesService,
		Tasks:      tasksService,
		Responses:  responsesService,
		Reviews:    reviewsService,
		Uploads:    presigner,
		Notifier:   server.NewNotifier(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
