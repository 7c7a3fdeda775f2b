package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taskora-labs/taskora/backend/internal/uploads"
)

const (
	envPrefix           = "TASKORA"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "taskora.db"
	defaultLogLevel     = "info"
	defaultTokenTTLMin  = 120
	defaultS3Region     = "us-east-1"

	minSigningSecretLength = 24
)

// AppConfig captures runtime configuration for the API server. It is
// constructed once at process start and threaded to every component.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	BotToken      string
	SigningSecret string
	TokenTTL      time.Duration
	S3            uploads.PresignerConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("s3.region", defaultS3Region)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		BotToken:      configViper.GetString("bot.token"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenTTL:      time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		S3: uploads.PresignerConfig{
			Endpoint:  configViper.GetString("s3.endpoint"),
			Region:    configViper.GetString("s3.region"),
			Bucket:    configViper.GetString("s3.bucket"),
			PublicURL: configViper.GetString("s3.public_url"),
			AccessKey: configViper.GetString("s3.access_key"),
			SecretKey: configViper.GetString("s3.secret_key"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot.token is required")
	}
	if len(strings.TrimSpace(c.SigningSecret)) < minSigningSecretLength {
		return fmt.Errorf("auth.signing_secret must be at least %d characters", minSigningSecretLength)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
