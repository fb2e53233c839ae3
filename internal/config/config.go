// Package config loads dictbot settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalid is returned when required settings are missing or malformed.
// Callers treat it as fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	AI       AIConfig       `mapstructure:"ai"`
	Database DatabaseConfig `mapstructure:"database"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Messages MessagesConfig `mapstructure:"messages"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lte=65535"`
}

type TelegramConfig struct {
	BotToken    string `mapstructure:"bot_token" validate:"required"`
	WebhookURL  string `mapstructure:"webhook_url" validate:"required,url"`
	WebhookPath string `mapstructure:"webhook_path" validate:"required,startswith=/"`
}

// WebhookEndpoint is the public URL registered with Telegram.
func (c TelegramConfig) WebhookEndpoint() string {
	base := strings.TrimRight(c.WebhookURL, "/")
	if strings.HasSuffix(base, c.WebhookPath) {
		return base
	}
	return base + c.WebhookPath
}

type AIConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Enabled reports whether an API key is configured.
// Without it lookups that miss the dictionary get a fixed reply.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres mysql sqlite"`
	URL             string        `mapstructure:"url" validate:"required"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int           `mapstructure:"conn_max_lifetime_seconds" validate:"gte=0"`
}

type AdminConfig struct {
	UserID int64 `mapstructure:"user_id" validate:"required,gt=0"`
}

type WorkerConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gt=0"`
}

type MessagesConfig struct {
	File string `mapstructure:"file" validate:"omitempty,file"`
}

const (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dictbot")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

// envBindings maps config keys to the environment variables that set them.
// Earlier names win when several are set.
var envBindings = map[string][]string{
	"telegram.bot_token":    {"BOT_TOKEN"},
	"telegram.webhook_url":  {"WEBHOOK_URL"},
	"telegram.webhook_path": {"WEBHOOK_PATH"},
	"ai.provider":           {"AI_PROVIDER"},
	"ai.api_key":            {"AI_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	"ai.model":              {"AI_MODEL"},
	"ai.base_url":           {"AI_BASE_URL"},
	"ai.timeout":            {"AI_TIMEOUT"},
	"database.driver":       {"DATABASE_DRIVER"},
	"database.url":          {"DATABASE_URL"},
	"admin.user_id":         {"ADMIN_ID"},
	"server.port":           {"PORT"},
}

// Load reads and validates the whole configuration.
func (loader *ConfigLoader) Load() (*Config, error) {
	return loader.LoadSections()
}

// LoadSections validates only the named top-level sections, given as field
// names of Config such as "Database". Operator commands use it so that a
// migration does not need a bot token.
func (loader *ConfigLoader) LoadSections(sections ...string) (*Config, error) {
	v := loader.viper

	v.SetDefault("server.port", 8080)
	v.SetDefault("telegram.webhook_path", "/webhook")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.timeout", 40*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.query_timeout", 5*time.Second)
	v.SetDefault("worker.max_concurrency", 32)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", strings.Join(envs, "/"), err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = defaultModel(cfg.AI.Provider)
	}

	if err := loader.validate(cfg, sections); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}

func (loader *ConfigLoader) validate(cfg Config, sections []string) error {
	if len(sections) == 0 {
		return loader.validator.Struct(cfg)
	}
	return loader.validator.StructFiltered(cfg, func(ns []byte) bool {
		for _, section := range sections {
			if strings.HasPrefix(string(ns), "Config."+section) {
				return false
			}
		}
		return true
	})
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}
