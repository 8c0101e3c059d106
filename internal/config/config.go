package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no completion API
// credential is configured.
var ErrMissingAPIKey = eris.New("anthropic API key not found: set FIPLANNER_ANTHROPIC_KEY (or ANTHROPIC_API_KEY) in the environment or a .env file")

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Planner   PlannerConfig   `yaml:"planner" mapstructure:"planner"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds completion API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// PlannerConfig locates reference data and tunes document extraction.
type PlannerConfig struct {
	LiveFactsPath string `yaml:"live_facts_path" mapstructure:"live_facts_path"`
	SnippetsPath  string `yaml:"snippets_path" mapstructure:"snippets_path"`
	ContextRadius int    `yaml:"context_radius" mapstructure:"context_radius"`
	MaxChunks     int    `yaml:"max_chunks" mapstructure:"max_chunks"`
	RepairJSON    bool   `yaml:"repair_json" mapstructure:"repair_json"`
	ExportDir     string `yaml:"export_dir" mapstructure:"export_dir"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// StoreConfig configures the plan archive. Driver "none" disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxUploadMB int64    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env (optional); never overrides variables already set.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, eris.Wrap(err, "config: load .env")
		}
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIPLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("anthropic.key", "FIPLANNER_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind anthropic key")
	}

	// Defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("planner.live_facts_path", "data/live.json")
	v.SetDefault("planner.snippets_path", "kb/seed_snippets.json")
	v.SetDefault("planner.context_radius", 1)
	v.SetDefault("planner.max_chunks", 6)
	v.SetDefault("planner.repair_json", false)
	v.SetDefault("planner.export_dir", ".")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_key", "")
	v.SetDefault("ocr.mistral_model", "pixtral-large-latest")
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "fiplanner.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 3)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RequireAPIKey reports ErrMissingAPIKey when no credential is configured.
// Commands that call the completion API check it before doing any work.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Anthropic.Key) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Validate checks value ranges for the given mode: "offline" (no API calls),
// "plan", or "serve". The API key is checked separately by RequireAPIKey.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "offline", "plan", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Planner.ContextRadius < 0 {
		errs = append(errs, "planner.context_radius must be >= 0")
	}
	if c.Planner.MaxChunks < 1 {
		errs = append(errs, "planner.max_chunks must be >= 1")
	}
	switch c.Store.Driver {
	case "none", "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be none, sqlite or postgres", c.Store.Driver))
	}

	if mode == "plan" || mode == "serve" {
		if c.Anthropic.Model == "" {
			errs = append(errs, "anthropic.model is required")
		}
		if c.Anthropic.MaxTokens <= 0 {
			errs = append(errs, "anthropic.max_tokens must be > 0")
		}
		if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
			errs = append(errs, "anthropic.temperature must be between 0 and 1")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
