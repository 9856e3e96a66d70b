package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig
	Agent     AgentConfig
	Generator GeneratorConfig
	Pacing    PacingConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Server    ServerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// AgentConfig seeds the persisted settings on first boot
type AgentConfig struct {
	GeminiAPIKey    string
	MistralAPIKey   string
	TargetProfiles  []string
	BusinessContext string
	VisionPrompt    string
	CommentPrompt   string
}

// GeneratorConfig holds the AI vendor options
type GeneratorConfig struct {
	TextModel         string
	VisionModel       string
	MistralBaseURL    string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	MaxRetries        int
}

// PacingConfig holds the delays between targets, in milliseconds
type PacingConfig struct {
	BetweenMinMs        int
	BetweenMaxMs        int
	SkipMinMs           int
	SkipMaxMs           int
	NavigationTimeoutMs int
}

// BrowserConfig holds how to reach the browser
type BrowserConfig struct {
	SiteURL     string
	DebuggerURL string
	Bin         string
	Headless    bool
}

// DatabaseConfig holds store configuration
type DatabaseConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port                 int
	MaxRequestsPerMinute int
}

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// BetweenTargets returns the delay range between targets
func (p PacingConfig) BetweenTargets() (time.Duration, time.Duration) {
	return ms(p.BetweenMinMs), ms(p.BetweenMaxMs)
}

// AfterSkip returns the delay range after a skipped target
func (p PacingConfig) AfterSkip() (time.Duration, time.Duration) {
	return ms(p.SkipMinMs), ms(p.SkipMaxMs)
}

// NavigationTimeout returns the page load limit
func (p PacingConfig) NavigationTimeout() time.Duration {
	return ms(p.NavigationTimeoutMs)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// LoadConfig loads configuration from the .env file and the environment.
// A missing .env file is not an error; the environment is used as-is.
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		log.WithField("file", envPath).Warn("No .env file loaded, using environment")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "LinkedIn Agent"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Agent: AgentConfig{
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			MistralAPIKey:   getEnv("MISTRAL_API_KEY", ""),
			TargetProfiles:  parseTargets(getEnv("TARGET_PROFILES", "")),
			BusinessContext: getEnv("BUSINESS_CONTEXT", ""),
			VisionPrompt:    getEnv("VISION_PROMPT", ""),
			CommentPrompt:   getEnv("COMMENT_PROMPT", ""),
		},
		Generator: GeneratorConfig{
			TextModel:         getEnv("TEXT_MODEL", "gemini-2.0-flash"),
			VisionModel:       getEnv("VISION_MODEL", "pixtral-large-latest"),
			MistralBaseURL:    getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
			Temperature:       getEnvAsFloat("GENERATION_TEMPERATURE", 0.7),
			MaxTokens:         getEnvAsInt("GENERATION_MAX_TOKENS", 2000),
			RequestsPerMinute: getEnvAsInt("GENERATOR_REQUESTS_PER_MINUTE", 10),
			MaxRetries:        getEnvAsInt("GENERATOR_MAX_RETRIES", 2),
		},
		Pacing: PacingConfig{
			BetweenMinMs:        getEnvAsInt("DELAY_BETWEEN_MIN_MS", 60000),
			BetweenMaxMs:        getEnvAsInt("DELAY_BETWEEN_MAX_MS", 120000),
			SkipMinMs:           getEnvAsInt("DELAY_SKIP_MIN_MS", 1000),
			SkipMaxMs:           getEnvAsInt("DELAY_SKIP_MAX_MS", 3000),
			NavigationTimeoutMs: getEnvAsInt("NAVIGATION_TIMEOUT_MS", 25000),
		},
		Browser: BrowserConfig{
			SiteURL:     getEnv("SITE_URL", "https://www.linkedin.com"),
			DebuggerURL: getEnv("BROWSER_DEBUGGER_URL", ""),
			Bin:         getEnv("BROWSER_BIN", ""),
			Headless:    getEnvAsBool("BROWSER_HEADLESS", false),
		},
		Database: DatabaseConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
			Path:          getEnv("DATABASE_PATH", "./data/agent.db"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:                 getEnvAsInt("SERVER_PORT", 8080),
			MaxRequestsPerMinute: getEnvAsInt("SERVER_MAX_REQUESTS_PER_MINUTE", 120),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// parseTargets splits a comma or newline separated list of profile URLs
func parseTargets(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	targets := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}
	return targets
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration. Credentials are checked when a
// run starts, not here.
func validateConfig(config *Config) error {
	p := config.Pacing
	if err := validateRange("DELAY_BETWEEN", p.BetweenMinMs, p.BetweenMaxMs); err != nil {
		return err
	}
	if err := validateRange("DELAY_SKIP", p.SkipMinMs, p.SkipMaxMs); err != nil {
		return err
	}
	if p.NavigationTimeoutMs <= 0 {
		return fmt.Errorf("NAVIGATION_TIMEOUT_MS must be positive")
	}
	if config.Generator.MaxRetries < 0 {
		return fmt.Errorf("GENERATOR_MAX_RETRIES must not be negative")
	}

	switch config.Database.Backend {
	case BackendSQLite:
		// if we are storing the db in a nested directory, create the directory
		dbDir := filepath.Dir(config.Database.Path)
		if dbDir != "." && dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case BackendRedis:
		if config.Database.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR environment variable is required when STORE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", config.Database.Backend)
	}

	return nil
}

func validateRange(prefix string, lo, hi int) error {
	if lo < 0 || hi < 0 {
		return fmt.Errorf("%s_MIN_MS and %s_MAX_MS must not be negative", prefix, prefix)
	}
	if lo > hi {
		return fmt.Errorf("%s_MIN_MS must not exceed %s_MAX_MS", prefix, prefix)
	}
	return nil
}
