// Package config loads forgebot configuration from the environment with
// an optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Planner
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`
	BedrockRegion   string `yaml:"bedrock_region"`

	// GitHub
	GitHubToken    string `yaml:"github_token"`
	DefaultRepoURL string `yaml:"default_repo_url"`
	BaseBranch     string `yaml:"base_branch"`
	MaxContextFiles int   `yaml:"max_context_files"`

	// Lark
	LarkAppID             string `yaml:"lark_app_id"`
	LarkAppSecret         string `yaml:"lark_app_secret"`
	LarkVerificationToken string `yaml:"lark_verification_token"`

	// Server
	Port       string `yaml:"port"`
	CronSecret string `yaml:"cron_secret"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. When
// FORGEBOT_CONFIG points at a YAML file, values from the file are applied
// first and the environment overrides them.
func Load() Config {
	cfg := Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "forgebot",
		SurrealDBDatabase:  "jobs",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		LLMProvider:   ProviderOpenAI,
		LLMModel:      "gpt-4o",
		OllamaHost:    "http://localhost:11434",
		BedrockRegion: "us-east-1",

		BaseBranch:      "main",
		MaxContextFiles: 20,

		Port:    "8787",
		LogFile: "/tmp/forgebot.log",
	}

	if path := os.Getenv("FORGEBOT_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			slog.Warn("failed to load config file, continuing with env only", "path", path, "error", err)
		}
	}

	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)
	cfg.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", cfg.SurrealDBAuthLevel)

	cfg.LLMProvider = getEnv("FORGEBOT_LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMModel = getEnv("FORGEBOT_LLM_MODEL", cfg.LLMModel)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.BedrockRegion = getEnv("BEDROCK_REGION", cfg.BedrockRegion)

	cfg.GitHubToken = getEnv("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.DefaultRepoURL = getEnv("DEFAULT_REPO_URL", cfg.DefaultRepoURL)
	cfg.BaseBranch = getEnv("FORGEBOT_BASE_BRANCH", cfg.BaseBranch)

	cfg.LarkAppID = getEnv("LARK_APP_ID", cfg.LarkAppID)
	cfg.LarkAppSecret = getEnv("LARK_APP_SECRET", cfg.LarkAppSecret)
	cfg.LarkVerificationToken = getEnv("LARK_VERIFICATION_TOKEN", cfg.LarkVerificationToken)

	cfg.Port = getEnv("FORGEBOT_PORT", cfg.Port)
	cfg.CronSecret = getEnv("CRON_SECRET", cfg.CronSecret)

	cfg.LogFile = getEnv("FORGEBOT_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = parseLogLevel(getEnv("FORGEBOT_LOG_LEVEL", "INFO"))

	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
