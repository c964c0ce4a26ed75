package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read once at process start and passed to constructors.
type Config struct {
	// Store engine. An empty DatabaseURL selects the embedded sqlite file.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/tradelens.db"`

	// Store server
	Port        string   `env:"PORT" envDefault:"8080"`
	GinMode     string   `env:"GIN_MODE" envDefault:"debug"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Remote store used by the CLI. Empty means open the engine in-process.
	StoreURL           string        `env:"STORE_URL"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	StoreAttempts      int           `env:"STORE_ATTEMPTS" envDefault:"3"`
	StoreRetryInterval time.Duration `env:"STORE_RETRY_INTERVAL" envDefault:"2s"`

	// Fallback cache
	CachePath string `env:"CACHE_PATH" envDefault:"data/fallback.db"`

	// LLM
	LLMProvider          string `env:"LLM_PROVIDER" envDefault:"ollama"`
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel          string `env:"OLLAMA_MODEL" envDefault:"llama3.1:8b"`
	OllamaTimeoutSeconds int    `env:"OLLAMA_TIMEOUT_SECONDS" envDefault:"300"`
	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIModel          string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL        string `env:"OPENAI_BASE_URL"`

	// Backups
	BackupDir      string `env:"BACKUP_DIR" envDefault:"backups"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"tradelens-backups"`
	MinioRegion    string `env:"MINIO_REGION" envDefault:"us-east-1"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogDir   string `env:"LOG_DIR" envDefault:"logs"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider() {
	case "ollama":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.StoreAttempts < 1 {
		return fmt.Errorf("STORE_ATTEMPTS must be at least 1")
	}
	return nil
}

// Provider returns the normalized LLM provider name.
func (c *Config) Provider() string {
	return strings.ToLower(strings.TrimSpace(c.LLMProvider))
}

// UsesEmbeddedEngine reports whether the store runs on the local sqlite file.
func (c *Config) UsesEmbeddedEngine() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}

// MinioEnabled reports whether backups are also uploaded to object storage.
func (c *Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}
