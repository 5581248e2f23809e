// Package config provides configuration loading for faqd: hardcoded
// defaults overridden by FAQD_* environment variables, with a .env file
// loaded first when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Vectors   VectorConfig    `koanf:"vectors"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the vector store backend: "postgres" or "sqlite".
	Driver string `koanf:"driver"`

	// URL is the Postgres connection string. Required for the postgres
	// driver.
	URL string `koanf:"url"`

	// DataDir is where the sqlite driver keeps its database file.
	DataDir string `koanf:"data_dir"`
}

type OpenAIConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	EmbeddingModel string        `koanf:"embedding_model"`
	ChatModel      string        `koanf:"chat_model"`
	EmbedTimeout   time.Duration `koanf:"embed_timeout"`
	ChatTimeout    time.Duration `koanf:"chat_timeout"`
}

type VectorConfig struct {
	// Table is the records table name (postgres driver).
	Table string `koanf:"table"`

	// Dimensions is the embedding dimensionality every record must carry.
	Dimensions int `koanf:"dimensions"`

	// IndexLists is the ivfflat lists parameter (postgres driver).
	IndexLists int `koanf:"index_lists"`
}

type RetrievalConfig struct {
	// TopK is how many records a query retrieves for synthesis.
	TopK int `koanf:"top_k"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
			EmbedTimeout:   30 * time.Second,
			ChatTimeout:    60 * time.Second,
		},
		Vectors: VectorConfig{
			Table:      "embeddings",
			Dimensions: 1536,
			IndexLists: 100,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns $XDG_DATA_HOME/faqd, falling back to
// ~/.local/share/faqd.
func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "faqd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "faqd-data"
	}
	return filepath.Join(home, ".local", "share", "faqd")
}

// envKeys maps FAQD_* environment variables to config paths. An explicit
// table avoids guessing where underscores split between section and field.
var envKeys = map[string]string{
	"FAQD_SERVER_PORT":             "server.port",
	"FAQD_SERVER_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"FAQD_DATABASE_DRIVER":         "database.driver",
	"FAQD_DATABASE_URL":            "database.url",
	"FAQD_DATABASE_DATA_DIR":       "database.data_dir",
	"FAQD_OPENAI_API_KEY":          "openai.api_key",
	"FAQD_OPENAI_BASE_URL":         "openai.base_url",
	"FAQD_OPENAI_EMBEDDING_MODEL":  "openai.embedding_model",
	"FAQD_OPENAI_CHAT_MODEL":       "openai.chat_model",
	"FAQD_OPENAI_EMBED_TIMEOUT":    "openai.embed_timeout",
	"FAQD_OPENAI_CHAT_TIMEOUT":     "openai.chat_timeout",
	"FAQD_VECTORS_TABLE":           "vectors.table",
	"FAQD_VECTORS_DIMENSIONS":      "vectors.dimensions",
	"FAQD_VECTORS_INDEX_LISTS":     "vectors.index_lists",
	"FAQD_RETRIEVAL_TOP_K":         "retrieval.top_k",
	"FAQD_LOG_LEVEL":               "log.level",

	// The provider's usual variable name works for the API key too.
	"OPENAI_API_KEY": "openai.api_key",
}

// Load reads configuration from defaults, a .env file in the working
// directory (if present), and FAQD_* environment variables, in ascending
// precedence.
func Load() (Config, error) {
	// Missing .env is fine; it only seeds the process environment.
	_ = godotenv.Load()

	cfg := defaults()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable FAQD_OPENAI_API_KEY or OPENAI_API_KEY")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("missing required config: database URL. " +
				"Set it via environment variable FAQD_DATABASE_URL")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.Vectors.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d", c.Vectors.Dimensions)
	}
	return nil
}
