package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable Load reads so ambient settings cannot leak
// into a test. t.Setenv registers the restore; the unset makes the variable
// truly absent rather than empty.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", cfg.OpenAI.EmbeddingModel)
	}
	if cfg.Vectors.Dimensions != 1536 {
		t.Errorf("dimensions = %d, want 1536", cfg.Vectors.Dimensions)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k = %d, want 3", cfg.Retrieval.TopK)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAQD_OPENAI_API_KEY", "sk-override")
	t.Setenv("FAQD_SERVER_PORT", "9090")
	t.Setenv("FAQD_SERVER_SHUTDOWN_TIMEOUT", "10s")
	t.Setenv("FAQD_DATABASE_DRIVER", "postgres")
	t.Setenv("FAQD_DATABASE_URL", "postgres://localhost/faq")
	t.Setenv("FAQD_VECTORS_DIMENSIONS", "768")
	t.Setenv("FAQD_RETRIEVAL_TOP_K", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-override" {
		t.Errorf("api key = %q, want sk-override", cfg.OpenAI.APIKey)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.URL != "postgres://localhost/faq" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Vectors.Dimensions != 768 {
		t.Errorf("dimensions = %d, want 768", cfg.Vectors.Dimensions)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d, want 5", cfg.Retrieval.TopK)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without an API key")
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("err = %v, want API key message", err)
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FAQD_DATABASE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded for postgres driver without a URL")
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FAQD_DATABASE_DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted an unknown database driver")
	}
}
