package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var envVars = []string{
	"QUAKEQA_CONFIG", "DATASET_PATH", "DATASET_DELIMITER",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "RETRIEVAL_K", "MIN_SIMILARITY", "NOT_FOUND_SENTINEL",
	"LLM_PROVIDER", "LLM_BASE_URL", "LLM_MODEL", "LLM_API_KEY", "LLM_TEMPERATURE", "LLM_MAX_TOKENS",
	"GENERATION_TIMEOUT", "EMBEDDING_PROVIDER", "EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME",
	"EMBEDDING_API_KEY", "EMBEDDING_DIMENSION", "EMBED_BATCH_SIZE",
	"VECTOR_STORE", "INDEX_PATH", "INDEX_COLLECTION", "QDRANT_URL",
	"DB_PATH", "API_PORT", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
}

// isolateEnv clears every variable Load reads and restores them when the test ends.
// Paths that Load creates directories for are pointed at a temp dir.
func isolateEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envVars {
		original[key] = os.Getenv(key)
		unsetEnv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})

	dir := t.TempDir()
	setEnv("DB_PATH", filepath.Join(dir, "quakeqa.db"))
	setEnv("LOG_FILE", filepath.Join(dir, "logs", "quakeqa.log"))
	setEnv("INDEX_PATH", filepath.Join(dir, "index"))
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		wantField   string
		checkConfig func(*Config) bool
	}{
		{
			name:     "defaults",
			setupEnv: func(t *testing.T) {},
			checkConfig: func(cfg *Config) bool {
				return cfg.ChunkSize == 1000 &&
					cfg.ChunkOverlap == 200 &&
					cfg.RetrievalK == 3 &&
					cfg.LLMTemperature == 0.2 &&
					cfg.GenerationTimeout == 60*time.Second &&
					cfg.VectorStore == StoreMemory &&
					cfg.DatasetDelimiter == 0 &&
					cfg.NotFoundSentinel == DefaultNotFoundSentinel &&
					cfg.LogLevel == slog.LevelInfo
			},
		},
		{
			name: "custom values",
			setupEnv: func(t *testing.T) {
				setEnv("CHUNK_SIZE", "500")
				setEnv("CHUNK_OVERLAP", "50")
				setEnv("RETRIEVAL_K", "5")
				setEnv("GENERATION_TIMEOUT", "15s")
				setEnv("DATASET_DELIMITER", ";")
				setEnv("LOG_LEVEL", "debug")
				setEnv("VECTOR_STORE", "QDRANT")
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.ChunkSize == 500 &&
					cfg.ChunkOverlap == 50 &&
					cfg.RetrievalK == 5 &&
					cfg.GenerationTimeout == 15*time.Second &&
					cfg.DatasetDelimiter == ';' &&
					cfg.LogLevel == slog.LevelDebug &&
					cfg.VectorStore == StoreQdrant
			},
		},
		{
			name: "timeout in plain seconds",
			setupEnv: func(t *testing.T) {
				setEnv("GENERATION_TIMEOUT", "90")
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.GenerationTimeout == 90*time.Second
			},
		},
		{
			name: "hash embedder gets a default dimension",
			setupEnv: func(t *testing.T) {
				setEnv("EMBEDDING_PROVIDER", "hash")
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.EmbeddingProvider == ProviderHash && cfg.EmbeddingDimension == 384
			},
		},
		{
			name: "overlap equal to chunk size",
			setupEnv: func(t *testing.T) {
				setEnv("CHUNK_SIZE", "100")
				setEnv("CHUNK_OVERLAP", "100")
			},
			wantErr:   true,
			wantField: "CHUNK_OVERLAP",
		},
		{
			name: "zero k",
			setupEnv: func(t *testing.T) {
				setEnv("RETRIEVAL_K", "0")
			},
			wantErr:   true,
			wantField: "RETRIEVAL_K",
		},
		{
			name: "k above the retrieval cap",
			setupEnv: func(t *testing.T) {
				setEnv("RETRIEVAL_K", "21")
			},
			wantErr:   true,
			wantField: "RETRIEVAL_K",
		},
		{
			name: "k at the retrieval cap",
			setupEnv: func(t *testing.T) {
				setEnv("RETRIEVAL_K", "20")
			},
			checkConfig: func(cfg *Config) bool {
				return cfg.RetrievalK == MaxRetrievalK
			},
		},
		{
			name: "non-numeric chunk size",
			setupEnv: func(t *testing.T) {
				setEnv("CHUNK_SIZE", "large")
			},
			wantErr:   true,
			wantField: "CHUNK_SIZE",
		},
		{
			name: "unknown embedding provider",
			setupEnv: func(t *testing.T) {
				setEnv("EMBEDDING_PROVIDER", "word2vec")
			},
			wantErr:   true,
			wantField: "EMBEDDING_PROVIDER",
		},
		{
			name: "unknown vector store",
			setupEnv: func(t *testing.T) {
				setEnv("VECTOR_STORE", "chroma")
			},
			wantErr:   true,
			wantField: "VECTOR_STORE",
		},
		{
			name: "bad log level",
			setupEnv: func(t *testing.T) {
				setEnv("LOG_LEVEL", "loud")
			},
			wantErr:   true,
			wantField: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			tt.setupEnv(t)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Load() expected error, got nil")
				}
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("Load() error = %v, want *ConfigError", err)
				}
				if cfgErr.Field != tt.wantField {
					t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.wantField)
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() unexpected error = %v", err)
			}
			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config check failed: %+v", cfg)
			}
		})
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "quakeqa.yaml")
	content := "chunk_size: 800\nchunk_overlap: 120\nretrieval_k: 4\nllm_temperature: 0.1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	setEnv("QUAKEQA_CONFIG", path)
	setEnv("RETRIEVAL_K", "6") // environment wins over the file
	t.Cleanup(func() {
		unsetEnv("CHUNK_SIZE")
		unsetEnv("CHUNK_OVERLAP")
		unsetEnv("LLM_TEMPERATURE")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ChunkSize != 800 {
		t.Errorf("ChunkSize = %d, want 800", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 120 {
		t.Errorf("ChunkOverlap = %d, want 120", cfg.ChunkOverlap)
	}
	if cfg.RetrievalK != 6 {
		t.Errorf("RetrievalK = %d, want 6", cfg.RetrievalK)
	}
	if cfg.LLMTemperature != 0.1 {
		t.Errorf("LLMTemperature = %v, want 0.1", cfg.LLMTemperature)
	}
}

func TestLoad_MissingYAMLFile(t *testing.T) {
	isolateEnv(t)
	setEnv("QUAKEQA_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "CHUNK_OVERLAP", Message: "must be in [0, 100), got 100"}
	want := "invalid configuration CHUNK_OVERLAP: must be in [0, 100), got 100"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
