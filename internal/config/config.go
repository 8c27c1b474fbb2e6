package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider and store identifiers accepted by the configuration.
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	StoreMemory = "memory"
	StoreQdrant = "qdrant"
)

// MaxRetrievalK is the largest number of segments one query may retrieve.
const MaxRetrievalK = 20

// DefaultNotFoundSentinel is the fixed reply used when the dataset has no answer.
const DefaultNotFoundSentinel = "This information is not present in the dataset."

// Config holds all configuration for the application.
type Config struct {
	// Dataset
	DatasetPath      string
	DatasetDelimiter rune // 0 means auto-detect

	// Chunking and retrieval
	ChunkSize        int
	ChunkOverlap     int
	RetrievalK       int
	MinSimilarity    float32
	NotFoundSentinel string

	// Generation
	LLMProvider       string
	LLMBaseURL        string
	LLMModelName      string
	LLMAPIKey         string
	LLMTemperature    float32
	LLMMaxTokens      int
	GenerationTimeout time.Duration

	// Embeddings
	EmbeddingProvider  string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingDimension int // 0 accepts whatever size the provider returns
	EmbedBatchSize     int

	// Index persistence
	VectorStore     string
	IndexPath       string
	IndexCollection string
	QdrantURL       string

	DBPath  string
	APIPort string

	LogLevel  slog.Level
	LogFormat string
	LogFile   string
}

// ConfigError reports an invalid configuration value. It is fatal at startup.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// Load reads configuration from environment variables and returns a Config struct.
// A .env file in the current directory or one of its parents is loaded first, then the
// optional YAML file named by QUAKEQA_CONFIG. Variables already set in the environment
// take precedence over both files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if path := os.Getenv("QUAKEQA_CONFIG"); path != "" {
		if err := loadFile(path); err != nil {
			return nil, err
		}
	}

	llmAPIKey := getEnv("LLM_API_KEY", "dummy-key")

	cfg := &Config{
		DatasetPath:        getEnv("DATASET_PATH", "./data/earthquakes.csv"),
		NotFoundSentinel:   getEnv("NOT_FOUND_SENTINEL", DefaultNotFoundSentinel),
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", ProviderHTTP)),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          llmAPIKey,
		EmbeddingProvider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderHTTP)),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", llmAPIKey),
		VectorStore:        strings.ToLower(getEnv("VECTOR_STORE", StoreMemory)),
		IndexPath:          getEnv("INDEX_PATH", "./data/index"),
		IndexCollection:    getEnv("INDEX_COLLECTION", "earthquakes"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		DBPath:             getEnv("DB_PATH", "./data/quakeqa.db"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:            getEnv("LOG_FILE", "./data/quakeqa.log"),
	}

	if cfg.DatasetDelimiter, err = parseDelimiter(getEnv("DATASET_DELIMITER", "auto")); err != nil {
		return nil, err
	}
	if cfg.ChunkSize, err = getInt("CHUNK_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getInt("CHUNK_OVERLAP", 200); err != nil {
		return nil, err
	}
	if cfg.RetrievalK, err = getInt("RETRIEVAL_K", 3); err != nil {
		return nil, err
	}
	if cfg.MinSimilarity, err = getFloat32("MIN_SIMILARITY", 0); err != nil {
		return nil, err
	}
	if cfg.LLMTemperature, err = getFloat32("LLM_TEMPERATURE", 0.2); err != nil {
		return nil, err
	}
	if cfg.LLMMaxTokens, err = getInt("LLM_MAX_TOKENS", 0); err != nil {
		return nil, err
	}
	if cfg.GenerationTimeout, err = getDuration("GENERATION_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize, err = getInt("EMBED_BATCH_SIZE", 64); err != nil {
		return nil, err
	}
	defaultDimension := 0
	if cfg.EmbeddingProvider == ProviderHash {
		defaultDimension = 384
	}
	if cfg.EmbeddingDimension, err = getInt("EMBEDDING_DIMENSION", defaultDimension); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dirs := []string{filepath.Dir(cfg.DBPath), filepath.Dir(cfg.LogFile)}
	if cfg.VectorStore == StoreMemory {
		dirs = append(dirs, cfg.IndexPath)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks chunking, retrieval and provider settings.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return &ConfigError{Field: "CHUNK_SIZE", Message: "must be greater than 0"}
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Field: "CHUNK_OVERLAP", Message: fmt.Sprintf("must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)}
	}
	if c.RetrievalK <= 0 || c.RetrievalK > MaxRetrievalK {
		return &ConfigError{Field: "RETRIEVAL_K", Message: fmt.Sprintf("must be in [1, %d], got %d", MaxRetrievalK, c.RetrievalK)}
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return &ConfigError{Field: "LLM_TEMPERATURE", Message: "must be between 0 and 2"}
	}
	if c.LLMMaxTokens < 0 {
		return &ConfigError{Field: "LLM_MAX_TOKENS", Message: "must not be negative"}
	}
	if c.GenerationTimeout < 0 {
		return &ConfigError{Field: "GENERATION_TIMEOUT", Message: "must not be negative"}
	}
	if c.EmbedBatchSize <= 0 {
		return &ConfigError{Field: "EMBED_BATCH_SIZE", Message: "must be greater than 0"}
	}
	if c.EmbeddingDimension < 0 {
		return &ConfigError{Field: "EMBEDDING_DIMENSION", Message: "must not be negative"}
	}
	if strings.TrimSpace(c.NotFoundSentinel) == "" {
		return &ConfigError{Field: "NOT_FOUND_SENTINEL", Message: "must not be empty"}
	}
	if c.DatasetPath == "" {
		return &ConfigError{Field: "DATASET_PATH", Message: "is required"}
	}

	switch c.LLMProvider {
	case ProviderHTTP, ProviderOpenAI:
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Message: fmt.Sprintf("unknown provider %q", c.LLMProvider)}
	}
	switch c.EmbeddingProvider {
	case ProviderHTTP, ProviderOpenAI:
	case ProviderHash:
		if c.EmbeddingDimension == 0 {
			return &ConfigError{Field: "EMBEDDING_DIMENSION", Message: "is required for the hash embedder"}
		}
	default:
		return &ConfigError{Field: "EMBEDDING_PROVIDER", Message: fmt.Sprintf("unknown provider %q", c.EmbeddingProvider)}
	}
	switch c.VectorStore {
	case StoreMemory, StoreQdrant:
	default:
		return &ConfigError{Field: "VECTOR_STORE", Message: fmt.Sprintf("unknown store %q", c.VectorStore)}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &ConfigError{Field: "LOG_FORMAT", Message: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}

	return nil
}

// loadFile applies a flat YAML file of lowercase variable names (chunk_size: 800)
// to the environment without overriding variables that are already set.
func loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for key, value := range values {
		if value == nil {
			continue
		}
		envKey := strings.ToUpper(key)
		if _, set := os.LookupEnv(envKey); set {
			continue
		}
		if err := os.Setenv(envKey, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("failed to apply config value %s: %w", envKey, err)
		}
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be a valid integer, got %q", raw)}
	}
	return v, nil
}

func getFloat32(key string, defaultValue float32) (float32, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be a number, got %q", raw)}
	}
	return float32(v), nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: fmt.Sprintf("must be a duration like 30s, got %q", raw)}
	}
	return d, nil
}

func parseDelimiter(raw string) (rune, error) {
	switch strings.ToLower(raw) {
	case "", "auto":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "\\t", "tab":
		return '\t', nil
	}
	return 0, &ConfigError{Field: "DATASET_DELIMITER", Message: fmt.Sprintf("unsupported delimiter %q", raw)}
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, &ConfigError{Field: "LOG_LEVEL", Message: fmt.Sprintf("unknown level %q", raw)}
	}
	return level, nil
}
