package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the netscout API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Usage     UsageConfig     `yaml:"usage"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
// JWTSecret verifies user tokens; APIKeys admit trusted services that pass X-User-ID.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PostgresConfig holds the profile store connection settings.
type PostgresConfig struct {
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	Provider    string       `yaml:"provider"`
	APIKey      string       `yaml:"api_key"`
	BaseURL     string       `yaml:"base_url"`
	Model       string       `yaml:"model"`
	Temperature float64      `yaml:"temperature"`
	MaxAttempts int          `yaml:"max_attempts"`
	TimeoutSec  int          `yaml:"timeout_sec"`
	Budget      BudgetConfig `yaml:"budget"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string       `yaml:"provider"`
	APIKey           string       `yaml:"api_key"`
	BaseURL          string       `yaml:"base_url"`
	Model            string       `yaml:"model"`
	Dimensions       int          `yaml:"dimensions"`
	QueryInstruction string       `yaml:"query_instruction"`
	TimeoutSec       int          `yaml:"timeout_sec"`
	CacheTTLHours    int          `yaml:"cache_ttl_hours"`
	Budget           BudgetConfig `yaml:"budget"`
}

// WeightsConfig maps verdicts to aggregate weights. All zero means defaults.
type WeightsConfig struct {
	Yes    float64 `yaml:"yes"`
	KindOf float64 `yaml:"kind_of"`
	No     float64 `yaml:"no"`
}

// SearchConfig holds pipeline policy.
type SearchConfig struct {
	MaxQueryLength      int           `yaml:"max_query_length"`
	ResultLimit         int           `yaml:"result_limit"`
	MaxTraits           int           `yaml:"max_traits"`
	MaxClauses          int           `yaml:"max_clauses"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	VectorBackend       string        `yaml:"vector_backend"` // postgres | redis
	HyDE                bool          `yaml:"hyde"`
	TimeoutSec          int           `yaml:"timeout_sec"`
	StoreTimeoutSec     int           `yaml:"store_timeout_sec"`
	ScoringBatchSize    int           `yaml:"scoring_batch_size"`
	ScoringConcurrency  int           `yaml:"scoring_concurrency"`
	ScoringTimeoutSec   int           `yaml:"scoring_timeout_sec"`
	PlanCacheTTLHours   int           `yaml:"plan_cache_ttl_hours"`
	Weights             WeightsConfig `yaml:"weights"`
}

// UsageConfig holds per-user quota settings.
type UsageConfig struct {
	DailySearchLimit int `yaml:"daily_search_limit"` // 0 = unlimited
}

// StorageConfig holds Redis key layout settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.MaxOpenConns <= 0 {
		c.Postgres.MaxOpenConns = 20
	}
	if c.Postgres.MaxIdleConns <= 0 {
		c.Postgres.MaxIdleConns = 5
	}
	if c.Postgres.ConnMaxLifetimeSec <= 0 {
		c.Postgres.ConnMaxLifetimeSec = 300
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	c.applyProviderDefaults()
	c.applySearchDefaults()
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "netscout:"
	}
}

func (c *Config) applyProviderDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = 3
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}
}

func (c *Config) applySearchDefaults() {
	s := &c.Search
	if s.MaxQueryLength <= 0 {
		s.MaxQueryLength = 500
	}
	if s.ResultLimit <= 0 {
		s.ResultLimit = 100
	}
	if s.MaxTraits <= 0 {
		s.MaxTraits = 8
	}
	if s.MaxClauses <= 0 {
		s.MaxClauses = 64
	}
	if s.SimilarityThreshold <= 0 {
		s.SimilarityThreshold = 0.6
	}
	if s.VectorBackend == "" {
		s.VectorBackend = "postgres"
	}
	if s.TimeoutSec <= 0 {
		s.TimeoutSec = 90
	}
	if s.StoreTimeoutSec <= 0 {
		s.StoreTimeoutSec = 10
	}
	if s.ScoringBatchSize <= 0 {
		s.ScoringBatchSize = 5
	}
	if s.ScoringConcurrency <= 0 {
		s.ScoringConcurrency = 4
	}
	if s.ScoringTimeoutSec <= 0 {
		s.ScoringTimeoutSec = 45
	}
	if s.PlanCacheTTLHours <= 0 {
		s.PlanCacheTTLHours = 24
	}
	if s.Weights == (WeightsConfig{}) {
		s.Weights = WeightsConfig{Yes: 1, KindOf: 0.5, No: 0}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	for name, b := range map[string]BudgetConfig{"llm": c.LLM.Budget, "embedding": c.Embedding.Budget} {
		switch b.Action {
		case "", "warn", "reject":
		default:
			return fmt.Errorf("%s.budget.action must be \"warn\" or \"reject\", got %q", name, b.Action)
		}
	}
	return c.Search.validate()
}

func (s *SearchConfig) validate() error {
	switch s.VectorBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("search.vector_backend must be \"postgres\" or \"redis\", got %q", s.VectorBackend)
	}
	if s.ResultLimit > 100 {
		return fmt.Errorf("search.result_limit must not exceed 100, got %d", s.ResultLimit)
	}
	if s.SimilarityThreshold > 1 {
		return fmt.Errorf("search.similarity_threshold must be in [0,1], got %g", s.SimilarityThreshold)
	}
	if s.Weights.Yes < s.Weights.KindOf || s.Weights.KindOf < s.Weights.No {
		return fmt.Errorf("search.weights must satisfy yes >= kind_of >= no")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
