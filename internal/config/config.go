package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// Config holds the fundmatch API configuration.
type Config struct {
	HTTP      HTTPConfig            `yaml:"http"`
	Database  DatabaseConfig        `yaml:"database"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Narrative NarrativeConfig       `yaml:"narrative"`
	Matching  MatchingConfig        `yaml:"matching"`
	Feedback  FeedbackConfig        `yaml:"feedback"`
	Taxonomy  []domain.TaxonomyNode `yaml:"taxonomy"`
	Auth      AuthConfig            `yaml:"auth"`
	Logging   LoggingConfig         `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig maps API keys to the tenant they act for.
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the embedding-cache and feedback journal store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, memory (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the embedding provider, cache and breaker settings.
type EmbeddingConfig struct {
	Provider        string        `yaml:"provider"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Dimensions      int           `yaml:"dimensions"`
	TimeoutSec      int           `yaml:"timeout_sec"`
	CacheTTLHours   int           `yaml:"cache_ttl_hours"` // 0 = keep forever
	Calibration     string        `yaml:"calibration"`     // linear | sigmoid
	SigmoidK        float64       `yaml:"sigmoid_k"`
	SigmoidMidpoint float64       `yaml:"sigmoid_midpoint"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Threshold  int `yaml:"threshold"`
	WindowSec  int `yaml:"window_sec"`
	OpenForSec int `yaml:"open_for_sec"`
}

// NarrativeConfig holds the explanation generator settings.
type NarrativeConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float32 `yaml:"temperature"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	StaleAfterDays int     `yaml:"stale_after_days"`
	CacheTTLDays   int     `yaml:"cache_ttl_days"`
}

// MatchingConfig holds orchestrator, filter and scoring settings.
type MatchingConfig struct {
	Weights             map[string]float64 `yaml:"weights"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	JobTimeoutSec       int                `yaml:"job_timeout_sec"`
	FilterTimeoutMs     int                `yaml:"filter_timeout_ms"`
	BatchSize           int                `yaml:"batch_size"`
	MaxInFlightBatches  int                `yaml:"max_in_flight_batches"`
	WorkerPoolSize      int                `yaml:"worker_pool_size"`
	ResultTTLMin        int                `yaml:"result_ttl_min"`
	JobRetentionMin     int                `yaml:"job_retention_min"`
	RatePerSecond       float64            `yaml:"rate_per_second"`
	RateBurst           int                `yaml:"rate_burst"`
	ReverseTimeoutSec   int                `yaml:"reverse_timeout_sec"`
	ReverseRetrySec     int                `yaml:"reverse_retry_sec"`
}

// FeedbackConfig holds aggregation settings.
type FeedbackConfig struct {
	MinTenants int `yaml:"min_tenants"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Embedding.Calibration == "" {
		c.Embedding.Calibration = "linear"
	}
	if c.Narrative.Model == "" {
		c.Narrative.Model = "gpt-4o-mini"
	}
	if c.Narrative.TimeoutSec <= 0 {
		c.Narrative.TimeoutSec = 20
	}
	if c.Narrative.StaleAfterDays <= 0 {
		c.Narrative.StaleAfterDays = 7
	}
	if c.Narrative.CacheTTLDays <= 0 {
		c.Narrative.CacheTTLDays = 30
	}
	if len(c.Matching.Weights) == 0 {
		c.Matching.Weights = make(map[string]float64, len(domain.Factors))
		for f, v := range domain.DefaultWeights() {
			c.Matching.Weights[string(f)] = v
		}
	}
	if c.Matching.ConfidenceThreshold <= 0 {
		c.Matching.ConfidenceThreshold = domain.DefaultConfidenceThreshold
	}
	if c.Matching.JobTimeoutSec <= 0 {
		c.Matching.JobTimeoutSec = 90
	}
	if c.Matching.BatchSize <= 0 {
		c.Matching.BatchSize = 64
	}
	if c.Matching.MaxInFlightBatches <= 0 {
		c.Matching.MaxInFlightBatches = 4
	}
	if c.Matching.WorkerPoolSize <= 0 {
		c.Matching.WorkerPoolSize = 2 * runtime.NumCPU()
	}
	if c.Matching.ResultTTLMin <= 0 {
		c.Matching.ResultTTLMin = 60
	}
	if c.Matching.JobRetentionMin <= 0 {
		c.Matching.JobRetentionMin = 60
	}
	if c.Matching.RatePerSecond <= 0 {
		c.Matching.RatePerSecond = 1
	}
	if c.Matching.RateBurst <= 0 {
		c.Matching.RateBurst = 10
	}
	if c.Matching.ReverseTimeoutSec <= 0 {
		c.Matching.ReverseTimeoutSec = 120
	}
	if c.Matching.ReverseRetrySec <= 0 {
		c.Matching.ReverseRetrySec = 60
	}
	if c.Feedback.MinTenants <= 0 {
		c.Feedback.MinTenants = 5
	}
	if len(c.Taxonomy) == 0 {
		c.Taxonomy = domain.DefaultTaxonomyNodes()
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "valkey", "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be valkey, redis or memory, got %q", c.Database.Driver)
	}
	switch c.Embedding.Calibration {
	case "linear", "sigmoid":
	default:
		return fmt.Errorf("embedding.calibration must be \"linear\" or \"sigmoid\", got %q", c.Embedding.Calibration)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if _, err := c.Weights(); err != nil {
		return fmt.Errorf("matching.weights: %w", err)
	}
	if c.Matching.ConfidenceThreshold > 1 {
		return fmt.Errorf("matching.confidence_threshold must be in (0,1], got %v", c.Matching.ConfidenceThreshold)
	}
	if _, err := domain.NewTaxonomy(c.Taxonomy); err != nil {
		return fmt.Errorf("taxonomy: %w", err)
	}
	for key, tenant := range c.Auth.APIKeys {
		if key != "" && tenant == "" {
			return fmt.Errorf("auth.api_keys: key %q has no tenant", redact(key))
		}
	}
	return nil
}

// Weights converts the configured weight map to domain weights and validates it.
func (c *Config) Weights() (domain.Weights, error) {
	w := make(domain.Weights, len(c.Matching.Weights))
	for name, v := range c.Matching.Weights {
		w[domain.Factor(name)] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func redact(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
