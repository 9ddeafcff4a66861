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

// Config holds the clinevid service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Cache      CacheConfig      `yaml:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// CorpusConfig holds the vector corpus connection settings.
type CorpusConfig struct {
	Addr            string `yaml:"addr"` // qdrant gRPC address
	PaperCollection string `yaml:"paper_collection"`
	FactCollection  string `yaml:"fact_collection"`
	ScrollPageSize  int    `yaml:"scroll_page_size"`
}

// CacheConfig holds the query-embedding cache settings. Disabled when no
// addresses are configured.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// EmbeddingConfig holds the embedding service settings.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	QueryPrefix string `yaml:"query_prefix"` // asymmetric-model query instruction
}

// LLMConfig holds the inference endpoint settings (OpenAI-compatible).
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// KeywordTier is one importance tier of the reranking vocabulary.
type KeywordTier struct {
	Bonus float64  `yaml:"bonus"`
	Terms []string `yaml:"terms"`
}

// RetrievalConfig holds ranking and synthesis parameters.
type RetrievalConfig struct {
	Stage1PoolSize   int     `yaml:"stage1_pool_size"`
	TopPapers        int     `yaml:"top_papers"`
	TopFacts         int     `yaml:"top_facts"`
	BonusCeiling     float64 `yaml:"bonus_ceiling"`
	MapConcurrency   int     `yaml:"map_concurrency"`
	QueryDeadlineSec int     `yaml:"query_deadline_sec"`

	// Keyword vocabulary. Empty tiers fall back to the built-in clinical
	// vocabulary; the tiering mechanism itself is fixed.
	HighTier   KeywordTier `yaml:"high_tier"`
	MediumTier KeywordTier `yaml:"medium_tier"`
	LowTier    KeywordTier `yaml:"low_tier"`
}

// ResilienceConfig holds cold-start handling parameters.
type ResilienceConfig struct {
	ProbeTimeoutSec int   `yaml:"probe_timeout_sec"`
	RetryDelaysSec  []int `yaml:"retry_delays_sec"`
	AttemptTimeout  int   `yaml:"attempt_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
		// SSE responses stay open across cold starts.
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Corpus.PaperCollection == "" {
		c.Corpus.PaperCollection = "medical_papers"
	}
	if c.Corpus.FactCollection == "" {
		c.Corpus.FactCollection = "atomic_facts"
	}
	if c.Corpus.ScrollPageSize <= 0 {
		c.Corpus.ScrollPageSize = 1000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 24 * 60 * 60
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.QueryPrefix == "" {
		c.Embedding.QueryPrefix = "query: "
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "tgi"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.1
	}
	if c.Retrieval.Stage1PoolSize <= 0 {
		c.Retrieval.Stage1PoolSize = 30
	}
	if c.Retrieval.TopPapers <= 0 {
		c.Retrieval.TopPapers = 3
	}
	if c.Retrieval.TopFacts <= 0 {
		c.Retrieval.TopFacts = 10
	}
	if c.Retrieval.BonusCeiling <= 0 {
		c.Retrieval.BonusCeiling = 0.15
	}
	if c.Retrieval.MapConcurrency <= 0 {
		c.Retrieval.MapConcurrency = 3
	}
	if c.Retrieval.QueryDeadlineSec <= 0 {
		c.Retrieval.QueryDeadlineSec = 300
	}
	if c.Retrieval.HighTier.Bonus <= 0 {
		c.Retrieval.HighTier.Bonus = 0.05
	}
	if c.Retrieval.MediumTier.Bonus <= 0 {
		c.Retrieval.MediumTier.Bonus = 0.03
	}
	if c.Retrieval.LowTier.Bonus <= 0 {
		c.Retrieval.LowTier.Bonus = 0.01
	}
	if c.Resilience.ProbeTimeoutSec <= 0 {
		c.Resilience.ProbeTimeoutSec = 10
	}
	if len(c.Resilience.RetryDelaysSec) == 0 {
		c.Resilience.RetryDelaysSec = []int{10, 20, 40, 80, 160}
	}
	if c.Resilience.AttemptTimeout <= 0 {
		c.Resilience.AttemptTimeout = 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Corpus.Addr == "" {
		return fmt.Errorf("corpus.addr is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if c.Retrieval.TopPapers > c.Retrieval.Stage1PoolSize {
		return fmt.Errorf(
			"retrieval.top_papers (%d) must not exceed retrieval.stage1_pool_size (%d)",
			c.Retrieval.TopPapers, c.Retrieval.Stage1PoolSize,
		)
	}
	for i, d := range c.Resilience.RetryDelaysSec {
		if d <= 0 {
			return fmt.Errorf("resilience.retry_delays_sec[%d] must be positive, got %d", i, d)
		}
	}
	return nil
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
