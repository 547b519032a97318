package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	MLSidecar struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ml_sidecar"`
	Generator ProviderConfig  `mapstructure:"generator"`
	Embedding ProviderConfig  `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       struct {
		Mode string `mapstructure:"mode"`
	} `mapstructure:"log"`
}

// ProviderConfig configures a generative or embedding provider. Provider is
// only meaningful for embeddings ("openai" or "sidecar").
type ProviderConfig struct {
	Provider    string        `mapstructure:"provider"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
}

// RetrievalConfig controls context retrieval.
type RetrievalConfig struct {
	NormalizeK int           `mapstructure:"normalize_k"`
	EvaluateK  int           `mapstructure:"evaluate_k"`
	Searcher   string        `mapstructure:"searcher"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// PipelineConfig controls stage retries and diagnostics.
type PipelineConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	DiagnosticsDir string        `mapstructure:"diagnostics_dir"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	SeedOnRun      bool          `mapstructure:"seed_on_run"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.name", "flowgraph")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("ml_sidecar.url", "")
	v.SetDefault("ml_sidecar.timeout", 30*time.Second)

	v.SetDefault("generator.endpoint", "https://api.openai.com/v1")
	v.SetDefault("generator.model", "gpt-4.1")
	v.SetDefault("generator.timeout", 180*time.Second)
	v.SetDefault("generator.temperature", 0.3)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("retrieval.normalize_k", 20)
	v.SetDefault("retrieval.evaluate_k", 30)
	v.SetDefault("retrieval.searcher", "brute")
	v.SetDefault("retrieval.cache_ttl", 10*time.Minute)

	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.initial_backoff", 2*time.Second)
	v.SetDefault("pipeline.max_backoff", 30*time.Second)
	v.SetDefault("pipeline.diagnostics_dir", "diagnostics")
	v.SetDefault("pipeline.run_timeout", 15*time.Minute)
	v.SetDefault("pipeline.seed_on_run", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 16*time.Minute)

	v.SetDefault("log.mode", "dev")
}

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in . and ./config; a missing file is
// not an error, defaults and environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// provider keys fall back to the conventional OpenAI variable
	_ = v.BindEnv("generator.api_key", "GENERATOR_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Generator.Endpoint = normalizeEndpoint(config.Generator.Endpoint)
	config.Embedding.Endpoint = normalizeEndpoint(config.Embedding.Endpoint)
	config.MLSidecar.URL = normalizeEndpoint(config.MLSidecar.URL)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai":
	case "sidecar":
		if c.MLSidecar.URL == "" {
			return errors.New("embedding.provider is sidecar but ml_sidecar.url is empty")
		}
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	switch c.Retrieval.Searcher {
	case "brute", "pgvector":
	default:
		return fmt.Errorf("unknown retrieval.searcher %q", c.Retrieval.Searcher)
	}
	if c.Retrieval.NormalizeK <= 0 || c.Retrieval.EvaluateK <= 0 {
		return errors.New("retrieval k values must be positive")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be at least 1")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

// normalizeEndpoint trims whitespace and any trailing slash so paths can be
// appended without doubling separators.
func normalizeEndpoint(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
