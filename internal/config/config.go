package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Store     StoreConfig     `mapstructure:"store"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Mapping   MappingConfig   `mapstructure:"mapping"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Server    ServerConfig    `mapstructure:"server"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Log       LogConfig       `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	EmbedModel  string  `mapstructure:"embed_model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	APIVersion  string  `mapstructure:"api_version"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process, which the tests use.
	Path string `mapstructure:"path"`
}

type VectorConfig struct {
	// Backend selects the index implementation: "memory" or "qdrant".
	Backend    string `mapstructure:"backend"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	// SnapshotPath persists the in-memory index between runs. Empty
	// disables snapshots.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

type GraphConfig struct {
	// Enabled switches mapping persistence from file to Neo4j.
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type MappingConfig struct {
	// AssetsPath is the JSON file holding the component map, plan, and
	// rules. Ignored when the graph backend is enabled.
	AssetsPath string `mapstructure:"assets_path"`
	// SourceRepo and TargetRepo name the libraries under migration.
	SourceRepo string `mapstructure:"source_repo"`
	TargetRepo string `mapstructure:"target_repo"`
}

type RetrievalConfig struct {
	TopK        int `mapstructure:"top_k"`
	TokenBudget int `mapstructure:"token_budget"`
}

type WorkflowConfig struct {
	MaxGenerationRetries int   `mapstructure:"max_generation_retries"`
	MaxRefinements       int   `mapstructure:"max_refinements"`
	MaxConcurrent        int64 `mapstructure:"max_concurrent"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// APIKey authenticates against Temporal Cloud. Empty for a local server.
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}
	if c.Vector.Backend == "qdrant" && c.Vector.Host == "" {
		warnings = append(warnings, "vector backend 'qdrant' is configured but host is empty")
	}
	if c.Graph.Enabled && c.Graph.URI == "" {
		warnings = append(warnings, "graph backend is enabled but uri is empty")
	}
	if c.Retrieval.TokenBudget < 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval token_budget %d is negative", c.Retrieval.TokenBudget))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.embed_model", "text-embedding-3-large")
	v.SetDefault("store.path", "loom.db")
	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.collection", "loom_context")
	v.SetDefault("mapping.assets_path", "mapping_assets.json")
	v.SetDefault("mapping.source_repo", "modus-v1")
	v.SetDefault("mapping.target_repo", "modus-v2")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.token_budget", 4000)
	v.SetDefault("workflow.max_generation_retries", 3)
	v.SetDefault("workflow.max_refinements", 3)
	v.SetDefault("workflow.max_concurrent", 4)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "loom-migrations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from file and environment. An empty path skips
// the file and uses defaults plus LOOM_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
