package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Correct   CorrectConfig   `yaml:"correct" mapstructure:"correct"`
	Truth     TruthConfig     `yaml:"truth" mapstructure:"truth"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds model API credentials and extraction settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	RateLimit int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CorrectConfig configures key reconciliation.
type CorrectConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	AmbiguityMargin     float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
}

// TruthConfig configures ground truth loading.
type TruthConfig struct {
	Path      string   `yaml:"path" mapstructure:"path"`
	Sheet     string   `yaml:"sheet" mapstructure:"sheet"`
	IDColumns []string `yaml:"id_columns" mapstructure:"id_columns"`
}

// BatchConfig configures concurrent batch processing.
type BatchConfig struct {
	MaxConcurrentReports int `yaml:"max_concurrent_reports" mapstructure:"max_concurrent_reports"`
}

// OutputConfig configures where result artifacts are written.
type OutputConfig struct {
	AccuracyDir string `yaml:"accuracy_dir" mapstructure:"accuracy_dir"`
	JSONDir     string `yaml:"json_dir" mapstructure:"json_dir"`
	ExcelDir    string `yaml:"excel_dir" mapstructure:"excel_dir"`
	AnalysisDir string `yaml:"analysis_dir" mapstructure:"analysis_dir"`
	TimingLog   string `yaml:"timing_log" mapstructure:"timing_log"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REPORTEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reporteval.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_reports", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.rate_limit", 5)
	v.SetDefault("correct.similarity_threshold", 0.8)
	v.SetDefault("correct.ambiguity_margin", 0.05)
	v.SetDefault("truth.id_columns", []string{"Report ID", "Report"})
	v.SetDefault("output.accuracy_dir", "results/accuracy_reports")
	v.SetDefault("output.json_dir", "results/extracted_data/json")
	v.SetDefault("output.excel_dir", "results/extracted_data/excel")
	v.SetDefault("output.analysis_dir", "results/overall_analysis")
	v.SetDefault("output.timing_log", "llm_timing_log.csv")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given subcommand
// is present. Returns an error listing every missing setting.
func (c *Config) Validate(command string) error {
	var missing []string

	switch command {
	case "extract", "batch":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			missing = append(missing, "anthropic.model is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		missing = append(missing, "store.driver must be sqlite or postgres")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
