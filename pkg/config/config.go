package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/logging"
	"github.com/tunogya/runqa/pkg/pipeline"
	"github.com/tunogya/runqa/pkg/window"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete runqa configuration
type Config struct {
	Inputs   InputsConfig   `mapstructure:"inputs"`
	Output   OutputConfig   `mapstructure:"output"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Log      logging.Config `mapstructure:"log"`
	DuckDB   DuckDBConfig   `mapstructure:"duckdb"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Milvus   MilvusConfig   `mapstructure:"milvus"`
}

// InputsConfig locates the input files
type InputsConfig struct {
	MetricsConf     string `mapstructure:"metrics_conf"`
	DataDir         string `mapstructure:"data_dir"`
	PerRunPattern   string `mapstructure:"per_run_pattern"`
	SegmentsPattern string `mapstructure:"segments_pattern"` // when set, per-run values are folded from segment files
	Thresholds      string `mapstructure:"thresholds"`       // optional
	RunContext      string `mapstructure:"run_context"`      // optional
	Rules           string `mapstructure:"rules"`            // optional; built-in table when empty
}

// OutputConfig controls what is written after a pass
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`
	HTML     bool   `mapstructure:"html"`
	Textfile string `mapstructure:"textfile"` // Prometheus textfile; disabled when empty
}

// AnalysisConfig holds the tunable analysis parameters
type AnalysisConfig struct {
	Convention string  `mapstructure:"convention"` // local_z or pipeline_doc
	HalfWidth  int     `mapstructure:"half_width"`
	TolZ       float64 `mapstructure:"tol_z"`
	ControlZ   float64 `mapstructure:"control_z"`
	CusumK     float64 `mapstructure:"cusum_k"`
	CusumH     float64 `mapstructure:"cusum_h"`
	EWMALambda float64 `mapstructure:"ewma_lambda"`
	Workers    int     `mapstructure:"workers"`
}

// DuckDBConfig controls result persistence
type DuckDBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NATSConfig controls verdict publishing
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Stream        string        `mapstructure:"stream"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// MilvusConfig controls fingerprint indexing
type MilvusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Collection string `mapstructure:"collection"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg, err := load(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path, or runqa.yaml from the usual locations
// when path is empty, and applies RUNQA_* environment overrides.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runqa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.runqa")
	}

	setDefaults(v)
	v.SetEnvPrefix("RUNQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := pipeline.DefaultConfig()
	logDef := logging.DefaultConfig()

	v.SetDefault("inputs.metrics_conf", "metrics.conf")
	v.SetDefault("inputs.data_dir", ".")
	v.SetDefault("inputs.per_run_pattern", data.DefaultPerRunPattern)
	v.SetDefault("inputs.segments_pattern", "")
	v.SetDefault("inputs.thresholds", "")
	v.SetDefault("inputs.run_context", "")
	v.SetDefault("inputs.rules", "")

	v.SetDefault("output.dir", "qa_out")
	v.SetDefault("output.html", true)
	v.SetDefault("output.textfile", "")

	v.SetDefault("analysis.convention", window.LocalZThresholds.Name)
	v.SetDefault("analysis.half_width", def.Window.HalfWidth)
	v.SetDefault("analysis.tol_z", def.QC.TolZ)
	v.SetDefault("analysis.control_z", def.Control.ZThreshold)
	v.SetDefault("analysis.cusum_k", def.Control.K)
	v.SetDefault("analysis.cusum_h", def.Control.H)
	v.SetDefault("analysis.ewma_lambda", def.EWMALambda)
	v.SetDefault("analysis.workers", 0)

	v.SetDefault("log.level", logDef.Level)
	v.SetDefault("log.format", logDef.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", logDef.MaxSize)
	v.SetDefault("log.max_backups", logDef.MaxBackups)
	v.SetDefault("log.max_age", logDef.MaxAge)
	v.SetDefault("log.compress", logDef.Compress)

	v.SetDefault("duckdb.enabled", false)
	v.SetDefault("duckdb.path", "runqa.duckdb")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", "runqa")
	v.SetDefault("nats.retry_attempts", 3)
	v.SetDefault("nats.retry_delay", time.Second)

	v.SetDefault("milvus.enabled", false)
	v.SetDefault("milvus.address", "localhost:19530")
	v.SetDefault("milvus.username", "")
	v.SetDefault("milvus.password", "")
	v.SetDefault("milvus.collection", "run_fingerprints")
}

// Validate checks the configuration for values the analysis cannot run with
func (c *Config) Validate() error {
	if c.Inputs.MetricsConf == "" {
		return fmt.Errorf("%w: inputs.metrics_conf is required", ErrInvalidConfig)
	}
	if _, ok := window.ConventionByName(c.Analysis.Convention); !ok {
		return fmt.Errorf("%w: unknown threshold convention %q", ErrInvalidConfig, c.Analysis.Convention)
	}
	if c.Analysis.HalfWidth < 1 {
		return fmt.Errorf("%w: analysis.half_width must be positive", ErrInvalidConfig)
	}
	if c.Analysis.TolZ <= 0 || c.Analysis.ControlZ <= 0 {
		return fmt.Errorf("%w: analysis.tol_z and analysis.control_z must be positive", ErrInvalidConfig)
	}
	if c.Analysis.CusumK < 0 || c.Analysis.CusumH <= 0 {
		return fmt.Errorf("%w: cusum parameters out of range", ErrInvalidConfig)
	}
	if c.Analysis.EWMALambda <= 0 || c.Analysis.EWMALambda > 1 {
		return fmt.Errorf("%w: analysis.ewma_lambda must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("%w: analysis.workers must not be negative", ErrInvalidConfig)
	}
	if c.DuckDB.Enabled && c.DuckDB.Path == "" {
		return fmt.Errorf("%w: duckdb.path is required when duckdb is enabled", ErrInvalidConfig)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required when nats is enabled", ErrInvalidConfig)
	}
	if c.Milvus.Enabled && c.Milvus.Address == "" {
		return fmt.Errorf("%w: milvus.address is required when milvus is enabled", ErrInvalidConfig)
	}
	return nil
}

// Pipeline converts the analysis section into a pipeline configuration
func (c *Config) Pipeline() pipeline.Config {
	p := pipeline.DefaultConfig()
	if conv, ok := window.ConventionByName(c.Analysis.Convention); ok {
		p.Window.Thresholds = conv
	}
	p.Window.HalfWidth = c.Analysis.HalfWidth
	p.QC.TolZ = c.Analysis.TolZ
	p.Control.ZThreshold = c.Analysis.ControlZ
	p.Control.K = c.Analysis.CusumK
	p.Control.H = c.Analysis.CusumH
	p.EWMALambda = c.Analysis.EWMALambda
	p.Workers = c.Analysis.Workers
	return p
}
