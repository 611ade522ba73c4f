package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crimemap-cli/internal/dataset"
	"github.com/sells-group/crimemap-cli/internal/period"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Cluster  ClusterConfig  `yaml:"cluster" mapstructure:"cluster"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DatasetConfig describes the source spreadsheet.
type DatasetConfig struct {
	SheetIndex int             `yaml:"sheet_index" mapstructure:"sheet_index"`
	SheetName  string          `yaml:"sheet_name" mapstructure:"sheet_name"`
	SkipRows   int             `yaml:"skip_rows" mapstructure:"skip_rows"`
	Encoding   string          `yaml:"encoding" mapstructure:"encoding"`
	Delimiter  string          `yaml:"delimiter" mapstructure:"delimiter"`
	Columns    dataset.Columns `yaml:"columns" mapstructure:"columns"`
}

// FetchConfig configures downloads of remote spreadsheets.
type FetchConfig struct {
	UserAgent         string      `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64     `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Retry             RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// PipelineConfig configures the cleaning stages.
type PipelineConfig struct {
	TagPolicy             string `yaml:"tag_policy" mapstructure:"tag_policy"`
	RestrictedPlaceholder string `yaml:"restricted_placeholder" mapstructure:"restricted_placeholder"`
	SpatialWorkers        int    `yaml:"spatial_workers" mapstructure:"spatial_workers"`
}

// GeocodeConfig configures the remote coordinate imputer.
type GeocodeConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	City         string        `yaml:"city" mapstructure:"city"`
	State        string        `yaml:"state" mapstructure:"state"`
	Country      string        `yaml:"country" mapstructure:"country"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	NominatimURL string        `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	GoogleAPIKey string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	MinDelayMs   int           `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	TimeoutSecs  int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Cache        bool          `yaml:"cache" mapstructure:"cache"`
	Retry        RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit      CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig mirrors resilience.RetryConfig in config units.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig mirrors resilience.CircuitBreakerConfig in config units.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ClusterConfig points at a trained centroid model.
type ClusterConfig struct {
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`
}

// ExportConfig configures map layer egress. Rows whose ExcludeColumn holds
// one of ExcludeValues are never exported.
type ExportConfig struct {
	ExcludeColumn string   `yaml:"exclude_column" mapstructure:"exclude_column"`
	ExcludeValues []string `yaml:"exclude_values" mapstructure:"exclude_values"`
}

// ServerConfig configures the read-only map API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CorsOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. A named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("CRIMEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	cols := dataset.DefaultColumns()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("dataset.sheet_index", 0)
	v.SetDefault("dataset.encoding", "utf-8")
	v.SetDefault("dataset.columns.category", cols.Category)
	v.SetDefault("dataset.columns.period", cols.Period)
	v.SetDefault("dataset.columns.time", cols.Time)
	v.SetDefault("dataset.columns.date", cols.Date)
	v.SetDefault("dataset.columns.street", cols.Street)
	v.SetDefault("dataset.columns.number", cols.Number)
	v.SetDefault("dataset.columns.latitude", cols.Latitude)
	v.SetDefault("dataset.columns.longitude", cols.Longitude)
	v.SetDefault("fetch.user_agent", "crimemap-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.requests_per_second", 5)
	v.SetDefault("fetch.retry.max_attempts", 3)
	v.SetDefault("fetch.retry.initial_backoff_ms", 500)
	v.SetDefault("fetch.retry.max_backoff_ms", 30000)
	v.SetDefault("fetch.retry.multiplier", 2.0)
	v.SetDefault("fetch.retry.jitter_fraction", 0.25)
	v.SetDefault("pipeline.tag_policy", string(period.TagPolicyStrict))
	v.SetDefault("pipeline.restricted_placeholder", "VEDAÇÃO DA DIVULGAÇÃO DOS DADOS RELATIVOS")
	v.SetDefault("pipeline.spatial_workers", 4)
	v.SetDefault("geocode.enabled", false)
	v.SetDefault("geocode.city", "Itapevi")
	v.SetDefault("geocode.state", "SP")
	v.SetDefault("geocode.country", "Brasil")
	v.SetDefault("geocode.user_agent", "ajuste_latlong")
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.min_delay_ms", 1000)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.cache", true)
	v.SetDefault("geocode.retry.max_attempts", 3)
	v.SetDefault("geocode.retry.initial_backoff_ms", 1000)
	v.SetDefault("geocode.retry.max_backoff_ms", 10000)
	v.SetDefault("geocode.retry.multiplier", 2.0)
	v.SetDefault("geocode.retry.jitter_fraction", 0.25)
	v.SetDefault("geocode.circuit.failure_threshold", 5)
	v.SetDefault("geocode.circuit.reset_timeout_secs", 60)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crimemap.db")
	v.SetDefault("export.exclude_column", "TIPO_CRIME")
	v.SetDefault("export.exclude_values", []string{"Estupro - Art. 213", "Estupro de vulneravel (art.217-A)"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

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

// Validate checks the settings a command depends on. Mode is the command
// name: clean, export, serve or migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := func() {
		switch strings.ToLower(c.Store.Driver) {
		case "sqlite", "postgres", "postgresql", "pgx":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "clean":
		if _, err := period.ParseTagPolicy(c.Pipeline.TagPolicy); err != nil {
			errs = append(errs, err.Error())
		}
		if c.Pipeline.SpatialWorkers < 1 || c.Pipeline.SpatialWorkers > 64 {
			errs = append(errs, fmt.Sprintf("pipeline.spatial_workers must be between 1 and 64, got %d", c.Pipeline.SpatialWorkers))
		}
		if c.Dataset.SheetIndex < 0 {
			errs = append(errs, "dataset.sheet_index must be >= 0")
		}
		if d := c.Dataset.Delimiter; d != "" && len([]rune(d)) != 1 {
			errs = append(errs, fmt.Sprintf("dataset.delimiter must be a single character, got %q", d))
		}
		if c.Geocode.Enabled && c.Geocode.City == "" {
			errs = append(errs, "geocode.city is required when geocode.enabled")
		}
	case "export":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
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
