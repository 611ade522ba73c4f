package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0, cfg.Dataset.SheetIndex)
	assert.Equal(t, "utf-8", cfg.Dataset.Encoding)
	assert.Equal(t, "NATUREZA_APURADA", cfg.Dataset.Columns.Category)
	assert.Equal(t, "DESCR_PERIODO", cfg.Dataset.Columns.Period)
	assert.Equal(t, "HORA_OCORRENCIA_BO", cfg.Dataset.Columns.Time)
	assert.Equal(t, "DATA_OCORRENCIA_BO", cfg.Dataset.Columns.Date)
	assert.Equal(t, "LOGRADOURO", cfg.Dataset.Columns.Street)
	assert.Equal(t, "NUMERO_LOGRADOURO", cfg.Dataset.Columns.Number)
	assert.Equal(t, "LATITUDE", cfg.Dataset.Columns.Latitude)
	assert.Equal(t, "LONGITUDE", cfg.Dataset.Columns.Longitude)
	assert.Equal(t, "strict", cfg.Pipeline.TagPolicy)
	assert.Equal(t, "VEDAÇÃO DA DIVULGAÇÃO DOS DADOS RELATIVOS", cfg.Pipeline.RestrictedPlaceholder)
	assert.Equal(t, 4, cfg.Pipeline.SpatialWorkers)
	assert.False(t, cfg.Geocode.Enabled)
	assert.Equal(t, "Itapevi", cfg.Geocode.City)
	assert.Equal(t, "SP", cfg.Geocode.State)
	assert.Equal(t, "Brasil", cfg.Geocode.Country)
	assert.Equal(t, "ajuste_latlong", cfg.Geocode.UserAgent)
	assert.Equal(t, 1000, cfg.Geocode.MinDelayMs)
	assert.Equal(t, 10, cfg.Geocode.TimeoutSecs)
	assert.True(t, cfg.Geocode.Cache)
	assert.Equal(t, 3, cfg.Geocode.Retry.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Geocode.Retry.Multiplier, 0.001)
	assert.Equal(t, 5, cfg.Geocode.Circuit.FailureThreshold)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "crimemap.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "TIPO_CRIME", cfg.Export.ExcludeColumn)
	assert.Len(t, cfg.Export.ExcludeValues, 2)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CorsOrigins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/crimemap
log:
  level: debug
  format: console
dataset:
  sheet_name: Plan1
  columns:
    street: RUA
pipeline:
  tag_policy: passthrough
geocode:
  enabled: true
  google_api_key: gk
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/crimemap", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "Plan1", cfg.Dataset.SheetName)
	assert.Equal(t, "RUA", cfg.Dataset.Columns.Street)
	assert.Equal(t, "passthrough", cfg.Pipeline.TagPolicy)
	assert.True(t, cfg.Geocode.Enabled)
	assert.Equal(t, "gk", cfg.Geocode.GoogleAPIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "NATUREZA_APURADA", cfg.Dataset.Columns.Category)
	assert.Equal(t, "Itapevi", cfg.Geocode.City)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("CRIMEMAP_STORE_DRIVER", "sqlite")
	t.Setenv("CRIMEMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CRIMEMAP_SERVER_PORT", "3000")
	t.Setenv("CRIMEMAP_GEOCODE_ENABLED", "true")
	t.Setenv("CRIMEMAP_GEOCODE_CITY", "Barueri")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.True(t, cfg.Geocode.Enabled)
	assert.Equal(t, "Barueri", cfg.Geocode.City)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [oops"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFile_ExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "itapevi.yml")
	require.NoError(t, os.WriteFile(path, []byte("geocode:\n  city: Barueri\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Barueri", cfg.Geocode.City)
}

func TestLoadFile_MissingExplicitPath(t *testing.T) {
	dir := chdirTemp(t)
	_, err := LoadFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Pipeline.TagPolicy = "strict"
	cfg.Pipeline.SpatialWorkers = 4
	cfg.Geocode.City = "Itapevi"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "crimemap.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateClean(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("clean"))

	cfg.Pipeline.TagPolicy = "lenient"
	cfg.Pipeline.SpatialWorkers = 0
	cfg.Dataset.Delimiter = ";;"
	err := cfg.Validate("clean")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lenient")
	assert.Contains(t, err.Error(), "pipeline.spatial_workers must be between 1 and 64")
	assert.Contains(t, err.Error(), "dataset.delimiter")
}

func TestValidateClean_GeocodeNeedsCity(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Enabled = true
	cfg.Geocode.City = ""

	err := cfg.Validate("clean")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.city is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
