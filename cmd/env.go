package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap-cli/internal/cluster"
	"github.com/sells-group/crimemap-cli/internal/config"
	"github.com/sells-group/crimemap-cli/internal/dataset"
	"github.com/sells-group/crimemap-cli/internal/fetcher"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/period"
	"github.com/sells-group/crimemap-cli/internal/pipeline"
	"github.com/sells-group/crimemap-cli/internal/resilience"
	"github.com/sells-group/crimemap-cli/internal/spatial"
	"github.com/sells-group/crimemap-cli/internal/store"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

// cleanEnv holds everything the clean command needs. Store is nil unless
// results are persisted or geocoder answers are cached.
type cleanEnv struct {
	Store    store.Store
	Fetcher  fetcher.Fetcher
	Pipeline *pipeline.Pipeline
	Remote   *spatial.RemoteImputer
}

// Close releases resources held by the environment.
func (e *cleanEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func retryConfig(rc config.RetryConfig) resilience.RetryConfig {
	return resilience.FromRetryConfig(rc.MaxAttempts, rc.InitialBackoffMs, rc.MaxBackoffMs, rc.Multiplier, rc.JitterFraction)
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:             retryConfig(cfg.Fetch.Retry),
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
}

func tableOptions() fetcher.TableOptions {
	var delim rune
	if d := []rune(cfg.Dataset.Delimiter); len(d) == 1 {
		delim = d[0]
	}
	return fetcher.TableOptions{
		XLSX: fetcher.XLSXOptions{
			SheetIndex: cfg.Dataset.SheetIndex,
			SheetName:  cfg.Dataset.SheetName,
			SkipRows:   cfg.Dataset.SkipRows,
		},
		CSV: fetcher.CSVOptions{
			Delimiter: delim,
			Encoding:  cfg.Dataset.Encoding,
			TrimSpace: true,
		},
	}
}

// newRemoteImputer builds the geocoding fallback. A nil cache disables
// answer persistence.
func newRemoteImputer(cache geocode.Cache) *spatial.RemoteImputer {
	g := cfg.Geocode
	opts := []geocode.Option{
		geocode.WithUserAgent(g.UserAgent),
		geocode.WithMinDelay(time.Duration(g.MinDelayMs) * time.Millisecond),
	}
	if g.NominatimURL != "" {
		opts = append(opts, geocode.WithNominatimURL(g.NominatimURL))
	}
	if g.GoogleAPIKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(g.GoogleAPIKey))
	}
	if cache != nil {
		opts = append(opts, geocode.WithCache(cache))
	}
	client := geocode.NewClient(opts...)
	zap.L().Info("geocoder enabled", zap.Strings("providers", client.Providers()))

	return spatial.NewRemoteImputer(client, spatial.RemoteConfig{
		Locality: spatial.Locality{City: g.City, State: g.State, Country: g.Country},
		Timeout:  time.Duration(g.TimeoutSecs) * time.Second,
		Retry:    retryConfig(g.Retry),
		Circuit:  resilience.FromCircuitConfig(g.Circuit.FailureThreshold, g.Circuit.ResetTimeoutSecs),
	})
}

// initClean wires the pipeline for one clean run. Callers should defer
// env.Close().
func initClean(ctx context.Context, withGeocode, persist bool) (*cleanEnv, error) {
	if err := cfg.Validate("clean"); err != nil {
		return nil, err
	}
	policy, err := period.ParseTagPolicy(cfg.Pipeline.TagPolicy)
	if err != nil {
		return nil, err
	}

	env := &cleanEnv{Fetcher: newFetcher()}

	withGeocode = withGeocode || cfg.Geocode.Enabled
	if persist || (withGeocode && cfg.Geocode.Cache) {
		env.Store, err = initStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	if withGeocode {
		var cache geocode.Cache
		if cfg.Geocode.Cache && env.Store != nil {
			cache = env.Store
		}
		env.Remote = newRemoteImputer(cache)
	} else {
		zap.L().Debug("geocoder not enabled, remote coordinate stage will be skipped")
	}

	env.Pipeline = pipeline.New(pipeline.Options{
		TagPolicy:             policy,
		RestrictedPlaceholder: cfg.Pipeline.RestrictedPlaceholder,
		SpatialWorkers:        cfg.Pipeline.SpatialWorkers,
		Remote:                env.Remote,
	})
	return env, nil
}

// loadTable reads and decodes a spreadsheet, CSV or URL.
func loadTable(ctx context.Context, f fetcher.Fetcher, src string) (*dataset.Table, error) {
	rows, err := fetcher.ReadTable(ctx, f, src, tableOptions())
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", src)
	}
	table, err := dataset.Decode(rows, cfg.Dataset.Columns)
	if err != nil {
		return nil, eris.Wrapf(err, "decode %s", src)
	}
	return table, nil
}

// loadIncidents reads cleaned incidents from a file when src is set, and
// otherwise from the store (runID, or the latest complete run).
func loadIncidents(ctx context.Context, src, runID string) ([]model.Record, error) {
	if src != "" {
		table, err := loadTable(ctx, newFetcher(), src)
		if err != nil {
			return nil, err
		}
		return table.Records, nil
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	records, err := st.ListIncidents(ctx, store.IncidentFilter{RunID: runID})
	if err != nil {
		return nil, eris.Wrap(err, "list incidents")
	}
	return records, nil
}

// loadClassifier returns the cluster model at path, falling back to the
// configured model. No model configured yields a nil classifier.
func loadClassifier(path string) (cluster.Classifier, error) {
	if path == "" {
		path = cfg.Cluster.ModelPath
	}
	if path == "" {
		return nil, nil
	}
	m, err := cluster.LoadModel(path)
	if err != nil {
		return nil, err
	}
	zap.L().Info("cluster model loaded",
		zap.String("name", m.Name),
		zap.Int("centroids", len(m.Centroids)),
	)
	return m, nil
}
