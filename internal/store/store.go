// Package store persists cleaning runs, cleaned incidents and geocoder
// answers in SQLite or Postgres.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("store: not found")

// IncidentFilter narrows ListIncidents. An empty RunID selects the most
// recent complete run; a Limit of zero means no limit.
type IncidentFilter struct {
	RunID    string
	Category string
	Limit    int
}

// Store defines the persistence interface for cleaning runs. It also
// satisfies geocode.Cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, report *model.Report, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)

	// Incidents
	SaveIncidents(ctx context.Context, runID string, records []model.Record) (int64, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Record, error)

	// Geocode cache
	GetGeocode(ctx context.Context, key string) (*geocode.Result, error)
	SetGeocode(ctx context.Context, key string, result *geocode.Result) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store         = (*SQLiteStore)(nil)
	_ Store         = (*PostgresStore)(nil)
	_ geocode.Cache = (Store)(nil)
)

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql", "pgx":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func runStatus(runErr error) (model.RunStatus, string) {
	if runErr != nil {
		return model.RunStatusFailed, runErr.Error()
	}
	return model.RunStatusComplete, ""
}
