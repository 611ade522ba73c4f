package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crimemap-cli/internal/db"
	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/internal/spatial"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	report     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_num         INTEGER NOT NULL,
	category        TEXT NOT NULL,
	period          TEXT NOT NULL,
	occurrence_time TEXT,
	occurrence_date DATE,
	street          TEXT NOT NULL,
	street_number   DOUBLE PRECISION,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	extra           JSONB NOT NULL DEFAULT '{}'::jsonb,
	geom            BYTEA,
	PRIMARY KEY (run_id, row_num)
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key          TEXT PRIMARY KEY,
	matched      BOOLEAN NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT '',
	quality      TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_incidents_category ON incidents(run_id, category);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, report *model.Report, runErr error) error {
	var reportJSON []byte
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		reportJSON = b
	}
	status, errText := runStatus(runErr)

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), reportJSON, errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, status, report, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	return scanPgRun(row)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, status, report, error, created_at, updated_at FROM runs
		 WHERE status = $1 ORDER BY created_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	return scanPgRun(row)
}

// SaveIncidents replaces the incidents stored for runID using COPY.
func (s *PostgresStore) SaveIncidents(ctx context.Context, runID string, records []model.Record) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		extra, err := encodeExtra(r.Extra)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: row %d", r.Row)
		}
		point, err := spatial.EncodeEWKB(r)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: save incidents")
		}
		rows = append(rows, []any{
			runID, r.Row, r.Category, string(r.PeriodTag), timeText(r.Time), r.Date,
			r.Street, r.StreetNumber, r.Latitude, r.Longitude, extra, point,
		})
	}

	n, err := db.ReplaceRun(ctx, s.pool, "incidents", "run_id", runID, incidentColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save incidents")
	}
	return n, nil
}

// ListIncidents returns the incidents of one run in row order. Without a
// Limit every row of the run is returned.
func (s *PostgresStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Record, error) {
	query := incidentSelect
	var args []any
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		query += ` WHERE run_id = $1`
	} else {
		args = append(args, string(model.RunStatusComplete))
		query += ` WHERE run_id = (SELECT id FROM runs WHERE status = $1 ORDER BY created_at DESC LIMIT 1)`
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	query += ` ORDER BY row_num`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list incidents")
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r      model.Record
			period string
			tod    *string
			extra  *string
		)
		if err := rows.Scan(&r.Row, &r.Category, &period, &tod, &r.Date,
			&r.Street, &r.StreetNumber, &r.Latitude, &r.Longitude, &extra); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident")
		}
		r.PeriodTag = model.Period(period)
		r.Time = parseTimeText(tod)
		if r.Extra, err = decodeExtra(extra); err != nil {
			return nil, eris.Wrapf(err, "postgres: row %d", r.Row)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list incidents iterate")
}

func (s *PostgresStore) GetGeocode(ctx context.Context, key string) (*geocode.Result, error) {
	var r geocode.Result
	err := s.pool.QueryRow(ctx,
		`SELECT matched, latitude, longitude, source, quality, display_name FROM geocode_cache WHERE key = $1`,
		key,
	).Scan(&r.Matched, &r.Latitude, &r.Longitude, &r.Source, &r.Quality, &r.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get geocode")
	}
	return &r, nil
}

func (s *PostgresStore) SetGeocode(ctx context.Context, key string, result *geocode.Result) error {
	if result == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (key, matched, latitude, longitude, source, quality, display_name, cached_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (key) DO UPDATE SET matched = EXCLUDED.matched, latitude = EXCLUDED.latitude,
		 longitude = EXCLUDED.longitude, source = EXCLUDED.source, quality = EXCLUDED.quality,
		 display_name = EXCLUDED.display_name, cached_at = now()`,
		key, result.Matched, result.Latitude, result.Longitude, result.Source, result.Quality, result.DisplayName,
	)
	return eris.Wrap(err, "postgres: set geocode")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var reportJSON []byte

	err := row.Scan(&r.ID, &r.Source, &status, &reportJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	r.Status = model.RunStatus(status)

	if len(reportJSON) > 0 {
		r.Report = &model.Report{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
	}
	return &r, nil
}
