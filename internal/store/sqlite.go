package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crimemap-cli/internal/model"
	"github.com/sells-group/crimemap-cli/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	report     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS incidents (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_num         INTEGER NOT NULL,
	category        TEXT NOT NULL,
	period          TEXT NOT NULL,
	occurrence_time TEXT,
	occurrence_date TEXT,
	street          TEXT NOT NULL,
	street_number   REAL,
	latitude        REAL,
	longitude       REAL,
	extra           TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, row_num)
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key          TEXT PRIMARY KEY,
	matched      INTEGER NOT NULL,
	latitude     REAL NOT NULL DEFAULT 0,
	longitude    REAL NOT NULL DEFAULT 0,
	source       TEXT NOT NULL DEFAULT '',
	quality      TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status_created ON runs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_incidents_category ON incidents(run_id, category);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *model.Report, runErr error) error {
	var reportJSON sql.NullString
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		reportJSON = sql.NullString{String: string(b), Valid: true}
	}
	status, errText := runStatus(runErr)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), reportJSON, errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, report, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, report, error, created_at, updated_at FROM runs
		 WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(model.RunStatusComplete),
	)
	return scanRun(row)
}

// SaveIncidents replaces the incidents stored for runID.
func (s *SQLiteStore) SaveIncidents(ctx context.Context, runID string, records []model.Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE run_id = ?`, runID); err != nil {
		return 0, eris.Wrap(err, "sqlite: clear incidents")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO incidents (run_id, row_num, category, period, occurrence_time, occurrence_date,
		 street, street_number, latitude, longitude, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert incident")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range records {
		extra, err := encodeExtra(r.Extra)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: row %d", r.Row)
		}
		var date *string
		if r.Date != nil {
			d := r.Date.Format(time.DateOnly)
			date = &d
		}
		if _, err := stmt.ExecContext(ctx,
			runID, r.Row, r.Category, string(r.PeriodTag), timeText(r.Time), date,
			r.Street, r.StreetNumber, r.Latitude, r.Longitude, extra,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert incident row %d", r.Row)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit incidents")
	}
	return n, nil
}

// ListIncidents returns the incidents of one run in row order. Without a
// Limit every row of the run is returned.
func (s *SQLiteStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Record, error) {
	query := incidentSelect
	var args []any
	if filter.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, filter.RunID)
	} else {
		query += ` WHERE run_id = (SELECT id FROM runs WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1)`
		args = append(args, string(model.RunStatusComplete))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	query += ` ORDER BY row_num`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list incidents")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Record
	for rows.Next() {
		var (
			r         model.Record
			period    string
			tod, date *string
			extra     *string
		)
		if err := rows.Scan(&r.Row, &r.Category, &period, &tod, &date,
			&r.Street, &r.StreetNumber, &r.Latitude, &r.Longitude, &extra); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident")
		}
		r.PeriodTag = model.Period(period)
		r.Time = parseTimeText(tod)
		if date != nil {
			if d, err := time.Parse(time.DateOnly, *date); err == nil {
				r.Date = &d
			}
		}
		if r.Extra, err = decodeExtra(extra); err != nil {
			return nil, eris.Wrapf(err, "sqlite: row %d", r.Row)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list incidents iterate")
}

func (s *SQLiteStore) GetGeocode(ctx context.Context, key string) (*geocode.Result, error) {
	var r geocode.Result
	err := s.db.QueryRowContext(ctx,
		`SELECT matched, latitude, longitude, source, quality, display_name FROM geocode_cache WHERE key = ?`,
		key,
	).Scan(&r.Matched, &r.Latitude, &r.Longitude, &r.Source, &r.Quality, &r.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get geocode")
	}
	return &r, nil
}

func (s *SQLiteStore) SetGeocode(ctx context.Context, key string, result *geocode.Result) error {
	if result == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (key, matched, latitude, longitude, source, quality, display_name, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET matched = excluded.matched, latitude = excluded.latitude,
		 longitude = excluded.longitude, source = excluded.source, quality = excluded.quality,
		 display_name = excluded.display_name, cached_at = excluded.cached_at`,
		key, result.Matched, result.Latitude, result.Longitude, result.Source, result.Quality, result.DisplayName, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set geocode")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var reportJSON sql.NullString

	err := row.Scan(&r.ID, &r.Source, &status, &reportJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if reportJSON.Valid {
		r.Report = &model.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
	}
	return &r, nil
}
