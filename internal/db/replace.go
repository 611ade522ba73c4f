package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Identifier splits an optionally schema-qualified table name
// ("crimemap.incidents") into a quotable pgx identifier.
func Identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// ReplaceRun swaps the rows a cleaning run owns in table: rows whose keyColumn
// equals key are deleted, then rows are bulk-loaded with COPY. Both happen in
// one transaction so readers see the old set or the new one.
func ReplaceRun(ctx context.Context, pool Pool, table, keyColumn string, key any, columns []string, rows [][]any) (int64, error) {
	ident := Identifier(table)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	del := "DELETE FROM " + ident.Sanitize() + " WHERE " + pgx.Identifier{keyColumn}.Sanitize() + " = $1"
	if _, err := tx.Exec(ctx, del, key); err != nil {
		return 0, eris.Wrapf(err, "db: clear %s for %v", table, key)
	}

	var copied int64
	if len(rows) > 0 {
		if copied, err = tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows)); err != nil {
			return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
		}
	}
	if copied != int64(len(rows)) {
		return 0, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", table, copied, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: commit")
	}
	return copied, nil
}
