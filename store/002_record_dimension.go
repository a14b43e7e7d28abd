package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(recordDimensionUp, recordDimensionDown)
}

// recordDimensionUp adds records.dimension and fills it from the stored
// embeddings so collections can reject vectors of the wrong size.
func recordDimensionUp(ctx context.Context, tx *sql.Tx) error {
	driver := migrationDriver
	if driver == "" {
		driver = DriverSQLite
	}
	if err := ensureColumn(ctx, tx, "records", "dimension", "INTEGER NOT NULL DEFAULT 0", driver); err != nil {
		return err
	}
	return backfillDimension(ctx, tx, driver)
}

func recordDimensionDown(ctx context.Context, tx *sql.Tx) error {
	driver := migrationDriver
	if driver == "" {
		driver = DriverSQLite
	}
	exists, err := columnExists(ctx, tx, "records", "dimension", driver)
	if err != nil || !exists {
		return err
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE records DROP COLUMN dimension`)
	return err
}

func backfillDimension(ctx context.Context, tx *sql.Tx, driver string) error {
	rows, err := tx.QueryContext(ctx, `SELECT collection, id, embedding FROM records WHERE dimension = 0`)
	if err != nil {
		return err
	}
	type pending struct {
		collection, id string
		dim            int
	}
	var updates []pending
	for rows.Next() {
		var p pending
		var raw string
		if err := rows.Scan(&p.collection, &p.id, &raw); err != nil {
			rows.Close()
			return err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			rows.Close()
			return fmt.Errorf("decode embedding %s/%s: %w", p.collection, p.id, err)
		}
		p.dim = len(vec)
		updates = append(updates, p)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	stmt := `UPDATE records SET dimension = ? WHERE collection = ? AND id = ?`
	if driver == DriverPostgres {
		stmt = `UPDATE records SET dimension = $1 WHERE collection = $2 AND id = $3`
	}
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, stmt, u.dim, u.collection, u.id); err != nil {
			return err
		}
	}
	return nil
}

func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, columnDef, driver string) error {
	ok, err := tableExists(ctx, tx, table, driver)
	if err != nil || !ok {
		return err
	}
	exists, err := columnExists(ctx, tx, table, column, driver)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)
	_, err = tx.ExecContext(ctx, stmt)
	return err
}

func tableExists(ctx context.Context, tx *sql.Tx, table, driver string) (bool, error) {
	switch driver {
	case DriverPostgres:
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
		return exists, err
	default:
		var name string
		err := tx.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err == sql.ErrNoRows {
			return false, nil
		}
		return err == nil, err
	}
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column, driver string) (bool, error) {
	switch driver {
	case DriverPostgres:
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
		return exists, err
	default:
		rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name string
			var ctype string
			var notnull int
			var dflt sql.NullString
			var pk int
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}
}
