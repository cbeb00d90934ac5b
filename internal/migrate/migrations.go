package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/pkg/errors"

	"permitline/internal/db"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Step is one embedded change to the kv table, named NNN_description.sql.
type Step struct {
	Number int
	File   string
	SQL    string
}

func schemaSteps() ([]Step, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, errors.Wrap(err, "read kv schema steps")
	}
	var steps []Step
	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &n); err != nil {
			return nil, errors.Wrapf(err, "kv schema step %s has no number prefix", f.Name())
		}
		body, err := schemaFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read kv schema step %s", f.Name())
		}
		steps = append(steps, Step{Number: n, File: f.Name(), SQL: string(body)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Number < steps[j].Number })
	return steps, nil
}

// Migrate brings the kv table up to date. Each applied step is recorded in
// kv_schema so reopening a workspace runs only the steps it has not seen.
func Migrate(conn *sql.DB, dialect db.Dialect) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}
	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrap(err, "begin kv schema update")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS kv_schema (
  step INTEGER PRIMARY KEY,
  file TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`); err != nil {
		return errors.Wrap(err, "create kv_schema")
	}

	var applied int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(step), 0) FROM kv_schema`).Scan(&applied); err != nil {
		return errors.Wrap(err, "read kv_schema")
	}

	record := db.Rebind(dialect, `INSERT INTO kv_schema(step, file, applied_at) VALUES (?, ?, ?)`)
	for _, s := range steps {
		if s.Number <= applied {
			continue
		}
		if _, err := tx.Exec(s.SQL); err != nil {
			return errors.Wrapf(err, "kv schema step %s", s.File)
		}
		if _, err := tx.Exec(record, s.Number, s.File, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return errors.Wrapf(err, "record kv schema step %s", s.File)
		}
	}
	return tx.Commit()
}
