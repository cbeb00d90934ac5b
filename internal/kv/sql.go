package kv

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"permitline/internal/db"
)

// SQLStore keeps records in the kv table created by the schema migrations.
type SQLStore struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

func NewSQL(conn *sql.DB, dialect db.Dialect) *SQLStore {
	return &SQLStore{DB: conn, Dialect: dialect, Now: time.Now}
}

func (s *SQLStore) now() string {
	if s.Now == nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return s.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) q(query string) string {
	return db.Rebind(s.Dialect, query)
}

func (s *SQLStore) Get(ctx context.Context, key string) (Record, error) {
	rec := Record{Key: key}
	var value string
	err := s.DB.QueryRowContext(ctx, s.q(`SELECT value,version,updated_at FROM kv WHERE key=?`), key).
		Scan(&value, &rec.Version, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, errors.Wrapf(err, "kv get %s", key)
	}
	rec.Value = []byte(value)
	return rec, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "kv begin")
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, s.q(`SELECT version FROM kv WHERE key=?`), key).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, errors.Wrapf(err, "kv read version %s", key)
	}
	if expectedVersion > 0 && current != expectedVersion {
		return current, ErrConflict
	}
	next := current + 1
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO kv(key,value,version,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, version=excluded.version, updated_at=excluded.updated_at`),
		key, string(value), next, s.now())
	if err != nil {
		return 0, errors.Wrapf(err, "kv put %s", key)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "kv commit")
	}
	return next, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.DB.ExecContext(ctx, s.q(`DELETE FROM kv WHERE key=?`), key)
	if err != nil {
		return errors.Wrapf(err, "kv delete %s", key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`SELECT key FROM kv WHERE key LIKE ? ESCAPE '\' ORDER BY key`), likePrefix(prefix))
	if err != nil {
		return nil, errors.Wrap(err, "kv list keys")
	}
	defer rows.Close()
	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "kv scan key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
