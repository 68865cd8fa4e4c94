// Package sqlite stores records in SQLite through database/sql and the
// pure-Go modernc.org/sqlite driver.
//
// Key differences from the Postgres backend:
//   - Timestamps are TEXT in a fixed-width UTC layout so that ORDER BY on the
//     column sorts chronologically.
//   - Import metadata is a JSON document in a TEXT column.
//   - The pool is limited to one connection; SQLite has a single writer and
//     ":memory:" databases are per connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/storage"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (core.Store, error) {
		return Open(ctx, cfg.DSN)
	})
}

// timeLayout sorts lexicographically in time order for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	company_name       TEXT    NOT NULL,
	email              TEXT    NOT NULL,
	phone_number       TEXT    NOT NULL,
	is_duplicate       INTEGER NOT NULL DEFAULT 0,
	duplicate_group_id TEXT,
	import_metadata    TEXT,
	created_at         TEXT    NOT NULL,
	updated_at         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clients_match ON clients (company_name, email, phone_number);
CREATE INDEX IF NOT EXISTS idx_clients_group ON clients (duplicate_group_id);
CREATE INDEX IF NOT EXISTS idx_clients_duplicate ON clients (is_duplicate);
CREATE INDEX IF NOT EXISTS idx_clients_created ON clients (created_at);
`

const recordColumns = `id, company_name, email, phone_number, is_duplicate, duplicate_group_id, import_metadata, created_at, updated_at`

// Store implements core.Store on a *sql.DB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ core.Store = (*Store)(nil)

// Open opens the database at dsn, verifies the connection and creates the
// schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite: empty DSN")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database without touching the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the clients table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &chunkTx{tx: tx, store: s}, nil
}

func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	const q = `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN is_duplicate = 0 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0),
	COUNT(DISTINCT CASE WHEN is_duplicate = 1 THEN duplicate_group_id END)
FROM clients`

	var st core.Stats
	err := s.db.QueryRowContext(ctx, q).Scan(&st.TotalRecords, &st.UniqueRecords, &st.DuplicateRecords, &st.DuplicateGroups)
	return st, err
}

func (s *Store) CreateRecord(ctx context.Context, rec core.NewRecord) (core.Record, error) {
	id, err := insert(ctx, s.db, rec, s.stamp())
	if err != nil {
		return core.Record{}, err
	}
	return s.GetRecord(ctx, id)
}

func (s *Store) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM clients WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, core.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) UpdateRecord(ctx context.Context, id int64, f core.RecordFields) (core.Record, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	add("company_name", f.CompanyName)
	add("email", f.Email)
	add("phone_number", f.PhoneNumber)
	sets = append(sets, "updated_at = ?")
	args = append(args, s.stamp(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE clients SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return core.Record{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Record{}, core.ErrRecordNotFound
	}
	return s.GetRecord(ctx, id)
}

func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ListRecords(ctx context.Context, filter core.RecordFilter, limit, offset int) ([]core.Record, int64, error) {
	where, args := whereClause(filter)

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + recordColumns + ` FROM clients` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (s *Store) StreamRecords(ctx context.Context, filter core.RecordFilter, fn func(core.Record) error) error {
	where, args := whereClause(filter)
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM clients`+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) ListDuplicateGroups(ctx context.Context, limit, offset int) ([]core.DuplicateGroup, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT duplicate_group_id) FROM clients WHERE duplicate_group_id IS NOT NULL`,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT duplicate_group_id, COUNT(*) AS cnt, MIN(company_name), MIN(email), MIN(phone_number)
FROM clients
WHERE duplicate_group_id IS NOT NULL
GROUP BY duplicate_group_id
ORDER BY cnt DESC, duplicate_group_id ASC
LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []core.DuplicateGroup{}
	for rows.Next() {
		var g core.DuplicateGroup
		if err := rows.Scan(&g.GroupID, &g.Count, &g.RepresentativeCompany, &g.RepresentativeEmail, &g.RepresentativePhone); err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	return out, total, rows.Err()
}

// whereClause renders filter as a WHERE clause with ? placeholders.
func whereClause(f core.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	switch f.Mode {
	case core.FilterUnique:
		conds = append(conds, "is_duplicate = 0")
	case core.FilterDuplicates:
		conds = append(conds, "is_duplicate = 1")
	case core.FilterGroup:
		conds = append(conds, "duplicate_group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.Search != "" {
		p := "%" + escapeLike(f.Search) + "%"
		conds = append(conds, `(company_name LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\' OR phone_number LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func insert(ctx context.Context, q queryer, rec core.NewRecord, now string) (int64, error) {
	var meta sql.NullString
	if rec.ImportMetadata != nil {
		b, err := json.Marshal(rec.ImportMetadata)
		if err != nil {
			return 0, fmt.Errorf("encode import metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	var group sql.NullString
	if rec.DuplicateGroupID != nil {
		group = sql.NullString{String: *rec.DuplicateGroupID, Valid: true}
	}

	res, err := q.ExecContext(ctx, `
INSERT INTO clients (company_name, email, phone_number, is_duplicate, duplicate_group_id, import_metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CompanyName, rec.Email, rec.PhoneNumber, rec.IsDuplicate, group, meta, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (core.Record, error) {
	var (
		rec                  core.Record
		group, meta          sql.NullString
		createdAt, updatedAt string
	)
	err := sc.Scan(&rec.ID, &rec.CompanyName, &rec.Email, &rec.PhoneNumber, &rec.IsDuplicate,
		&group, &meta, &createdAt, &updatedAt)
	if err != nil {
		return core.Record{}, err
	}

	if group.Valid {
		g := group.String
		rec.DuplicateGroupID = &g
	}
	if meta.Valid && meta.String != "" {
		var m core.ImportMetadata
		if err := json.Unmarshal([]byte(meta.String), &m); err != nil {
			return core.Record{}, fmt.Errorf("decode import metadata of %d: %w", rec.ID, err)
		}
		rec.ImportMetadata = &m
	}
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Record{}, fmt.Errorf("parse created_at of %d: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return core.Record{}, fmt.Errorf("parse updated_at of %d: %w", rec.ID, err)
	}
	return rec, nil
}

// chunkTx runs lookups and inserts on a single *sql.Tx.
type chunkTx struct {
	tx    *sql.Tx
	store *Store
	done  bool
}

func (t *chunkTx) FindGroupFor(ctx context.Context, key core.Triple) (string, bool, error) {
	var g sql.NullString
	err := t.tx.QueryRowContext(ctx, `
SELECT MIN(duplicate_group_id) FROM clients
WHERE company_name = ? AND email = ? AND phone_number = ? AND duplicate_group_id IS NOT NULL`,
		key.CompanyName, key.Email, key.PhoneNumber,
	).Scan(&g)
	if err != nil {
		return "", false, err
	}
	return g.String, g.Valid, nil
}

func (t *chunkTx) FindAnyMatch(ctx context.Context, key core.Triple) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
SELECT id FROM clients
WHERE company_name = ? AND email = ? AND phone_number = ?
LIMIT 1`,
		key.CompanyName, key.Email, key.PhoneNumber,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *chunkTx) InsertRecord(ctx context.Context, rec core.NewRecord) (int64, error) {
	return insert(ctx, t.tx, rec, t.store.stamp())
}

func (t *chunkTx) Commit(ctx context.Context) error {
	t.done = true
	return t.tx.Commit()
}

func (t *chunkTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
