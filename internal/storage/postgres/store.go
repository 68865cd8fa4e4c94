// Package postgres stores records in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (core.Store, error) {
		return Open(ctx, cfg)
	})
}

const recordColumns = `id, company_name, email, phone_number, is_duplicate, duplicate_group_id, import_metadata, created_at, updated_at`

// Store implements core.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open connects using cfg.DSN, applies pool sizing, pings and migrates.
func Open(ctx context.Context, cfg storage.Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool. The schema is assumed to exist.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &chunkTx{tx: tx}, nil
}

func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	const q = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE NOT is_duplicate),
	COUNT(*) FILTER (WHERE is_duplicate),
	COUNT(DISTINCT duplicate_group_id) FILTER (WHERE is_duplicate)
FROM clients`

	var st core.Stats
	err := s.pool.QueryRow(ctx, q).Scan(&st.TotalRecords, &st.UniqueRecords, &st.DuplicateRecords, &st.DuplicateGroups)
	return st, err
}

func (s *Store) CreateRecord(ctx context.Context, rec core.NewRecord) (core.Record, error) {
	meta, err := encodeMetadata(rec.ImportMetadata)
	if err != nil {
		return core.Record{}, err
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO clients (company_name, email, phone_number, is_duplicate, duplicate_group_id, import_metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+recordColumns,
		rec.CompanyName, rec.Email, rec.PhoneNumber, rec.IsDuplicate, rec.DuplicateGroupID, meta,
	)
	return scanRecord(row)
}

func (s *Store) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, core.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) UpdateRecord(ctx context.Context, id int64, f core.RecordFields) (core.Record, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE clients SET
	company_name = COALESCE($2, company_name),
	email        = COALESCE($3, email),
	phone_number = COALESCE($4, phone_number),
	updated_at   = now()
WHERE id = $1
RETURNING `+recordColumns,
		id, f.CompanyName, f.Email, f.PhoneNumber,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, core.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListRecords(ctx context.Context, filter core.RecordFilter, limit, offset int) ([]core.Record, int64, error) {
	where, args := whereClause(filter)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	q := fmt.Sprintf(`SELECT %s FROM clients%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, where, n+1, n+2)
	rows, err := s.pool.Query(ctx, q, append(args, limit, offset)...)
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
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM clients`+where+` ORDER BY created_at DESC, id DESC`, args...)
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
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT duplicate_group_id) FROM clients WHERE duplicate_group_id IS NOT NULL`,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT duplicate_group_id, COUNT(*) AS cnt, MIN(company_name), MIN(email), MIN(phone_number)
FROM clients
WHERE duplicate_group_id IS NOT NULL
GROUP BY duplicate_group_id
ORDER BY cnt DESC, duplicate_group_id ASC
LIMIT $1 OFFSET $2`, limit, offset)
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

// whereClause renders filter with $n placeholders starting at $1.
func whereClause(f core.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	switch f.Mode {
	case core.FilterUnique:
		conds = append(conds, "NOT is_duplicate")
	case core.FilterDuplicates:
		conds = append(conds, "is_duplicate")
	case core.FilterGroup:
		args = append(args, f.GroupID)
		conds = append(conds, fmt.Sprintf("duplicate_group_id = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(company_name ILIKE $%d OR email ILIKE $%d OR phone_number ILIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func encodeMetadata(m *core.ImportMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode import metadata: %w", err)
	}
	return b, nil
}

func scanRecord(row pgx.Row) (core.Record, error) {
	var (
		rec  core.Record
		meta []byte
	)
	err := row.Scan(&rec.ID, &rec.CompanyName, &rec.Email, &rec.PhoneNumber, &rec.IsDuplicate,
		&rec.DuplicateGroupID, &meta, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return core.Record{}, err
	}
	if len(meta) > 0 {
		var m core.ImportMetadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return core.Record{}, fmt.Errorf("decode import metadata of %d: %w", rec.ID, err)
		}
		rec.ImportMetadata = &m
	}
	return rec, nil
}

// chunkTx runs lookups and inserts on one pgx transaction.
type chunkTx struct {
	tx pgx.Tx
}

func (t *chunkTx) FindGroupFor(ctx context.Context, key core.Triple) (string, bool, error) {
	var g *string
	err := t.tx.QueryRow(ctx, `
SELECT MIN(duplicate_group_id) FROM clients
WHERE company_name = $1 AND email = $2 AND phone_number = $3 AND duplicate_group_id IS NOT NULL`,
		key.CompanyName, key.Email, key.PhoneNumber,
	).Scan(&g)
	if err != nil || g == nil {
		return "", false, err
	}
	return *g, true, nil
}

func (t *chunkTx) FindAnyMatch(ctx context.Context, key core.Triple) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
SELECT id FROM clients
WHERE company_name = $1 AND email = $2 AND phone_number = $3
LIMIT 1`,
		key.CompanyName, key.Email, key.PhoneNumber,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *chunkTx) InsertRecord(ctx context.Context, rec core.NewRecord) (int64, error) {
	meta, err := encodeMetadata(rec.ImportMetadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
INSERT INTO clients (company_name, email, phone_number, is_duplicate, duplicate_group_id, import_metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		rec.CompanyName, rec.Email, rec.PhoneNumber, rec.IsDuplicate, rec.DuplicateGroupID, meta,
	).Scan(&id)
	return id, err
}

func (t *chunkTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *chunkTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
