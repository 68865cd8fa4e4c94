package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on every start; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id                 BIGSERIAL PRIMARY KEY,
		company_name       VARCHAR(255) NOT NULL,
		email              VARCHAR(255) NOT NULL,
		phone_number       VARCHAR(255) NOT NULL,
		is_duplicate       BOOLEAN      NOT NULL DEFAULT FALSE,
		duplicate_group_id VARCHAR(64),
		import_metadata    JSONB,
		created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_match ON clients (company_name, email, phone_number)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_group ON clients (duplicate_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_duplicate ON clients (is_duplicate)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_created ON clients (created_at DESC, id DESC)`,
}

// Migrate creates the clients table and its indexes.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
