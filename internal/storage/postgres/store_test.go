package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/storage"
)

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name      string
		filter    core.RecordFilter
		wantWhere string
		wantArgs  []any
	}{
		{name: "all", filter: core.RecordFilter{Mode: core.FilterAll}},
		{name: "unique", filter: core.RecordFilter{Mode: core.FilterUnique}, wantWhere: " WHERE NOT is_duplicate"},
		{
			name:      "group with search",
			filter:    core.RecordFilter{Mode: core.FilterGroup, GroupID: "g1", Search: "50%_off"},
			wantWhere: " WHERE duplicate_group_id = $1 AND (company_name ILIKE $2 OR email ILIKE $2 OR phone_number ILIKE $2)",
			wantArgs:  []any{"g1", `%50\%\_off%`},
		},
		{
			name:      "duplicates with search",
			filter:    core.RecordFilter{Mode: core.FilterDuplicates, Search: "acme"},
			wantWhere: " WHERE is_duplicate AND (company_name ILIKE $1 OR email ILIKE $1 OR phone_number ILIKE $1)",
			wantArgs:  []any{"%acme%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := whereClause(tt.filter)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

// TestStore_Integration runs against a real server when TEST_DATABASE_URL is set.
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, storage.Config{Kind: "postgres", DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DeleteAll(ctx)
	require.NoError(t, err)

	key := core.Triple{CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "555"}
	group := "g-1"

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertRecord(ctx, core.NewRecord{CompanyName: key.CompanyName, Email: key.Email, PhoneNumber: key.PhoneNumber})
	require.NoError(t, err)
	_, err = tx.InsertRecord(ctx, core.NewRecord{
		CompanyName: key.CompanyName, Email: key.Email, PhoneNumber: key.PhoneNumber,
		IsDuplicate: true, DuplicateGroupID: &group,
		ImportMetadata: &core.ImportMetadata{BatchID: "b", RowNumber: 3},
	})
	require.NoError(t, err)

	g, ok, err := tx.FindGroupFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, group, g)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{TotalRecords: 2, UniqueRecords: 1, DuplicateRecords: 1, DuplicateGroups: 1}, st)

	groups, total, err := s.ListDuplicateGroups(ctx, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, groups, 1)
	assert.EqualValues(t, 1, groups[0].Count)

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
