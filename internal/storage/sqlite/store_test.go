package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/clientdedup/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "clients.db")
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func ptr(s string) *string { return &s }

func TestStore_TxLookupsSeeOwnInserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	key := core.Triple{CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "555"}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, ok, err := tx.FindAnyMatch(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := tx.InsertRecord(ctx, core.NewRecord{CompanyName: key.CompanyName, Email: key.Email, PhoneNumber: key.PhoneNumber})
	require.NoError(t, err)

	got, ok, err := tx.FindAnyMatch(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok, err = tx.FindGroupFor(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "ungrouped record must not report a group")

	for _, g := range []string{"g-b", "g-a"} {
		_, err := tx.InsertRecord(ctx, core.NewRecord{
			CompanyName: key.CompanyName, Email: key.Email, PhoneNumber: key.PhoneNumber,
			IsDuplicate: true, DuplicateGroupID: ptr(g),
		})
		require.NoError(t, err)
	}

	g, ok, err := tx.FindGroupFor(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g-a", g, "smallest group id wins")

	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx), "rollback after commit is a no-op")

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Stats{TotalRecords: 3, UniqueRecords: 1, DuplicateRecords: 2, DuplicateGroups: 2}, st)
}

func TestStore_RollbackDiscardsInserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertRecord(ctx, core.NewRecord{CompanyName: "A", Email: "a@x.io", PhoneNumber: "1"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalRecords)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	imported := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertRecord(ctx, core.NewRecord{
		CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "555",
		IsDuplicate: true, DuplicateGroupID: ptr("g1"),
		ImportMetadata: &core.ImportMetadata{BatchID: "b1", RowNumber: 4, ImportedAt: imported},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.True(t, rec.IsDuplicate)
	assert.Equal(t, "g1", rec.GroupID())
	require.NotNil(t, rec.ImportMetadata)
	assert.Equal(t, "b1", rec.ImportMetadata.BatchID)
	assert.Equal(t, 4, rec.ImportMetadata.RowNumber)
	assert.True(t, imported.Equal(rec.ImportMetadata.ImportedAt))

	updated, err := s.UpdateRecord(ctx, id, core.RecordFields{Email: ptr("new@acme.com")})
	require.NoError(t, err)
	assert.Equal(t, "new@acme.com", updated.Email)
	assert.Equal(t, "Acme", updated.CompanyName)

	require.NoError(t, s.DeleteRecord(ctx, id))
	_, err = s.GetRecord(ctx, id)
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
	assert.ErrorIs(t, s.DeleteRecord(ctx, id), core.ErrRecordNotFound)

	_, err = s.UpdateRecord(ctx, id, core.RecordFields{Email: ptr("x@y.z")})
	assert.ErrorIs(t, err, core.ErrRecordNotFound)
}

func TestStore_ListingAndGroups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	seed := []core.NewRecord{
		{CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "1"},
		{CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "1", IsDuplicate: true, DuplicateGroupID: ptr("g2")},
		{CompanyName: "Acme", Email: "a@acme.com", PhoneNumber: "1", IsDuplicate: true, DuplicateGroupID: ptr("g2")},
		{CompanyName: "Beta_Co", Email: "b@beta.com", PhoneNumber: "2"},
		{CompanyName: "Beta_Co", Email: "b@beta.com", PhoneNumber: "2", IsDuplicate: true, DuplicateGroupID: ptr("g1")},
	}
	var ids []int64
	for _, r := range seed {
		rec, err := s.CreateRecord(ctx, r)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	recs, total, err := s.ListRecords(ctx, core.RecordFilter{Mode: core.FilterAll}, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[4], recs[0].ID, "newest first")
	assert.Equal(t, ids[3], recs[1].ID)

	_, total, err = s.ListRecords(ctx, core.RecordFilter{Mode: core.FilterUnique}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, total, err = s.ListRecords(ctx, core.RecordFilter{Mode: core.FilterGroup, GroupID: "g2"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	// "_" is literal in search, not a wildcard.
	_, total, err = s.ListRecords(ctx, core.RecordFilter{Search: "a_co"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	_, total, err = s.ListRecords(ctx, core.RecordFilter{Search: "e_c"}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	groups, total, err := s.ListDuplicateGroups(ctx, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, groups, 2)
	assert.Equal(t, "g2", groups[0].GroupID)
	assert.EqualValues(t, 2, groups[0].Count)
	assert.Equal(t, "Acme", groups[0].RepresentativeCompany)
	assert.Equal(t, "g1", groups[1].GroupID)

	var streamed []int64
	require.NoError(t, s.StreamRecords(ctx, core.RecordFilter{Mode: core.FilterDuplicates}, func(r core.Record) error {
		streamed = append(streamed, r.ID)
		return nil
	}))
	assert.Equal(t, []int64{ids[4], ids[2], ids[1]}, streamed)

	n, err := s.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}
