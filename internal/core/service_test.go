package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/storage/memory"
)

const header = "company_name,email,phone_number\n"

type fixture struct {
	store *memory.Store
	svc   *core.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	n := 0
	svc := core.NewService(store, core.ServiceConfig{
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	})
	return fixture{store: store, svc: svc}
}

func (f fixture) importCSV(t *testing.T, csv string, opts core.ImportOptions) core.ImportResult {
	t.Helper()
	return f.svc.Import(context.Background(), strings.NewReader(csv), opts)
}

func (f fixture) stats(t *testing.T) core.Stats {
	t.Helper()
	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	return st
}

func TestImport_MissingHeaderPersistsNothing(t *testing.T) {
	for _, hdr := range []string{
		"email,phone_number\n",
		"company_name,phone_number\n",
		"company_name,email\n",
	} {
		t.Run(strings.TrimSpace(hdr), func(t *testing.T) {
			f := newFixture(t)
			res := f.importCSV(t, hdr+"Acme,a@acme.com\n", core.ImportOptions{})

			assert.False(t, res.Success)
			assert.Nil(t, res.Data)
			assert.Equal(t, "Invalid CSV headers. Expected: company_name, email, phone_number", res.Message)
			assert.NotEmpty(t, res.BatchID)
			assert.Zero(t, f.stats(t).TotalRecords)
		})
	}
}

func TestImport_DistinctRowsAreUnique(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Company %d,c%d@example.com,555-%04d\n", i, i, i)
	}

	res := f.importCSV(t, b.String(), core.ImportOptions{})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 20, res.Data.Imported)
	assert.Zero(t, res.Data.Duplicates)
	assert.Zero(t, res.Data.Errors)
	assert.Empty(t, res.Data.DuplicateGroups)
	assert.Equal(t, "Import completed successfully", res.Message)
	assert.Equal(t, core.Stats{TotalRecords: 20, UniqueRecords: 20}, f.stats(t))
}

func TestImport_AcmeExample(t *testing.T) {
	f := newFixture(t)
	csv := header +
		"Acme,a@acme.com,+1-555-0001\n" +
		"Acme,a@acme.com,+1-555-0001\n"

	res := f.importCSV(t, csv, core.ImportOptions{})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, res.Data.Imported)
	assert.Equal(t, 1, res.Data.Duplicates)
	require.Len(t, res.Data.DuplicateGroups, 1)
	for _, rows := range res.Data.DuplicateGroups {
		require.Len(t, rows, 1)
		assert.Equal(t, "Acme", rows[0]["company_name"])
	}
	assert.EqualValues(t, 2, f.stats(t).TotalRecords)

	// The first occurrence stays ungrouped; only the later row carries the group.
	page, err := f.svc.ListRecords(context.Background(), core.RecordQuery{})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	newest, oldest := page.Records[0], page.Records[1]
	assert.True(t, newest.IsDuplicate)
	assert.NotNil(t, newest.DuplicateGroupID)
	assert.False(t, oldest.IsDuplicate)
	assert.Nil(t, oldest.DuplicateGroupID)

	require.NotNil(t, newest.ImportMetadata)
	assert.Equal(t, res.BatchID, newest.ImportMetadata.BatchID)
	assert.Equal(t, 3, newest.ImportMetadata.RowNumber)
}

func TestImport_ThirdOccurrenceJoinsGroup(t *testing.T) {
	f := newFixture(t)
	csv := header + strings.Repeat("Acme,a@acme.com,1\n", 3)

	res := f.importCSV(t, csv, core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Imported)
	assert.Equal(t, 2, res.Data.Duplicates)
	require.Len(t, res.Data.DuplicateGroups, 1)
	for _, rows := range res.Data.DuplicateGroups {
		assert.Len(t, rows, 2)
	}
	st := f.stats(t)
	assert.EqualValues(t, 1, st.DuplicateGroups)
	assert.EqualValues(t, 2, st.DuplicateRecords)
}

func TestImport_DetectsAcrossRuns(t *testing.T) {
	f := newFixture(t)
	first := f.importCSV(t, header+"Acme,a@acme.com,1\n", core.ImportOptions{})
	require.True(t, first.Success)
	assert.Equal(t, 1, first.Data.Imported)

	second := f.importCSV(t, header+"Acme,a@acme.com,1\nacme,a@acme.com,1\n", core.ImportOptions{})
	require.True(t, second.Success)
	assert.Equal(t, 1, second.Data.Duplicates)
	assert.Equal(t, 1, second.Data.Imported, "matching is case-sensitive")
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestImport_EmptyCompanyReportsRowTwo(t *testing.T) {
	f := newFixture(t)
	res := f.importCSV(t, header+",a@acme.com,1\n", core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Errors)
	require.Len(t, res.Data.ErrorsDetails, 1)

	d := res.Data.ErrorsDetails[0]
	assert.Equal(t, 2, d.Row)
	assert.Equal(t, core.ErrorTypeValidation, d.Type)
	assert.Equal(t, []string{"Company name is required"}, d.ValidationErrors["company_name"])
	assert.Equal(t, []string{"Company name is required"}, d.ErrorMessages)
	assert.Equal(t, "a@acme.com", d.Data["email"])
	assert.Equal(t, "Import completed successfully with 1 errors", res.Message)
	assert.Zero(t, f.stats(t).TotalRecords)
}

func TestImport_ErrorBudgetStopsEarly(t *testing.T) {
	f := newFixture(t)
	csv := header + strings.Repeat(",bad,\n", 15)

	res := f.importCSV(t, csv, core.ImportOptions{MaxErrors: 10})

	require.True(t, res.Success)
	assert.Equal(t, 10, res.Data.Errors)
	assert.Equal(t, 15, res.Data.TotalRows)
	assert.Equal(t, 11, res.Data.ProcessedRows)
	assert.Less(t, res.Data.ProcessedRows, res.Data.TotalRows)
	assert.Equal(t, "Import completed successfully with 10 errors. Processing was stopped due to too many errors.", res.Message)

	require.Len(t, res.Data.ErrorsDetails, 11)
	last := res.Data.ErrorsDetails[10]
	assert.Equal(t, core.ErrorTypeProcessingLimit, last.Type)
	assert.Equal(t, 12, last.Row)
}

func TestImport_SpentBudgetRecordsLimitForEachLaterChunk(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 20; i++ {
		b.WriteString(",bad,\n")
	}
	for i := 0; i < 230; i++ {
		fmt.Fprintf(&b, "C%d,c%d@x.io,%d\n", i, i, i)
	}

	res := f.importCSV(t, b.String(), core.ImportOptions{ChunkSize: 100, MaxErrors: 10})

	require.True(t, res.Success)
	assert.Equal(t, 250, res.Data.TotalRows)
	assert.Equal(t, 13, res.Data.ProcessedRows)
	assert.Equal(t, 10, res.Data.Errors)
	assert.Zero(t, res.Data.Imported)
	assert.Zero(t, f.stats(t).TotalRecords)

	var limitRows []int
	for _, d := range res.Data.ErrorsDetails {
		if d.Type == core.ErrorTypeProcessingLimit {
			limitRows = append(limitRows, d.Row)
			assert.Equal(t, "Processing stopped due to too many errors (max: 10)", d.Error)
		}
	}
	assert.Equal(t, []int{12, 102, 202}, limitRows)
}

func TestImport_SpentBudgetAcrossManyChunks(t *testing.T) {
	f := newFixture(t)
	csv := header + strings.Repeat(",bad,1\n", 350)

	res := f.importCSV(t, csv, core.ImportOptions{ChunkSize: 100, MaxErrors: 10})

	require.True(t, res.Success)
	assert.Equal(t, 350, res.Data.TotalRows)
	assert.Equal(t, 14, res.Data.ProcessedRows)
	assert.Equal(t, 10, res.Data.Errors)
	assert.Len(t, res.Data.ErrorsDetails, 14)
}

func TestImport_BlankFieldRowIsReported(t *testing.T) {
	f := newFixture(t)

	res := f.importCSV(t, header+",,\n", core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.TotalRows)
	assert.Equal(t, 1, res.Data.ProcessedRows)
	assert.Equal(t, 1, res.Data.Errors)
	require.Len(t, res.Data.ErrorsDetails, 1)
	assert.Equal(t, []string{
		"Company name is required",
		"Email address is required",
		"Phone number is required",
	}, res.Data.ErrorsDetails[0].ErrorMessages)
	assert.Equal(t, 2, res.Data.ErrorsDetails[0].Row)
}

func TestImport_MatchesRawCellValues(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRecord(context.Background(), core.RecordFields{
		CompanyName: strp(" Acme "),
		Email:       strp("a@acme.com"),
		PhoneNumber: strp("1"),
	})
	require.NoError(t, err)

	// The stored record was trimmed to "Acme"; the padded import cell is kept as is.
	res := f.importCSV(t, header+"\" Acme\",a@acme.com,1\nAcme,a@acme.com,1\n", core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Imported)
	assert.Equal(t, 1, res.Data.Duplicates)
	require.Len(t, res.Data.DuplicateGroups, 1)
	for _, members := range res.Data.DuplicateGroups {
		require.Len(t, members, 1)
		assert.Equal(t, "Acme", members[0]["company_name"])
	}
}

func TestImport_RowCountInvariant(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 345; i++ {
		if i%50 == 0 {
			b.WriteString("Bad,not-an-email,1\n")
			continue
		}
		fmt.Fprintf(&b, "C%d,c%d@x.io,%d\n", i%120, i%120, i%120)
	}

	res := f.importCSV(t, b.String(), core.ImportOptions{ChunkSize: 100})

	require.True(t, res.Success)
	d := res.Data
	assert.Less(t, d.Errors, core.DefaultMaxErrors)
	assert.Equal(t, d.TotalRows, d.ProcessedRows)
	assert.Equal(t, 345, d.TotalRows)
	assert.Equal(t, d.ProcessedRows, d.Imported+d.Duplicates+d.Errors)

	st := f.stats(t)
	assert.EqualValues(t, d.Imported, st.UniqueRecords)
	assert.EqualValues(t, d.Duplicates, st.DuplicateRecords)
}

func TestImport_FailedChunkIsRolledBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailInsertAt = 150

	var b strings.Builder
	b.WriteString(header)
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "C%d,c%d@x.io,%d\n", i, i, i)
	}
	// The last row repeats a triple written only by the failed chunk, so it is not a duplicate.
	b.WriteString("C120,c120@x.io,120\n")

	res := f.importCSV(t, b.String(), core.ImportOptions{ChunkSize: 100})

	require.True(t, res.Success)
	assert.Equal(t, 251, res.Data.TotalRows)
	assert.Equal(t, 251, res.Data.ProcessedRows)
	assert.Equal(t, 1, res.Data.Errors)
	assert.Equal(t, 151, res.Data.Imported)
	assert.Zero(t, res.Data.Duplicates)

	require.Len(t, res.Data.ErrorsDetails, 1)
	d := res.Data.ErrorsDetails[0]
	assert.Equal(t, core.ErrorTypeBatch, d.Type)
	assert.Equal(t, 2, d.Chunk)
	assert.Zero(t, d.Row)
	assert.Contains(t, d.Error, memory.ErrInjectedFailure.Error())

	assert.EqualValues(t, 151, f.stats(t).TotalRecords)
}

func TestImport_DuplicateWithinChunkSeesOwnInserts(t *testing.T) {
	f := newFixture(t)
	csv := header + "A,a@x.io,1\nB,b@x.io,2\nA,a@x.io,1\n"

	res := f.importCSV(t, csv, core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Data.Imported)
	assert.Equal(t, 1, res.Data.Duplicates)
}

func TestImport_MalformedInput(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		f := newFixture(t)
		res := f.importCSV(t, "", core.ImportOptions{})
		assert.False(t, res.Success)
		assert.Nil(t, res.Data)
		assert.True(t, strings.HasPrefix(res.Message, "Import failed: "), res.Message)
	})

	t.Run("mid-stream parse error keeps committed chunks", func(t *testing.T) {
		f := newFixture(t)
		var b strings.Builder
		b.WriteString(header)
		for i := 0; i < 120; i++ {
			fmt.Fprintf(&b, "C%d,c%d@x.io,%d\n", i, i, i)
		}
		b.WriteString("Bad,b\"ad@x.io,1\n")

		res := f.importCSV(t, b.String(), core.ImportOptions{ChunkSize: 100})

		assert.False(t, res.Success)
		assert.Nil(t, res.Data)
		assert.Contains(t, res.Message, "invalid csv at line 122")
		assert.EqualValues(t, 100, f.stats(t).TotalRecords)
	})
}

func TestImport_HeaderOnlyAndBOM(t *testing.T) {
	f := newFixture(t)
	res := f.importCSV(t, "\ufeff"+header, core.ImportOptions{})

	require.True(t, res.Success, res.Message)
	assert.Zero(t, res.Data.TotalRows)
	assert.NotNil(t, res.Data.DuplicateGroups)
	assert.NotNil(t, res.Data.ErrorsDetails)
}

func TestImport_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.svc.Import(ctx, strings.NewReader(header+"A,a@x.io,1\n"), core.ImportOptions{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "context canceled")
}

func TestImport_LimiterRejectsWhenBusy(t *testing.T) {
	limiter := core.NewImportLimiter(1, 20*time.Millisecond)
	svc := core.NewService(memory.New(), core.ServiceConfig{Limiter: limiter})

	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	res := svc.Import(context.Background(), strings.NewReader(header), core.ImportOptions{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, core.ErrTooManyImports.Error())
}

func TestStats_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.importCSV(t, header+"A,a@x.io,1\nA,a@x.io,1\nB,b@x.io,2\n", core.ImportOptions{})

	first := f.stats(t)
	second := f.stats(t)
	assert.Equal(t, first, second)
	assert.Equal(t, core.Stats{TotalRecords: 3, UniqueRecords: 2, DuplicateRecords: 1, DuplicateGroups: 1}, first)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	csv := header +
		"Acme,a@acme.com,1\n" +
		"Acme,a@acme.com,1\n" +
		"Acme,a@acme.com,1\n" +
		"Beta,b@beta.com,2\n" +
		"Beta,b@beta.com,2\n" +
		"Gamma,g@gamma.com,3\n"
	res := f.importCSV(t, csv, core.ImportOptions{})
	require.True(t, res.Success)

	t.Run("list with filters", func(t *testing.T) {
		page, err := f.svc.ListRecords(ctx, core.RecordQuery{Filter: core.RecordFilter{Mode: core.FilterDuplicates}})
		require.NoError(t, err)
		assert.EqualValues(t, 3, page.Total)
		assert.Equal(t, core.DefaultRecordsPerPage, page.PerPage)

		page, err = f.svc.ListRecords(ctx, core.RecordQuery{Filter: core.RecordFilter{Search: "GAMMA"}})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total)

		page, err = f.svc.ListRecords(ctx, core.RecordQuery{Page: 2, PerPage: 4})
		require.NoError(t, err)
		assert.Len(t, page.Records, 2)
		assert.Equal(t, 2, page.TotalPages)
	})

	t.Run("duplicate groups", func(t *testing.T) {
		groups, err := f.svc.DuplicateGroups(ctx, 1, 0, true)
		require.NoError(t, err)
		require.Len(t, groups.Groups, 2)
		assert.EqualValues(t, 2, groups.Groups[0].Count)
		assert.Equal(t, "Acme", groups.Groups[0].RepresentativeCompany)
		assert.Len(t, groups.Groups[0].Members, 2)
		assert.EqualValues(t, 1, groups.Groups[1].Count)
		assert.Equal(t, core.DefaultGroupsPerPage, groups.PerPage)

		members, err := f.svc.GroupMembers(ctx, groups.Groups[0].GroupID, 1, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, members.Total)

		_, err = f.svc.GroupMembers(ctx, "nope", 1, 10)
		assert.ErrorIs(t, err, core.ErrGroupNotFound)
	})

	t.Run("record detail with related duplicates", func(t *testing.T) {
		page, err := f.svc.ListRecords(ctx, core.RecordQuery{Filter: core.RecordFilter{Mode: core.FilterDuplicates, Search: "Acme"}})
		require.NoError(t, err)
		require.NotEmpty(t, page.Records)

		detail, err := f.svc.GetRecord(ctx, page.Records[0].ID)
		require.NoError(t, err)
		require.Len(t, detail.RelatedDuplicates, 1)
		assert.NotEqual(t, detail.Record.ID, detail.RelatedDuplicates[0].ID)

		unique, err := f.svc.ListRecords(ctx, core.RecordQuery{Filter: core.RecordFilter{Mode: core.FilterUnique, Search: "Gamma"}})
		require.NoError(t, err)
		detail, err = f.svc.GetRecord(ctx, unique.Records[0].ID)
		require.NoError(t, err)
		assert.Empty(t, detail.RelatedDuplicates)

		_, err = f.svc.GetRecord(ctx, 9999)
		assert.ErrorIs(t, err, core.ErrRecordNotFound)
	})
}

func strp(s string) *string { return &s }

func TestMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRecord(ctx, core.RecordFields{CompanyName: strp("Acme")})
	var vr core.ValidationResult
	require.True(t, errors.As(err, &vr))
	assert.Len(t, vr.Errors, 2)

	rec, err := f.svc.CreateRecord(ctx, core.RecordFields{
		CompanyName: strp(" Acme "), Email: strp("a@acme.com"), PhoneNumber: strp("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.False(t, rec.IsDuplicate)

	_, err = f.svc.UpdateRecord(ctx, rec.ID, core.RecordFields{Email: strp("broken")})
	require.Error(t, err)

	updated, err := f.svc.UpdateRecord(ctx, rec.ID, core.RecordFields{PhoneNumber: strp("2")})
	require.NoError(t, err)
	assert.Equal(t, "2", updated.PhoneNumber)
	assert.Equal(t, "a@acme.com", updated.Email)

	_, err = f.svc.UpdateRecord(ctx, 9999, core.RecordFields{PhoneNumber: strp("2")})
	assert.ErrorIs(t, err, core.ErrRecordNotFound)

	require.NoError(t, f.svc.DeleteRecord(ctx, rec.ID))
	assert.ErrorIs(t, f.svc.DeleteRecord(ctx, rec.ID), core.ErrRecordNotFound)

	f.importCSV(t, header+"A,a@x.io,1\nB,b@x.io,2\n", core.ImportOptions{})
	n, err := f.svc.DeleteAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Zero(t, f.stats(t).TotalRecords)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.importCSV(t, header+"Acme,a@acme.com,1\n\"Beta, Inc\",b@beta.com,2\nAcme,a@acme.com,1\n", core.ImportOptions{})

	var buf bytes.Buffer
	n, err := f.svc.Export(ctx, &buf, core.ExportFilter{Mode: core.FilterAll})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "company_name,email,phone_number,is_duplicate,duplicate_group_id,created_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Acme,a@acme.com,1,Yes,id-"), lines[1])
	assert.Equal(t, `"Beta, Inc",b@beta.com,2,No,,2024-05-01 12:00:02`, lines[2])
	assert.Equal(t, "Acme,a@acme.com,1,No,,2024-05-01 12:00:01", lines[3])

	buf.Reset()
	n, err = f.svc.Export(ctx, &buf, core.ExportFilter{Mode: core.FilterGroup, GroupID: "missing"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "company_name,email,phone_number,is_duplicate,duplicate_group_id,created_at\n", buf.String())
}
