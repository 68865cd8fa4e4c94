package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/clientdedup/internal/core"
)

const oneRow = "company_name,email,phone_number\nAcme,a@acme.com,555\n"

func newMockService(t *testing.T) (*core.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := core.NewService(New(db), core.ServiceConfig{})
	return svc, mock
}

func expectLookups(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT MIN\(duplicate_group_id\) FROM clients`).
		WithArgs("Acme", "a@acme.com", "555").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))
	mock.ExpectQuery(`SELECT id FROM clients`).
		WithArgs("Acme", "a@acme.com", "555").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestImport_CommitFailureRecordsBatchError(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	expectLookups(mock)
	mock.ExpectExec(`INSERT INTO clients`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	res := svc.Import(context.Background(), strings.NewReader(oneRow), core.ImportOptions{})

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Data)
	assert.Equal(t, 0, res.Data.Imported)
	assert.Equal(t, 1, res.Data.Errors)
	assert.Equal(t, 1, res.Data.ProcessedRows)
	assert.Equal(t, 1, res.Data.TotalRows)
	require.Len(t, res.Data.ErrorsDetails, 1)

	d := res.Data.ErrorsDetails[0]
	assert.Equal(t, core.ErrorTypeBatch, d.Type)
	assert.Equal(t, 1, d.Chunk)
	assert.True(t, strings.HasPrefix(d.Error, "Batch processing error: "), d.Error)
	assert.Contains(t, d.Error, "disk I/O error")
	assert.Equal(t, "Import completed successfully with 1 errors", res.Message)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImport_InsertFailureRollsBackChunk(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	expectLookups(mock)
	mock.ExpectExec(`INSERT INTO clients`).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	res := svc.Import(context.Background(), strings.NewReader(oneRow), core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Errors)
	assert.Empty(t, res.Data.DuplicateGroups)
	require.Len(t, res.Data.ErrorsDetails, 1)
	assert.Equal(t, core.ErrorTypeBatch, res.Data.ErrorsDetails[0].Type)
	assert.Contains(t, res.Data.ErrorsDetails[0].Error, "insert row 2")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImport_BeginFailure(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	res := svc.Import(context.Background(), strings.NewReader(oneRow), core.ImportOptions{})

	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.Errors)
	assert.Equal(t, 1, res.Data.ProcessedRows)
	assert.Contains(t, res.Data.ErrorsDetails[0].Error, "begin transaction")

	require.NoError(t, mock.ExpectationsWereMet())
}
