package core

import (
	"context"
	"errors"
)

var (
	// ErrRecordNotFound is returned when a record id does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrGroupNotFound is returned when no record carries a group id.
	ErrGroupNotFound = errors.New("duplicate group not found")
)

// RecordLookup answers the two questions duplicate detection asks of storage.
//
// Both lookups compare all three fields with exact equality.
type RecordLookup interface {
	// FindGroupFor returns the smallest non-null duplicate group id among
	// records matching t.
	FindGroupFor(ctx context.Context, t Triple) (groupID string, ok bool, err error)

	// FindAnyMatch returns the id of any record matching t, grouped or not.
	FindAnyMatch(ctx context.Context, t Triple) (id int64, ok bool, err error)
}

// Tx is a unit of atomic persistence scoped to one import chunk.
// Lookups through a Tx see records inserted earlier in the same Tx.
type Tx interface {
	RecordLookup

	// InsertRecord persists rec and returns its assigned id.
	InsertRecord(ctx context.Context, rec NewRecord) (int64, error)

	Commit(ctx context.Context) error

	// Rollback discards the transaction. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

// Store is the persistence port used by the service.
// Implementations live under internal/storage.
type Store interface {
	// Begin opens a chunk transaction.
	Begin(ctx context.Context) (Tx, error)

	// Stats computes aggregate counts from committed state.
	Stats(ctx context.Context) (Stats, error)

	CreateRecord(ctx context.Context, rec NewRecord) (Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)

	// UpdateRecord applies the non-nil fields and returns the updated record.
	UpdateRecord(ctx context.Context, id int64, fields RecordFields) (Record, error)

	DeleteRecord(ctx context.Context, id int64) error

	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	// ListRecords returns one page of records ordered by created_at desc, id desc.
	ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]Record, int64, error)

	// ListDuplicateGroups returns one page of groups ordered by size desc, group id asc.
	ListDuplicateGroups(ctx context.Context, limit, offset int) ([]DuplicateGroup, int64, error)

	// StreamRecords calls fn for every record matching filter, ordered by
	// created_at desc, id desc. Iteration stops at the first error from fn.
	StreamRecords(ctx context.Context, filter RecordFilter, fn func(Record) error) error

	Close()
}
