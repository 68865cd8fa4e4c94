// Package memory is an in-process record store.
//
// It backs the "memory" storage kind and the pipeline tests. Transactions
// buffer inserts privately until Commit; lookups through a transaction see
// committed records plus the transaction's own buffered inserts.
package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/storage"
)

func init() {
	storage.Register("memory", func(context.Context, storage.Config) (core.Store, error) {
		return New(), nil
	})
}

var (
	// ErrInjectedFailure is returned by the insert selected with FailInsertAt.
	ErrInjectedFailure = errors.New("memory: injected insert failure")

	errTxDone = errors.New("memory: transaction already finished")
)

// Store keeps records in a slice ordered by id.
type Store struct {
	mu      sync.RWMutex
	records []core.Record
	nextID  int64

	// Now stamps created_at and updated_at. Defaults to time.Now.
	Now func() time.Time

	// FailInsertAt makes the n-th InsertRecord call (1-based, counted over
	// the store's lifetime) fail. Zero disables it. Used to exercise chunk
	// rollback in tests.
	FailInsertAt int
	inserts      int
}

// New returns an empty store.
func New() *Store {
	return &Store{Now: time.Now}
}

var _ core.Store = (*Store)(nil)

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Store) allocID() int64 {
	s.nextID++
	return s.nextID
}

// Begin opens a buffered transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: s}, nil
}

func (s *Store) Close() {}

func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st core.Stats
	groups := map[string]struct{}{}
	for _, r := range s.records {
		st.TotalRecords++
		if r.IsDuplicate {
			st.DuplicateRecords++
			if r.DuplicateGroupID != nil {
				groups[*r.DuplicateGroupID] = struct{}{}
			}
		} else {
			st.UniqueRecords++
		}
	}
	st.DuplicateGroups = int64(len(groups))
	return st, nil
}

func (s *Store) CreateRecord(ctx context.Context, rec core.NewRecord) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.materialize(s.allocID(), rec)
	s.records = append(s.records, r)
	return cloneRecord(r), nil
}

func (s *Store) materialize(id int64, rec core.NewRecord) core.Record {
	now := s.now()
	return core.Record{
		ID:               id,
		CompanyName:      rec.CompanyName,
		Email:            rec.Email,
		PhoneNumber:      rec.PhoneNumber,
		IsDuplicate:      rec.IsDuplicate,
		DuplicateGroupID: rec.DuplicateGroupID,
		ImportMetadata:   rec.ImportMetadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *Store) GetRecord(ctx context.Context, id int64) (core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index(id)
	if !ok {
		return core.Record{}, core.ErrRecordNotFound
	}
	return cloneRecord(s.records[i]), nil
}

func (s *Store) index(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.records, id, func(r core.Record, id int64) int {
		return cmp.Compare(r.ID, id)
	})
}

func (s *Store) UpdateRecord(ctx context.Context, id int64, f core.RecordFields) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return core.Record{}, core.ErrRecordNotFound
	}
	r := &s.records[i]
	if f.CompanyName != nil {
		r.CompanyName = *f.CompanyName
	}
	if f.Email != nil {
		r.Email = *f.Email
	}
	if f.PhoneNumber != nil {
		r.PhoneNumber = *f.PhoneNumber
	}
	r.UpdatedAt = s.now()
	return cloneRecord(*r), nil
}

func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index(id)
	if !ok {
		return core.ErrRecordNotFound
	}
	s.records = slices.Delete(s.records, i, i+1)
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.records))
	s.records = nil
	return n, nil
}

func (s *Store) ListRecords(ctx context.Context, filter core.RecordFilter, limit, offset int) ([]core.Record, int64, error) {
	matched := s.filtered(filter)
	total := int64(len(matched))
	if offset >= len(matched) {
		return []core.Record{}, total, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], total, nil
}

func (s *Store) StreamRecords(ctx context.Context, filter core.RecordFilter, fn func(core.Record) error) error {
	for _, r := range s.filtered(filter) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// filtered returns copies of the matching records, newest first.
func (s *Store) filtered(filter core.RecordFilter) []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Record
	for _, r := range s.records {
		if matches(filter, r) {
			out = append(out, cloneRecord(r))
		}
	}
	slices.SortStableFunc(out, newestFirst)
	return out
}

func newestFirst(a, b core.Record) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func matches(f core.RecordFilter, r core.Record) bool {
	switch f.Mode {
	case core.FilterUnique:
		if r.IsDuplicate {
			return false
		}
	case core.FilterDuplicates:
		if !r.IsDuplicate {
			return false
		}
	case core.FilterGroup:
		if r.GroupID() != f.GroupID {
			return false
		}
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(r.CompanyName), q) ||
		strings.Contains(strings.ToLower(r.Email), q) ||
		strings.Contains(strings.ToLower(r.PhoneNumber), q)
}

func (s *Store) ListDuplicateGroups(ctx context.Context, limit, offset int) ([]core.DuplicateGroup, int64, error) {
	s.mu.RLock()
	byID := map[string]*core.DuplicateGroup{}
	for _, r := range s.records {
		if r.DuplicateGroupID == nil {
			continue
		}
		g, ok := byID[*r.DuplicateGroupID]
		if !ok {
			g = &core.DuplicateGroup{
				GroupID:               *r.DuplicateGroupID,
				RepresentativeCompany: r.CompanyName,
				RepresentativeEmail:   r.Email,
				RepresentativePhone:   r.PhoneNumber,
			}
			byID[g.GroupID] = g
		}
		g.Count++
		g.RepresentativeCompany = min(g.RepresentativeCompany, r.CompanyName)
		g.RepresentativeEmail = min(g.RepresentativeEmail, r.Email)
		g.RepresentativePhone = min(g.RepresentativePhone, r.PhoneNumber)
	}
	s.mu.RUnlock()

	groups := make([]core.DuplicateGroup, 0, len(byID))
	for _, g := range byID {
		groups = append(groups, *g)
	}
	slices.SortFunc(groups, func(a, b core.DuplicateGroup) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.GroupID, b.GroupID)
	})

	total := int64(len(groups))
	if offset >= len(groups) {
		return []core.DuplicateGroup{}, total, nil
	}
	return groups[offset:min(offset+limit, len(groups))], total, nil
}

// findGroupFor scans committed records. Callers hold at least a read lock.
func (s *Store) findGroupFor(t core.Triple) (string, bool) {
	best, found := "", false
	for _, r := range s.records {
		if r.DuplicateGroupID == nil || r.Triple() != t {
			continue
		}
		if !found || *r.DuplicateGroupID < best {
			best, found = *r.DuplicateGroupID, true
		}
	}
	return best, found
}

func cloneRecord(r core.Record) core.Record {
	if r.DuplicateGroupID != nil {
		g := *r.DuplicateGroupID
		r.DuplicateGroupID = &g
	}
	if r.ImportMetadata != nil {
		m := *r.ImportMetadata
		r.ImportMetadata = &m
	}
	return r
}

// tx buffers inserts until Commit.
type tx struct {
	store   *Store
	pending []core.Record
	done    bool
}

func (t *tx) FindGroupFor(ctx context.Context, key core.Triple) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	t.store.mu.RLock()
	best, found := t.store.findGroupFor(key)
	t.store.mu.RUnlock()

	for _, r := range t.pending {
		if r.DuplicateGroupID == nil || r.Triple() != key {
			continue
		}
		if !found || *r.DuplicateGroupID < best {
			best, found = *r.DuplicateGroupID, true
		}
	}
	return best, found, nil
}

func (t *tx) FindAnyMatch(ctx context.Context, key core.Triple) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	for _, r := range t.store.records {
		if r.Triple() == key {
			return r.ID, true, nil
		}
	}
	for _, r := range t.pending {
		if r.Triple() == key {
			return r.ID, true, nil
		}
	}
	return 0, false, nil
}

func (t *tx) InsertRecord(ctx context.Context, rec core.NewRecord) (int64, error) {
	if t.done {
		return 0, errTxDone
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.inserts++
	if t.store.FailInsertAt > 0 && t.store.inserts == t.store.FailInsertAt {
		return 0, ErrInjectedFailure
	}
	r := t.store.materialize(t.store.allocID(), rec)
	t.pending = append(t.pending, r)
	return r.ID, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Ids are allocated at insert time, so a later-committing transaction
	// may hold lower ids than records already stored.
	t.store.records = append(t.store.records, t.pending...)
	slices.SortFunc(t.store.records, func(a, b core.Record) int { return cmp.Compare(a.ID, b.ID) })
	t.pending = nil
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	t.pending = nil
	return nil
}
