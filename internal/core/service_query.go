package core

import (
	"context"
	"fmt"
)

// ListRecords returns one page of records, newest first.
// A group filter without a group id lists every record.
func (s *Service) ListRecords(ctx context.Context, q RecordQuery) (RecordPage, error) {
	page, perPage := normalizePage(q.Page, q.PerPage, DefaultRecordsPerPage)

	filter := q.Filter
	filter.Mode = ParseFilterMode(string(filter.Mode))
	if filter.Mode == FilterGroup && filter.GroupID == "" {
		filter.Mode = FilterAll
	}

	records, total, err := s.store.ListRecords(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return RecordPage{}, fmt.Errorf("list records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}

	return RecordPage{
		Records:    records,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	}, nil
}

// GetRecord returns a record and, when it is a grouped duplicate, the other
// members of its group.
func (s *Service) GetRecord(ctx context.Context, id int64) (RecordWithDuplicates, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return RecordWithDuplicates{}, fmt.Errorf("get record %d: %w", id, err)
	}

	out := RecordWithDuplicates{Record: rec, RelatedDuplicates: []Record{}}
	if !rec.IsDuplicate || rec.DuplicateGroupID == nil {
		return out, nil
	}

	err = s.store.StreamRecords(ctx, RecordFilter{Mode: FilterGroup, GroupID: *rec.DuplicateGroupID}, func(r Record) error {
		if r.ID != rec.ID {
			out.RelatedDuplicates = append(out.RelatedDuplicates, r)
		}
		return nil
	})
	if err != nil {
		return RecordWithDuplicates{}, fmt.Errorf("related duplicates of %d: %w", id, err)
	}
	return out, nil
}

// GroupMembers returns one page of the records carrying groupID.
func (s *Service) GroupMembers(ctx context.Context, groupID string, page, perPage int) (RecordPage, error) {
	if groupID == "" {
		return RecordPage{}, ErrGroupNotFound
	}
	out, err := s.ListRecords(ctx, RecordQuery{
		Filter:  RecordFilter{Mode: FilterGroup, GroupID: groupID},
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return RecordPage{}, err
	}
	if out.Total == 0 {
		return RecordPage{}, fmt.Errorf("group %s: %w", groupID, ErrGroupNotFound)
	}
	return out, nil
}

// DuplicateGroups returns one page of duplicate groups, largest first.
// With includeMembers set, each group carries its records.
func (s *Service) DuplicateGroups(ctx context.Context, page, perPage int, includeMembers bool) (DuplicateGroupPage, error) {
	page, perPage = normalizePage(page, perPage, DefaultGroupsPerPage)

	groups, total, err := s.store.ListDuplicateGroups(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return DuplicateGroupPage{}, fmt.Errorf("list duplicate groups: %w", err)
	}
	if groups == nil {
		groups = []DuplicateGroup{}
	}

	if includeMembers {
		for i := range groups {
			g := &groups[i]
			err := s.store.StreamRecords(ctx, RecordFilter{Mode: FilterGroup, GroupID: g.GroupID}, func(r Record) error {
				g.Members = append(g.Members, r)
				return nil
			})
			if err != nil {
				return DuplicateGroupPage{}, fmt.Errorf("members of group %s: %w", g.GroupID, err)
			}
		}
	}

	return DuplicateGroupPage{
		Groups:     groups,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages(total, perPage),
	}, nil
}
