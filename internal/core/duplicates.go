package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DuplicateCheck is the outcome of checking one candidate row.
type DuplicateCheck struct {
	IsDuplicate bool   `json:"is_duplicate"`
	GroupID     string `json:"group_id,omitempty"`
}

// DuplicateDetector decides whether a candidate matches stored records.
//
// A candidate that matches a record already carrying a group id joins that
// group. A candidate that only matches group-less records gets a new group
// id; the matched record keeps no group. Existing records are never updated.
type DuplicateDetector struct {
	Lookup RecordLookup

	// NewGroupID mints group ids. Defaults to random UUIDs.
	NewGroupID func() string
}

// NewDuplicateDetector creates a detector over lookup.
func NewDuplicateDetector(lookup RecordLookup) *DuplicateDetector {
	return &DuplicateDetector{Lookup: lookup}
}

// Check classifies t. It has no side effects on storage.
func (d *DuplicateDetector) Check(ctx context.Context, t Triple) (DuplicateCheck, error) {
	groupID, ok, err := d.Lookup.FindGroupFor(ctx, t)
	if err != nil {
		return DuplicateCheck{}, fmt.Errorf("find duplicate group: %w", err)
	}
	if ok {
		return DuplicateCheck{IsDuplicate: true, GroupID: groupID}, nil
	}

	_, ok, err = d.Lookup.FindAnyMatch(ctx, t)
	if err != nil {
		return DuplicateCheck{}, fmt.Errorf("find matching record: %w", err)
	}
	if ok {
		return DuplicateCheck{IsDuplicate: true, GroupID: d.newGroupID()}, nil
	}

	return DuplicateCheck{}, nil
}

func (d *DuplicateDetector) newGroupID() string {
	if d.NewGroupID != nil {
		return d.NewGroupID()
	}
	return uuid.NewString()
}
