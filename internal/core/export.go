package core

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/jszwec/csvutil"
)

// ExportTimeFormat is the layout of the created_at column.
const ExportTimeFormat = "2006-01-02 15:04:05"

// ExportFilter selects which records are exported.
type ExportFilter struct {
	Mode    FilterMode
	GroupID string
}

type exportRow struct {
	CompanyName      string `csv:"company_name"`
	Email            string `csv:"email"`
	PhoneNumber      string `csv:"phone_number"`
	IsDuplicate      string `csv:"is_duplicate"`
	DuplicateGroupID string `csv:"duplicate_group_id"`
	CreatedAt        string `csv:"created_at"`
}

func toExportRow(r Record) exportRow {
	dup := "No"
	if r.IsDuplicate {
		dup = "Yes"
	}
	return exportRow{
		CompanyName:      r.CompanyName,
		Email:            r.Email,
		PhoneNumber:      r.PhoneNumber,
		IsDuplicate:      dup,
		DuplicateGroupID: r.GroupID(),
		CreatedAt:        r.CreatedAt.UTC().Format(ExportTimeFormat),
	}
}

// Export writes matching records to w as CSV, newest first, and returns the
// number of data rows written. The header is written even when nothing matches.
func (s *Service) Export(ctx context.Context, w io.Writer, filter ExportFilter) (int, error) {
	mode := ParseFilterMode(string(filter.Mode))
	if mode == FilterGroup && filter.GroupID == "" {
		mode = FilterAll
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	n := 0
	err := s.store.StreamRecords(ctx, RecordFilter{Mode: mode, GroupID: filter.GroupID}, func(r Record) error {
		n++
		return enc.Encode(toExportRow(r))
	})
	if err != nil {
		return n, fmt.Errorf("export records: %w", err)
	}
	if n == 0 {
		if err := enc.EncodeHeader(exportRow{}); err != nil {
			return 0, fmt.Errorf("export header: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush export: %w", err)
	}
	return n, nil
}
