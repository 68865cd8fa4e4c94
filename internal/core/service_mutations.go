package core

import (
	"context"
	"fmt"
	"strings"
)

// CreateRecord validates and stores a single record outside any import.
// The record is stored as unique; duplicate detection only runs on import.
func (s *Service) CreateRecord(ctx context.Context, fields RecordFields) (Record, error) {
	if v := ValidateFields(fields, false); !v.Valid {
		return Record{}, v
	}

	rec, err := s.store.CreateRecord(ctx, NewRecord{
		CompanyName: strings.TrimSpace(*fields.CompanyName),
		Email:       strings.TrimSpace(*fields.Email),
		PhoneNumber: strings.TrimSpace(*fields.PhoneNumber),
	})
	if err != nil {
		return Record{}, fmt.Errorf("create record: %w", err)
	}
	s.logger.Info("record created", "id", rec.ID)
	return rec, nil
}

// UpdateRecord applies the non-nil fields to record id. Supplied fields are
// validated with the import rules. Duplicate flags are left as they are.
func (s *Service) UpdateRecord(ctx context.Context, id int64, fields RecordFields) (Record, error) {
	if v := ValidateFields(fields, true); !v.Valid {
		return Record{}, v
	}

	rec, err := s.store.UpdateRecord(ctx, id, trimFields(fields))
	if err != nil {
		return Record{}, fmt.Errorf("update record %d: %w", id, err)
	}
	s.logger.Info("record updated", "id", id)
	return rec, nil
}

// DeleteRecord removes one record.
func (s *Service) DeleteRecord(ctx context.Context, id int64) error {
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	s.logger.Info("record deleted", "id", id)
	return nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all records: %w", err)
	}
	s.logger.Warn("all records deleted", "count", n)
	return n, nil
}

func trimFields(f RecordFields) RecordFields {
	trim := func(p *string) *string {
		if p == nil {
			return nil
		}
		v := strings.TrimSpace(*p)
		return &v
	}
	return RecordFields{
		CompanyName: trim(f.CompanyName),
		Email:       trim(f.Email),
		PhoneNumber: trim(f.PhoneNumber),
	}
}
