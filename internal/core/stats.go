package core

import (
	"context"
	"fmt"
)

// Stats reports aggregate counts over committed records. Nothing is cached,
// so two calls with no writes in between return identical values.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("compute stats: %w", err)
	}
	return st, nil
}

// DuplicateRate returns the share of records flagged as duplicates, 0 when
// there are none.
func (s Stats) DuplicateRate() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	return float64(s.DuplicateRecords) / float64(s.TotalRecords)
}
