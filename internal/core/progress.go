package core

import (
	"context"
	"errors"
	"time"
)

// ErrProgressNotFound is returned when no snapshot exists for a batch id.
var ErrProgressNotFound = errors.New("import progress not found")

// ImportPhase is the lifecycle stage of an import run.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseProcessing ImportPhase = "processing"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
)

// ImportProgress is a point-in-time snapshot of a running import.
type ImportProgress struct {
	BatchID       string      `json:"batch_id"`
	Phase         ImportPhase `json:"phase"`
	ChunksDone    int         `json:"chunks_done"`
	RowsRead      int         `json:"rows_read"`
	ProcessedRows int         `json:"processed_rows"`
	Imported      int         `json:"imported"`
	Duplicates    int         `json:"duplicates"`
	Errors        int         `json:"errors"`
	BytesRead     int64       `json:"bytes_read"`
	BytesTotal    int64       `json:"bytes_total,omitempty"`
	Percent       int         `json:"percent"`
	Message       string      `json:"message,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ProgressTracker records and serves import progress snapshots.
// Report must not block the import for long; failures are the tracker's
// concern and are not surfaced to the import.
type ProgressTracker interface {
	Report(ctx context.Context, p ImportProgress)
	Get(ctx context.Context, batchID string) (ImportProgress, bool, error)
}

// NopProgress discards reports.
type NopProgress struct{}

func (NopProgress) Report(context.Context, ImportProgress) {}

func (NopProgress) Get(context.Context, string) (ImportProgress, bool, error) {
	return ImportProgress{}, false, nil
}
