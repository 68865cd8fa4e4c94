package core

// batch.go runs an import as a fold over fixed-size chunks of rows.
//
// Each chunk is processed inside its own store transaction. Row results are
// collected into a chunk-local delta and merged into the run state only when
// the transaction commits, so a failed chunk leaves neither rows in storage
// nor entries in the report, apart from a single batch_error detail.
//
// Duplicate lookups go through the chunk transaction and therefore see rows
// inserted earlier in the same chunk as well as every committed chunk.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	DefaultChunkSize = 1000
	MinChunkSize     = 100
	MaxChunkSize     = 5000

	DefaultMaxErrors = 100
	MinMaxErrors     = 10
	MaxMaxErrors     = 1000
)

// BatchConfig controls chunking and the error budget of an import.
type BatchConfig struct {
	ChunkSize int `json:"batch_size" yaml:"chunk_size"`
	MaxErrors int `json:"max_errors" yaml:"max_errors"`
}

// Normalize clamps both settings into their allowed ranges.
// Zero values take the defaults.
func (c BatchConfig) Normalize() BatchConfig {
	return BatchConfig{
		ChunkSize: ClampChunkSize(c.ChunkSize),
		MaxErrors: ClampMaxErrors(c.MaxErrors),
	}
}

// ClampChunkSize returns n limited to [MinChunkSize, MaxChunkSize].
// Non-positive values mean "use the default".
func ClampChunkSize(n int) int {
	return clamp(n, DefaultChunkSize, MinChunkSize, MaxChunkSize)
}

// ClampMaxErrors returns n limited to [MinMaxErrors, MaxMaxErrors].
// Non-positive values mean "use the default".
func ClampMaxErrors(n int) int {
	return clamp(n, DefaultMaxErrors, MinMaxErrors, MaxMaxErrors)
}

func clamp(n, def, lo, hi int) int {
	if n <= 0 {
		return def
	}
	return max(lo, min(n, hi))
}

// runState is the accumulator threaded through the chunk fold.
type runState struct {
	Imported      int
	Duplicates    int
	Errors        int
	Groups        map[string][]map[string]string
	ErrorDetails  []ErrorDetail
	TotalRows     int
	ProcessedRows int
	Stopped       bool
	ChunksDone    int
}

// chunkDelta collects a chunk's effects until its transaction commits.
type chunkDelta struct {
	imported   int
	duplicates int
	errors     int
	processed  int
	groups     map[string][]map[string]string
	groupOrder []string
	details    []ErrorDetail
	stopped    bool
}

func (d *chunkDelta) addToGroup(groupID string, fields map[string]string) {
	if d.groups == nil {
		d.groups = make(map[string][]map[string]string)
	}
	if _, ok := d.groups[groupID]; !ok {
		d.groupOrder = append(d.groupOrder, groupID)
	}
	d.groups[groupID] = append(d.groups[groupID], fields)
}

// merge returns s with d's effects applied. s is not modified.
func (s runState) merge(d chunkDelta) runState {
	out := s
	out.Imported += d.imported
	out.Duplicates += d.duplicates
	out.Errors += d.errors
	out.ProcessedRows += d.processed
	out.Stopped = s.Stopped || d.stopped
	out.ChunksDone++

	out.ErrorDetails = append(append([]ErrorDetail(nil), s.ErrorDetails...), d.details...)

	if len(d.groups) > 0 {
		groups := make(map[string][]map[string]string, len(s.Groups)+len(d.groups))
		for k, v := range s.Groups {
			groups[k] = v
		}
		for _, id := range d.groupOrder {
			groups[id] = append(append([]map[string]string(nil), groups[id]...), d.groups[id]...)
		}
		out.Groups = groups
	}
	return out
}

// chunk is a contiguous slice of data rows. Ordinal is the zero-based index
// of the first row among all data rows of the file.
type chunk struct {
	Index   int
	Ordinal int
	Rows    []Row
}

// fileRow converts a data-row ordinal to the 1-based file line number,
// counting the header as line 1.
func fileRow(ordinal int) int {
	return ordinal + 2
}

// importRun holds everything fixed for the duration of one import.
type importRun struct {
	batchID    string
	cfg        BatchConfig
	store      Store
	now        func() time.Time
	newGroupID func() string
	logger     *slog.Logger
	progress   ProgressTracker
	counter    *CountingReader
}

// execute folds processChunk over every chunk read from r.
//
// Once the error budget is spent each remaining chunk records only a
// processing_limit entry for its first row, so TotalRows still reflects the
// whole file.
// A read error aborts the run without touching the partly read chunk;
// chunks already committed stay committed.
func (run *importRun) execute(ctx context.Context, r *Reader) (runState, error) {
	state := runState{}
	ordinal := 0

	for idx := 0; ; idx++ {
		rows, err := readChunk(ctx, r, run.cfg.ChunkSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return state, err
		}
		if len(rows) > 0 {
			state.TotalRows += len(rows)
			state = run.processChunk(ctx, state, chunk{Index: idx, Ordinal: ordinal, Rows: rows})
			run.report(ctx, PhaseProcessing, state, "")
			ordinal += len(rows)
		}
		if err != nil {
			return state, nil
		}
	}
}

// readChunk reads up to size rows. It returns io.EOF alongside the final
// (possibly empty) chunk.
func readChunk(ctx context.Context, r *Reader, size int) ([]Row, error) {
	rows := make([]Row, 0, size)
	for len(rows) < size {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		row, err := r.Next()
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// processChunk runs one chunk in a transaction and returns the next state.
// A chunk that starts with the budget already spent opens no transaction.
func (run *importRun) processChunk(ctx context.Context, state runState, c chunk) runState {
	if state.Errors >= run.cfg.MaxErrors {
		return state.merge(chunkDelta{
			processed: 1,
			details:   []ErrorDetail{run.limitDetail(fileRow(c.Ordinal))},
			stopped:   true,
		})
	}

	tx, err := run.store.Begin(ctx)
	if err != nil {
		return run.failChunk(state, c, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	detector := &DuplicateDetector{Lookup: tx, NewGroupID: run.newGroupID}
	var delta chunkDelta

	for i, row := range c.Rows {
		rowNum := fileRow(c.Ordinal + i)
		delta.processed++

		if state.Errors+delta.errors >= run.cfg.MaxErrors {
			delta.details = append(delta.details, run.limitDetail(rowNum))
			delta.stopped = true
			break
		}

		if v := ValidateRow(row); !v.Valid {
			delta.errors++
			delta.details = append(delta.details, ErrorDetail{
				Row:              rowNum,
				Type:             ErrorTypeValidation,
				Data:             row.Fields(),
				ValidationErrors: v.ByField(),
				ErrorMessages:    v.Messages(),
			})
			continue
		}

		t := row.Triple()
		check, err := detector.Check(ctx, t)
		if err != nil {
			return run.failChunk(state, c, fmt.Errorf("row %d: %w", rowNum, err))
		}

		rec := NewRecord{
			CompanyName: t.CompanyName,
			Email:       t.Email,
			PhoneNumber: t.PhoneNumber,
			IsDuplicate: check.IsDuplicate,
			ImportMetadata: &ImportMetadata{
				BatchID:    run.batchID,
				RowNumber:  rowNum,
				ImportedAt: run.now().UTC(),
			},
		}
		if check.IsDuplicate {
			gid := check.GroupID
			rec.DuplicateGroupID = &gid
		}

		if _, err := tx.InsertRecord(ctx, rec); err != nil {
			return run.failChunk(state, c, fmt.Errorf("insert row %d: %w", rowNum, err))
		}

		if check.IsDuplicate {
			delta.duplicates++
			delta.addToGroup(check.GroupID, row.Fields())
		} else {
			delta.imported++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return run.failChunk(state, c, fmt.Errorf("commit: %w", err))
	}

	run.logger.Debug("chunk committed",
		"chunk", c.Index+1,
		"rows", delta.processed,
		"imported", delta.imported,
		"duplicates", delta.duplicates,
		"errors", delta.errors,
	)
	return state.merge(delta)
}

func (run *importRun) limitDetail(rowNum int) ErrorDetail {
	return ErrorDetail{
		Row:   rowNum,
		Type:  ErrorTypeProcessingLimit,
		Error: fmt.Sprintf("Processing stopped due to too many errors (max: %d)", run.cfg.MaxErrors),
	}
}

// failChunk discards a chunk's work and records a single batch error.
// Every row of the chunk counts as processed.
func (run *importRun) failChunk(state runState, c chunk, err error) runState {
	run.logger.Error("chunk failed",
		"chunk", c.Index+1,
		"rows", len(c.Rows),
		"error", err,
	)
	return state.merge(chunkDelta{
		errors:    1,
		processed: len(c.Rows),
		details: []ErrorDetail{{
			Chunk: c.Index + 1,
			Type:  ErrorTypeBatch,
			Error: "Batch processing error: " + err.Error(),
		}},
	})
}

func (run *importRun) report(ctx context.Context, phase ImportPhase, state runState, msg string) {
	if run.progress == nil {
		return
	}
	p := ImportProgress{
		BatchID:       run.batchID,
		Phase:         phase,
		ChunksDone:    state.ChunksDone,
		RowsRead:      state.TotalRows,
		ProcessedRows: state.ProcessedRows,
		Imported:      state.Imported,
		Duplicates:    state.Duplicates,
		Errors:        state.Errors,
		Message:       msg,
		UpdatedAt:     run.now().UTC(),
	}
	if run.counter != nil {
		p.BytesRead = run.counter.BytesRead()
		p.BytesTotal = run.counter.Total
		p.Percent = run.counter.Percent()
	}
	if phase == PhaseComplete {
		p.Percent = 100
	}
	run.progress.Report(ctx, p)
}
