package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultImportTimeout bounds a single import run.
const DefaultImportTimeout = 10 * time.Minute

// ServiceConfig wires a Service. Zero values take defaults.
type ServiceConfig struct {
	Batch         BatchConfig
	ImportTimeout time.Duration
	Reader        ReaderOptions

	Limiter  *ImportLimiter
	Progress ProgressTracker
	Logger   *slog.Logger

	// Now and NewID are overridden in tests.
	Now   func() time.Time
	NewID func() string
}

// Service is the entry point for imports, exports and record queries.
// It has no transport dependencies; the HTTP server and the CLI share it.
type Service struct {
	store    Store
	batch    BatchConfig
	timeout  time.Duration
	reader   ReaderOptions
	limiter  *ImportLimiter
	progress ProgressTracker
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a Service over store.
func NewService(store Store, cfg ServiceConfig) *Service {
	s := &Service{
		store:    store,
		batch:    cfg.Batch.Normalize(),
		timeout:  cfg.ImportTimeout,
		reader:   cfg.Reader,
		limiter:  cfg.Limiter,
		progress: cfg.Progress,
		logger:   cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultImportTimeout
	}
	if s.limiter == nil {
		s.limiter = NewImportLimiter(0, 0)
	}
	if s.progress == nil {
		s.progress = NopProgress{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Limiter exposes the import limiter for shutdown draining and status.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// BatchConfig returns the defaults applied when an import does not set them.
func (s *Service) BatchConfig() BatchConfig {
	return s.batch
}

// ImportOptions are per-run overrides. Zero values take the service defaults;
// non-zero values are clamped into range.
type ImportOptions struct {
	ChunkSize int
	MaxErrors int
	FileName  string
	Size      int64 // bytes, 0 if unknown; used for progress only
}

// Import reads a delimited file from r and persists its valid rows,
// flagging duplicates. The returned result always carries the batch id.
//
// Header problems and unreadable input fail the whole run with Data nil.
// Chunks committed before a mid-stream read failure stay committed.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ImportOptions) ImportResult {
	cfg := s.batch
	if opts.ChunkSize != 0 {
		cfg.ChunkSize = ClampChunkSize(opts.ChunkSize)
	}
	if opts.MaxErrors != 0 {
		cfg.MaxErrors = ClampMaxErrors(opts.MaxErrors)
	}

	batchID := s.newID()
	logger := s.logger.With("batch_id", batchID)
	if opts.FileName != "" {
		logger = logger.With("file", opts.FileName)
	}

	stream, counter := WrapForStreaming(r, opts.Size)
	run := &importRun{
		batchID:    batchID,
		cfg:        cfg,
		store:      s.store,
		now:        s.now,
		newGroupID: s.newID,
		logger:     logger,
		progress:   s.progress,
		counter:    counter,
	}

	fail := func(msg string, err error) ImportResult {
		logger.Warn("import failed", "error", err)
		run.report(context.WithoutCancel(ctx), PhaseFailed, runState{}, msg)
		return failedResult(batchID, msg)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return fail("Import failed: "+err.Error(), err)
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	run.report(ctx, PhaseStarting, runState{}, "")
	start := s.now()

	reader, err := NewReader(stream, s.reader)
	if err != nil {
		return fail("Import failed: "+err.Error(), err)
	}
	if err := ValidateHeaders(reader.Header()); err != nil {
		return fail(err.Error(), err)
	}

	logger.Info("import started", "chunk_size", cfg.ChunkSize, "max_errors", cfg.MaxErrors)

	state, err := run.execute(ctx, reader)
	if err != nil {
		return fail("Import failed: "+err.Error(), fmt.Errorf("after %d chunks: %w", state.ChunksDone, err))
	}

	result := buildResult(batchID, cfg, state)
	run.report(ctx, PhaseComplete, state, result.Message)

	logger.Info("import finished",
		"total_rows", state.TotalRows,
		"processed_rows", state.ProcessedRows,
		"imported", state.Imported,
		"duplicates", state.Duplicates,
		"errors", state.Errors,
		"stopped", state.Stopped,
		"duration", s.now().Sub(start),
	)
	return result
}

// Progress returns the latest snapshot for batchID.
func (s *Service) Progress(ctx context.Context, batchID string) (ImportProgress, error) {
	p, ok, err := s.progress.Get(ctx, batchID)
	if err != nil {
		return ImportProgress{}, fmt.Errorf("get progress %s: %w", batchID, err)
	}
	if !ok {
		return ImportProgress{}, ErrProgressNotFound
	}
	return p, nil
}
