package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/logging"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 32 << 20

var errNoFile = errors.New("no file provided in csv_file")

// handleImport runs a CSV import synchronously and returns the result.
// 200 when the run completed, even with row errors; 422 when it failed.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, err, http.StatusRequestEntityTooLarge)
			return
		}
		badRequest(w, r, "invalid multipart form", codeBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("csv_file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts := core.ImportOptions{FileName: header.Filename, Size: header.Size}
	if opts.ChunkSize, err = formInt(r, "batch_size"); err != nil {
		badRequest(w, r, "batch_size must be an integer", codeBadRequest)
		return
	}
	if opts.MaxErrors, err = formInt(r, "max_errors"); err != nil {
		badRequest(w, r, "max_errors must be an integer", codeBadRequest)
		return
	}

	logging.FromContext(r.Context()).Info("import requested",
		"file", header.Filename,
		"size", header.Size,
		"batch_size", opts.ChunkSize,
		"max_errors", opts.MaxErrors,
	)

	result := s.service.Import(r.Context(), file, opts)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handleImportProgress returns the latest progress snapshot of a run.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.Progress(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": p})
}

// handleBatchConfig reports the defaults and bounds applied to imports.
func (s *Server) handleBatchConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.service.BatchConfig()
	limiter := s.service.Limiter().Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"batch_size":     cfg.ChunkSize,
			"max_errors":     cfg.MaxErrors,
			"min_batch_size": core.MinChunkSize,
			"max_batch_size": core.MaxChunkSize,
			"min_max_errors": core.MinMaxErrors,
			"max_max_errors": core.MaxMaxErrors,
			"max_file_size":  s.opts.MaxFileSize,
			"imports":        limiter,
		},
	})
}

// formInt parses an optional integer form value; empty means 0.
func formInt(r *http.Request, name string) (int, error) {
	v := r.FormValue(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
