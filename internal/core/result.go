package core

import "fmt"

// ErrorType classifies an entry in an import's error report.
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation_error"
	ErrorTypeProcessingLimit ErrorType = "processing_limit"
	ErrorTypeBatch           ErrorType = "batch_error"
)

// ErrorDetail describes one problem encountered during an import.
// Row-level entries set Row; chunk-level entries set Chunk instead.
type ErrorDetail struct {
	Row              int                 `json:"row,omitempty"`
	Chunk            int                 `json:"chunk,omitempty"`
	Type             ErrorType           `json:"type"`
	Error            string              `json:"error,omitempty"`
	Data             map[string]string   `json:"data,omitempty"`
	ValidationErrors map[string][]string `json:"validation_errors,omitempty"`
	ErrorMessages    []string            `json:"error_messages,omitempty"`
}

// ImportData holds the counters and reports of a completed run.
type ImportData struct {
	Imported        int                            `json:"imported"`
	Duplicates      int                            `json:"duplicates"`
	Errors          int                            `json:"errors"`
	DuplicateGroups map[string][]map[string]string `json:"duplicate_groups"`
	ErrorsDetails   []ErrorDetail                  `json:"errors_details"`
	TotalRows       int                            `json:"total_rows"`
	ProcessedRows   int                            `json:"processed_rows"`
}

// ImportResult is the outcome returned to the caller of an import.
// Data is nil when the import failed before processing rows.
type ImportResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	BatchID string      `json:"batch_id"`
	Data    *ImportData `json:"data,omitempty"`
}

// buildResult wraps a finished run's state into the caller-facing outcome.
func buildResult(batchID string, cfg BatchConfig, state runState) ImportResult {
	msg := "Import completed successfully"
	if state.Errors > 0 {
		msg += fmt.Sprintf(" with %d errors", state.Errors)
	}
	if state.Errors >= cfg.MaxErrors {
		msg += ". Processing was stopped due to too many errors."
	}

	groups := state.Groups
	if groups == nil {
		groups = map[string][]map[string]string{}
	}
	details := state.ErrorDetails
	if details == nil {
		details = []ErrorDetail{}
	}

	return ImportResult{
		Success: true,
		Message: msg,
		BatchID: batchID,
		Data: &ImportData{
			Imported:        state.Imported,
			Duplicates:      state.Duplicates,
			Errors:          state.Errors,
			DuplicateGroups: groups,
			ErrorsDetails:   details,
			TotalRows:       state.TotalRows,
			ProcessedRows:   state.ProcessedRows,
		},
	}
}

// failedResult reports an import that could not run.
func failedResult(batchID, message string) ImportResult {
	return ImportResult{
		Success: false,
		Message: message,
		BatchID: batchID,
	}
}
