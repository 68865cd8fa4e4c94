package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/logging"
)

// maxJSONBody caps create and update payloads.
const maxJSONBody = 64 << 10

type recordListResponse struct {
	core.RecordPage
	Stats core.Stats `json:"stats"`
}

// handleListRecords lists records newest first with the overall stats attached.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	page, err := s.service.ListRecords(r.Context(), core.RecordQuery{
		Filter:  filterFromQuery(r),
		Page:    parseIntParam(r, "page", 1),
		PerPage: parseIntParam(r, "per_page", core.DefaultRecordsPerPage),
	})
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, recordListResponse{RecordPage: page, Stats: stats})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := s.service.GetRecord(r.Context(), id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.service.CreateRecord(r.Context(), fields)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Client created successfully",
		"data":    rec,
	})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}
	rec, err := s.service.UpdateRecord(r.Context(), id, fields)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Client updated successfully",
		"data":    rec,
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteRecord(r.Context(), id); err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Client deleted successfully",
	})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.DeleteAll(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All clients deleted successfully",
		"deleted": n,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"total_clients":     stats.TotalRecords,
			"unique_clients":    stats.UniqueRecords,
			"duplicate_clients": stats.DuplicateRecords,
			"duplicate_groups":  stats.DuplicateGroups,
			"duplicate_rate":    stats.DuplicateRate(),
		},
	})
}

func (s *Server) handleDuplicateGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.service.DuplicateGroups(r.Context(),
		parseIntParam(r, "page", 1),
		parseIntParam(r, "per_page", core.DefaultGroupsPerPage),
		parseBoolParam(r, "include_clients"),
	)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.service.GroupMembers(r.Context(),
		chi.URLParam(r, "groupID"),
		parseIntParam(r, "page", 1),
		parseIntParam(r, "per_page", core.DefaultRecordsPerPage),
	)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// handleExport streams matching records as a CSV download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	filename := fmt.Sprintf("clients_export_%s.csv", time.Now().Format("2006-01-02_15-04-05"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := s.service.Export(r.Context(), w, core.ExportFilter{Mode: f.Mode, GroupID: f.GroupID})
	if err != nil {
		// The status line may already be out, so the failure is only logged.
		logging.FromContext(r.Context()).Error("export failed", "rows", n, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "API is running",
		"timestamp": time.Now().UTC(),
	})
}

// filterFromQuery reads the listing filter. The boolean flags take
// precedence over the generic filter parameter.
func filterFromQuery(r *http.Request) core.RecordFilter {
	q := r.URL.Query()
	f := core.RecordFilter{
		Mode:   core.ParseFilterMode(q.Get("filter")),
		Search: q.Get("search"),
	}
	switch {
	case q.Get("duplicate_group_id") != "":
		f.Mode = core.FilterGroup
		f.GroupID = q.Get("duplicate_group_id")
	case parseBoolParam(r, "duplicates_only"):
		f.Mode = core.FilterDuplicates
	case parseBoolParam(r, "unique_only"):
		f.Mode = core.FilterUnique
	case f.Mode == core.FilterGroup:
		f.GroupID = q.Get("group")
	}
	return f
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func parseBoolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(w, r, "invalid client id", codeBadRequest)
		return 0, false
	}
	return id, true
}

func decodeFields(w http.ResponseWriter, r *http.Request) (core.RecordFields, bool) {
	var fields core.RecordFields
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&fields); err != nil {
		badRequest(w, r, "invalid JSON body", codeBadRequest)
		return core.RecordFields{}, false
	}
	return fields, true
}
