// Package core provides the business logic for contact import operations.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"time"
)

// Column names required in every import file.
const (
	ColumnCompanyName = "company_name"
	ColumnEmail       = "email"
	ColumnPhoneNumber = "phone_number"
)

// RequiredColumns lists the header columns an import file must contain.
var RequiredColumns = []string{ColumnCompanyName, ColumnEmail, ColumnPhoneNumber}

// MaxFieldLength is the maximum length (in characters) of any editable field.
const MaxFieldLength = 255

// Triple is the exact-match key used for duplicate detection.
type Triple struct {
	CompanyName string
	Email       string
	PhoneNumber string
}

// ImportMetadata records where an imported record came from.
// It is stored alongside the record and never used for matching.
type ImportMetadata struct {
	BatchID    string    `json:"batch_id"`
	RowNumber  int       `json:"row_number"`
	ImportedAt time.Time `json:"imported_at"`
}

// Record is one persisted contact entry.
type Record struct {
	ID               int64           `json:"id"`
	CompanyName      string          `json:"company_name"`
	Email            string          `json:"email"`
	PhoneNumber      string          `json:"phone_number"`
	IsDuplicate      bool            `json:"is_duplicate"`
	DuplicateGroupID *string         `json:"duplicate_group_id"`
	ImportMetadata   *ImportMetadata `json:"import_metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Triple returns the record's match key.
func (r Record) Triple() Triple {
	return Triple{CompanyName: r.CompanyName, Email: r.Email, PhoneNumber: r.PhoneNumber}
}

// GroupID returns the duplicate group id or "" when the record has none.
func (r Record) GroupID() string {
	if r.DuplicateGroupID == nil {
		return ""
	}
	return *r.DuplicateGroupID
}

// NewRecord holds everything needed to insert a record.
// ID and timestamps are assigned by the store.
type NewRecord struct {
	CompanyName      string
	Email            string
	PhoneNumber      string
	IsDuplicate      bool
	DuplicateGroupID *string
	ImportMetadata   *ImportMetadata
}

// RecordFields carries the editable fields of a record.
// Nil fields are left unchanged by an update.
type RecordFields struct {
	CompanyName *string `json:"company_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

// FilterMode selects which records a listing or export returns.
type FilterMode string

const (
	FilterAll        FilterMode = "all"
	FilterUnique     FilterMode = "unique"
	FilterDuplicates FilterMode = "duplicates"
	FilterGroup      FilterMode = "group"
)

// ParseFilterMode converts a user-supplied string to a FilterMode.
// Unknown or empty values fall back to FilterAll.
func ParseFilterMode(s string) FilterMode {
	switch FilterMode(s) {
	case FilterUnique, FilterDuplicates, FilterGroup:
		return FilterMode(s)
	default:
		return FilterAll
	}
}

// RecordFilter narrows a record listing.
type RecordFilter struct {
	Mode    FilterMode
	GroupID string // used when Mode is FilterGroup
	Search  string // substring over company name, email and phone
}

// RecordQuery is a paginated listing request.
type RecordQuery struct {
	Filter  RecordFilter
	Page    int
	PerPage int
}

// RecordPage is one page of records.
type RecordPage struct {
	Records    []Record `json:"data"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// RecordWithDuplicates is a record plus the other members of its group.
type RecordWithDuplicates struct {
	Record            Record   `json:"client"`
	RelatedDuplicates []Record `json:"related_duplicates"`
}

// DuplicateGroup summarises one duplicate group.
type DuplicateGroup struct {
	GroupID               string   `json:"duplicate_group_id"`
	Count                 int64    `json:"count"`
	RepresentativeCompany string   `json:"representative_company"`
	RepresentativeEmail   string   `json:"representative_email"`
	RepresentativePhone   string   `json:"representative_phone"`
	Members               []Record `json:"clients,omitempty"`
}

// DuplicateGroupPage is one page of duplicate groups.
type DuplicateGroupPage struct {
	Groups     []DuplicateGroup `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

// Stats holds aggregate counts over all persisted records.
type Stats struct {
	TotalRecords     int64 `json:"total_clients"`
	UniqueRecords    int64 `json:"unique_clients"`
	DuplicateRecords int64 `json:"duplicate_clients"`
	DuplicateGroups  int64 `json:"duplicate_groups"`
}

// Pagination defaults.
const (
	DefaultRecordsPerPage = 15
	DefaultGroupsPerPage  = 10
	MaxPerPage            = 100
)

// normalizePage clamps page and perPage to sane values.
func normalizePage(page, perPage, defaultPerPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// totalPages returns the number of pages needed for total items.
func totalPages(total int64, perPage int) int {
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		pages = 1
	}
	return pages
}
