package core

// validation.go provides header and row validation for import files.
//
// Validation happens at two levels:
//  1. Header validation: once per import, before any row is read.
//  2. Row validation: each of the three contact fields is checked for
//     presence, length and (for email) address syntax.
//
// Row validation collects every failure rather than stopping at the first,
// so the import report can show all problems with a row at once.

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// InvalidHeaderError reports required columns missing from the header row.
type InvalidHeaderError struct {
	Missing []string
}

func (e *InvalidHeaderError) Error() string {
	return "Invalid CSV headers. Expected: " + strings.Join(RequiredColumns, ", ")
}

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating a row.
type ValidationResult struct {
	Valid  bool              // True if all validations passed
	Errors []ValidationError // List of validation errors (empty if Valid)
}

// Messages returns every error message in field order.
func (r ValidationResult) Messages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return msgs
}

// ByField groups error messages by column name.
func (r ValidationResult) ByField() map[string][]string {
	out := make(map[string][]string)
	for _, e := range r.Errors {
		out[e.Field] = append(out[e.Field], e.Message)
	}
	return out
}

// Error joins the messages so a ValidationResult can be returned as an error.
func (r ValidationResult) Error() string {
	return "validation failed: " + strings.Join(r.Messages(), "; ")
}

// fieldRule describes one validated column.
type fieldRule struct {
	Column string
	Label  string
	Email  bool
}

var fieldRules = []fieldRule{
	{Column: ColumnCompanyName, Label: "Company name"},
	{Column: ColumnEmail, Label: "Email", Email: true},
	{Column: ColumnPhoneNumber, Label: "Phone number"},
}

// requiredLabel is used in "is required" messages.
func (f fieldRule) requiredLabel() string {
	if f.Email {
		return "Email address"
	}
	return f.Label
}

var validate = validator.New()

// ValidateHeaders checks that every required column is present.
// Matching is exact and case-sensitive; extra columns are allowed.
func ValidateHeaders(header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &InvalidHeaderError{Missing: missing}
	}
	return nil
}

// ValidateRow validates the three contact fields of a row.
// It is pure: no storage is consulted.
func ValidateRow(row Row) ValidationResult {
	result := ValidationResult{Valid: true}
	for _, rule := range fieldRules {
		result.Errors = append(result.Errors, validateField(rule, row.Get(rule.Column))...)
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateFields validates the editable fields of a create or update request.
// When partial is true, nil fields are skipped instead of reported as missing.
func ValidateFields(fields RecordFields, partial bool) ValidationResult {
	values := map[string]*string{
		ColumnCompanyName: fields.CompanyName,
		ColumnEmail:       fields.Email,
		ColumnPhoneNumber: fields.PhoneNumber,
	}

	result := ValidationResult{Valid: true}
	for _, rule := range fieldRules {
		v := values[rule.Column]
		if v == nil {
			if partial {
				continue
			}
			v = new(string)
		}
		result.Errors = append(result.Errors, validateField(rule, *v)...)
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// validateField applies the presence, length and email rules to one value.
// An empty value reports only the presence failure.
func validateField(rule fieldRule, value string) []ValidationError {
	if strings.TrimSpace(value) == "" {
		return []ValidationError{{
			Field:   rule.Column,
			Value:   value,
			Message: rule.requiredLabel() + " is required",
		}}
	}

	var errs []ValidationError
	if rule.Email && validate.Var(value, "email") != nil {
		errs = append(errs, ValidationError{
			Field:   rule.Column,
			Value:   value,
			Message: rule.Label + " must be a valid email address",
		})
	}
	if utf8.RuneCountInString(value) > MaxFieldLength {
		errs = append(errs, ValidationError{
			Field:   rule.Column,
			Value:   value,
			Message: fmt.Sprintf("%s cannot exceed %d characters", rule.Label, MaxFieldLength),
		})
	}
	return errs
}
