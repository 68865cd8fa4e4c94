package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// MalformedInputError reports a stream that cannot be parsed as delimited text.
type MalformedInputError struct {
	Line int // 0 when unknown
	Err  error
}

func (e *MalformedInputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// ErrEmptyFile is wrapped by MalformedInputError when the stream has no header row.
var ErrEmptyFile = errors.New("empty file")

// ReaderOptions controls CSV dialect handling.
type ReaderOptions struct {
	Comma      rune // default ','
	LazyQuotes bool
}

// Row is one data row keyed by header name.
type Row struct {
	header []string
	values []string
}

// Get returns the value for column name, or "" if the column is absent.
func (r Row) Get(name string) string {
	for i, h := range r.header {
		if h == name {
			return r.values[i]
		}
	}
	return ""
}

// Fields returns the row as a map from header name to value.
func (r Row) Fields() map[string]string {
	m := make(map[string]string, len(r.header))
	for i, h := range r.header {
		m[h] = r.values[i]
	}
	return m
}

// Triple extracts the match key from the row.
func (r Row) Triple() Triple {
	return Triple{
		CompanyName: r.Get(ColumnCompanyName),
		Email:       r.Get(ColumnEmail),
		PhoneNumber: r.Get(ColumnPhoneNumber),
	}
}

// NewRow builds a row from parallel header and value slices.
// Missing values are padded with "".
func NewRow(header, values []string) Row {
	v := make([]string, len(header))
	copy(v, values)
	return Row{header: header, values: v}
}

// Reader streams rows from a delimited file with a header row.
// Rows are produced lazily; re-reading requires a new Reader over a new stream.
type Reader struct {
	csv    *csv.Reader
	header []string
}

// NewReader reads the header row from r.
// Returns a *MalformedInputError if the stream is empty, the header repeats a
// column name, or the header cannot be parsed.
func NewReader(r io.Reader, opts ReaderOptions) (*Reader, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.LazyQuotes = opts.LazyQuotes
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &MalformedInputError{Err: ErrEmptyFile}
	}
	if err != nil {
		return nil, malformed(err)
	}

	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, dup := seen[h]; dup {
			return nil, &MalformedInputError{Line: 1, Err: fmt.Errorf("duplicate column %q in header", h)}
		}
		seen[h] = struct{}{}
	}

	return &Reader{csv: cr, header: header}, nil
}

// Header returns the header column names in file order.
func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next row, or io.EOF when the stream is exhausted.
// Only bare blank lines are skipped; a row of empty fields is returned as is.
func (r *Reader) Next() (Row, error) {
	for {
		rec, err := r.csv.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, malformed(err)
		}
		if isEmptyRow(rec) {
			continue
		}
		return NewRow(r.header, rec), nil
	}
}

// malformed converts csv parse errors to MalformedInputError and passes
// other read failures through unchanged.
func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &MalformedInputError{Line: pe.Line, Err: pe.Err}
	}
	return err
}

func isEmptyRow(row []string) bool {
	return len(row) == 1 && row[0] == ""
}
