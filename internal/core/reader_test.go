package core

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, r *Reader) []Row {
	t.Helper()
	var rows []Row
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestReader_HeaderAndRows(t *testing.T) {
	input := "company_name,email,phone_number,notes\n" +
		"Acme,a@acme.com,555,vip\n" +
		"\n" +
		" , ,\n" +
		"Beta,b@beta.com\n"

	r, err := NewReader(strings.NewReader(input), ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	wantHeader := []string{"company_name", "email", "phone_number", "notes"}
	if got := r.Header(); strings.Join(got, ",") != strings.Join(wantHeader, ",") {
		t.Errorf("Header = %v, want %v", got, wantHeader)
	}

	rows := readAll(t, r)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (only the bare blank line skipped)", len(rows))
	}

	if got := rows[0].Triple(); got != (Triple{"Acme", "a@acme.com", "555"}) {
		t.Errorf("Triple = %+v", got)
	}
	if got := rows[0].Get("notes"); got != "vip" {
		t.Errorf("Get(notes) = %q, want vip", got)
	}
	if got := rows[1].Triple(); got != (Triple{" ", " ", ""}) {
		t.Errorf("blank-field row Triple = %+v", got)
	}
	if got := rows[2].Get(ColumnPhoneNumber); got != "" {
		t.Errorf("short row should pad missing values, got %q", got)
	}
	if got := rows[2].Get("absent"); got != "" {
		t.Errorf("Get(absent) = %q, want empty", got)
	}
	if f := rows[0].Fields(); len(f) != 4 || f["notes"] != "vip" {
		t.Errorf("Fields = %v", f)
	}
}

func TestReader_Semicolon(t *testing.T) {
	r, err := NewReader(strings.NewReader("company_name;email;phone_number\nA;a@x.io;1\n"), ReaderOptions{Comma: ';'})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rows := readAll(t, r)
	if len(rows) != 1 || rows[0].Get(ColumnEmail) != "a@x.io" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestReader_Errors(t *testing.T) {
	t.Run("empty stream", func(t *testing.T) {
		_, err := NewReader(strings.NewReader(""), ReaderOptions{})
		var mie *MalformedInputError
		if !errors.As(err, &mie) || !errors.Is(err, ErrEmptyFile) {
			t.Fatalf("err = %v, want MalformedInputError wrapping ErrEmptyFile", err)
		}
	})

	t.Run("duplicate header column", func(t *testing.T) {
		_, err := NewReader(strings.NewReader("email,email\n"), ReaderOptions{})
		var mie *MalformedInputError
		if !errors.As(err, &mie) || mie.Line != 1 {
			t.Fatalf("err = %v, want MalformedInputError at line 1", err)
		}
	})

	t.Run("bare quote mid stream", func(t *testing.T) {
		r, err := NewReader(strings.NewReader("company_name,email,phone_number\nA,a@x.io,1\nB,b\"x,2\n"), ReaderOptions{})
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		if _, err := r.Next(); err != nil {
			t.Fatalf("first row: %v", err)
		}
		_, err = r.Next()
		var mie *MalformedInputError
		if !errors.As(err, &mie) {
			t.Fatalf("err = %v, want MalformedInputError", err)
		}
		if mie.Line != 3 {
			t.Errorf("Line = %d, want 3", mie.Line)
		}
		if !strings.HasPrefix(err.Error(), "invalid csv at line 3") {
			t.Errorf("Error() = %q", err.Error())
		}
	})
}
