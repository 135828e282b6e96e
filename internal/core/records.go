package core

// records.go splits a bulk load document into tagged records.
//
// A document is newline separated; each non-blank line is trimmed and split on
// '|'. The first field, upper-cased, is the record tag. Blank and
// whitespace-only lines are skipped but still advance the physical line number,
// so outcomes point at the line the operator sees in their editor.
//
// Windows exports often start with a UTF-8 BOM, which is dropped. A line that
// is not valid UTF-8 stops the scan: the document is not text in the expected
// encoding and nothing after that point can be trusted. Lines have no length
// limit.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// Record tags.
const (
	TagOrganization = "O"
	TagSponsor      = "S"
	TagDriver       = "D"
)

// FieldDelimiter separates fields within a record line.
const FieldDelimiter = "|"

// ErrInvalidEncoding is reported by LineScanner.Err when a line is not valid
// UTF-8.
var ErrInvalidEncoding = errors.New("document is not valid UTF-8")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one non-blank line of a bulk load document.
type Record struct {
	Line   int      // 1-based physical line number
	Tag    string   // Fields[0] upper-cased
	Fields []string // all fields including the tag, untrimmed
}

// RawFields renders the field list for outcome details when a record could
// not be interpreted.
func (r Record) RawFields() string {
	return fmt.Sprintf("%q", r.Fields)
}

// LineScanner yields records lazily from an io.Reader.
//
// Usage:
//
//	sc := NewLineScanner(file)
//	for sc.Next() {
//	    rec := sc.Record()
//	}
//	if err := sc.Err(); err != nil { ... }
type LineScanner struct {
	reader  *bufio.Reader
	line    int
	current Record
	err     error
}

// NewLineScanner creates a scanner over r, skipping a leading UTF-8 BOM.
func NewLineScanner(r io.Reader) *LineScanner {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	return &LineScanner{reader: br}
}

// Next advances to the next non-blank line. It returns false at end of input,
// on a read error, or on a line that is not valid UTF-8; check Err afterwards.
func (s *LineScanner) Next() bool {
	for s.err == nil {
		raw, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			s.err = readError(s.line+1, err)
			return false
		}
		if raw == "" && err != nil {
			return false
		}
		s.line++

		if !utf8.ValidString(raw) {
			s.err = readError(s.line, ErrInvalidEncoding)
			return false
		}

		text := strings.TrimSpace(raw)
		if text == "" {
			if err != nil {
				return false
			}
			continue
		}

		fields := strings.Split(text, FieldDelimiter)
		s.current = Record{
			Line:   s.line,
			Tag:    strings.ToUpper(fields[0]),
			Fields: fields,
		}
		return true
	}
	return false
}

// Record returns the record produced by the last call to Next.
func (s *LineScanner) Record() Record {
	return s.current
}

// Err returns the first read or encoding error encountered, if any.
func (s *LineScanner) Err() error {
	return s.err
}

func readError(line int, err error) error {
	return fmt.Errorf("read bulk load document at line %d: %w", line, err)
}

// All returns an iterator over the remaining records.
// Check Err after the loop ends.
func (s *LineScanner) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for s.Next() {
			if !yield(s.current) {
				return
			}
		}
	}
}
