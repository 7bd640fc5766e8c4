// Package dnsdump reads the whitespace-separated "FQDN CLASS TYPE VALUE"
// text format a DNS dump is captured in, validating CLASS and TYPE
// against the real DNS vocabulary and skipping any line whose CLASS or
// TYPE isn't recognized before handing a record to the ticket engine.
package dnsdump

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"
)

// Record is one line of a DNS dump: a query name, its class and type,
// and the answer value (for A-records, a dotted IPv4 literal).
type Record struct {
	FQDN  string
	Class string
	Type  string
	Value string
}

// MalformedLineError reports a dump line that does not split into
// exactly four whitespace-separated fields.
type MalformedLineError struct {
	Line   string
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed dump line %q: %s", e.Line, e.Reason)
}

// ReadAll reads every record from r, skipping lines with an
// unrecognized CLASS or TYPE and returning *MalformedLineError for the
// first line with the wrong field count.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	s := NewScanner(r)
	for s.Scan() {
		records = append(records, s.Record())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Scanner reads records from a dump one line at a time, in the style of
// bufio.Scanner.
type Scanner struct {
	scanner *bufio.Scanner
	current Record
	err     error
}

// NewScanner wraps r for line-at-a-time record reading.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Scan advances to the next record, returning false at EOF or on the
// first structurally malformed line (wrong field count). A line with
// an unrecognized CLASS or TYPE is untrusted wire noise, not a
// structural fault, so it is skipped rather than treated as fatal —
// the same policy the ticket engine applies to MalformedName/MalformedIP.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		record, skip, err := parseLine(line)
		if err != nil {
			s.err = err
			return false
		}
		if skip {
			continue
		}
		s.current = record
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Record returns the record most recently produced by Scan.
func (s *Scanner) Record() Record { return s.current }

// Err returns the first error encountered, if any, distinguishing a
// malformed line from an underlying I/O failure.
func (s *Scanner) Err() error { return s.err }

// parseLine splits a dump line into a Record. A wrong field count is a
// structural fault (err != nil); an unrecognized CLASS or TYPE is
// skipped (skip == true, err == nil) rather than failing the line,
// since CLASS/TYPE are wire noise the core never trusted in the first
// place.
func parseLine(line string) (record Record, skip bool, err error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Record{}, false, &MalformedLineError{Line: line, Reason: fmt.Sprintf("want 4 fields, got %d", len(fields))}
	}
	record = Record{FQDN: fields[0], Class: fields[1], Type: fields[2], Value: fields[3]}

	if _, ok := dns.StringToClass[strings.ToUpper(record.Class)]; !ok {
		return Record{}, true, nil
	}
	if _, ok := dns.StringToType[strings.ToUpper(record.Type)]; !ok {
		return Record{}, true, nil
	}
	return record, false, nil
}
