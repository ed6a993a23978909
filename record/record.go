// Package record turns omprog input lines into records ready for publishing.
//
// An input line has the shape
//
//	<json-metadata>"}<optional-space><payload>\n
//
// The first occurrence of the two bytes `"}` ends the metadata object. Everything up to
// and including them is decoded as a JSON object of string values; the rest of the line,
// without the trailing newline and one optional leading space, is the opaque payload.
// This framing is part of the contract with the rsyslog template and is kept exactly.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/c360/omprogbridge/errors"
	"github.com/c360/omprogbridge/pkg/timestamp"
)

// DefaultTimestampField is the metadata key holding the event time when timestamp
// parsing is enabled.
const DefaultTimestampField = "logtime"

var delimiter = []byte(`"}`)

// Record is one parsed log line. It is immutable once returned by Parse.
type Record struct {
	Payload    []byte
	Attributes map[string]string

	eventTime    int64
	hasEventTime bool
}

// New builds a record, copying payload and attributes.
func New(payload []byte, attributes map[string]string) Record {
	return Record{
		Payload:    bytes.Clone(payload),
		Attributes: maps.Clone(attributes),
	}
}

// WithEventTime returns a copy of r carrying the event time in Unix milliseconds.
func (r Record) WithEventTime(ms int64) Record {
	r.eventTime = ms
	r.hasEventTime = true
	return r
}

// EventTime returns the event timestamp in Unix milliseconds, if one was extracted.
func (r Record) EventTime() (int64, bool) {
	return r.eventTime, r.hasEventTime
}

// ParseError reports a line that could not be split into metadata and payload.
// The line is dropped: redelivering it would fail the same way forever.
type ParseError struct {
	Line []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser splits lines into records. The zero value parses without timestamp extraction.
type Parser struct {
	// ParseTimestamp enables extraction of the event time from TimestampField.
	ParseTimestamp bool
	// TimestampField defaults to DefaultTimestampField.
	TimestampField string
}

// Parse converts one raw line into a Record. The returned record does not alias line.
func (p *Parser) Parse(line []byte) (Record, error) {
	end := bytes.Index(line, delimiter)
	if end < 0 {
		return Record{}, p.fail(line, fmt.Errorf("metadata delimiter %q not found: %w", delimiter, errors.ErrParsingFailed))
	}
	end += len(delimiter)

	attrs, err := decodeMetadata(line[:end])
	if err != nil {
		return Record{}, p.fail(line, err)
	}

	payload := line[end:]
	payload = bytes.TrimSuffix(payload, []byte{'\n'})
	payload = bytes.TrimPrefix(payload, []byte{' '})

	rec := Record{
		Payload:    bytes.Clone(payload),
		Attributes: attrs,
	}
	if rec.Payload == nil {
		rec.Payload = []byte{}
	}

	if p.ParseTimestamp {
		rec = p.extractTimestamp(rec)
	}
	return rec, nil
}

// extractTimestamp moves the timestamp field into the record's event time.
// Any failure leaves the attribute untouched and the event time unset.
func (p *Parser) extractTimestamp(rec Record) Record {
	field := p.TimestampField
	if field == "" {
		field = DefaultTimestampField
	}

	raw, ok := rec.Attributes[field]
	if !ok {
		return rec
	}
	ms, ok := timestamp.ParseISO8601(raw)
	if !ok {
		return rec
	}

	delete(rec.Attributes, field)
	return rec.WithEventTime(ms)
}

func (p *Parser) fail(line []byte, err error) error {
	return &ParseError{Line: bytes.Clone(line), Err: err}
}

// decodeMetadata decodes the JSON object prefix. Invalid UTF-8 is replaced with
// U+FFFD before decoding so binary garbage in metadata cannot abort the decoder midway.
func decodeMetadata(raw []byte) (map[string]string, error) {
	if !utf8.Valid(raw) {
		raw = []byte(strings.ToValidUTF8(string(raw), string(utf8.RuneError)))
	}

	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Parser", "Parse", "decode metadata")
	}
	if attrs == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: metadata is not an object", errors.ErrParsingFailed),
			"Parser", "Parse", "decode metadata")
	}
	return attrs, nil
}
