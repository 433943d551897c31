package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"

	"github.com/flowforge/pipeline/streamio"
)

// DelimitedOptions configures DelimitedDecoder/DelimitedEncoder. It mirrors
// the read-option surface of a typical delimiter-separated format reader:
// callers choose the field separator, whether the first record is a header
// row shared by every subsequent line, and how ragged records are handled.
type DelimitedOptions struct {
	// Delimiter is the field separator. Default: ','.
	Delimiter rune

	// HasHeaders, when true, treats the first line received as the header
	// row and re-synthesizes it ahead of every subsequent line so each
	// line can be parsed independently as a one-row CSV document.
	HasHeaders bool

	// FieldsPerRecord mirrors encoding/csv.Reader.FieldsPerRecord: 0
	// infers the count from the first record, a negative value allows a
	// variable number of fields per record (the "flexible" reader mode).
	FieldsPerRecord int

	// Comment, if non-zero, marks lines to be ignored as comments.
	Comment rune
}

// DefaultDelimitedOptions returns comma-separated, headered options.
func DefaultDelimitedOptions() DelimitedOptions {
	return DelimitedOptions{Delimiter: ',', HasHeaders: true}
}

// DelimitedDecoder turns a byte Source of individual lines into a Source of
// string records (header name -> field value). Because the underlying
// transport delivers one line at a time rather than the whole document,
// the decoder captures the first line as the header and re-synthesizes a
// two-line document ("header\nline") for every following line so each can
// still be parsed with encoding/csv.
type DelimitedDecoder struct {
	Options DelimitedOptions
}

// NewDelimitedDecoder returns a decoder configured with opts.
func NewDelimitedDecoder(opts DelimitedOptions) DelimitedDecoder {
	return DelimitedDecoder{Options: opts}
}

// Decode wraps upline, emitting one map[string]string per decoded line. If
// HasHeaders is false, fields are keyed by their zero-based column index
// formatted as a decimal string.
func (d DelimitedDecoder) Decode(name string, upline streamio.Source[[]byte]) streamio.Source[map[string]string] {
	opts := d.Options
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}

	state := &delimitedDecodeState{opts: opts}
	return &decodedSource[map[string]string]{
		name:    name,
		upline:  upline,
		convert: state.convert,
	}
}

type delimitedDecodeState struct {
	mu         sync.Mutex
	opts       DelimitedOptions
	headerLine string
	headers    []string
}

func (s *delimitedDecodeState) convert(_ string, index uint64, line []byte) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.HasHeaders && index == 0 {
		s.headerLine = string(line)
		s.headers = splitRecord(s.headerLine, s.opts)
		return nil, errSkipItem
	}

	if s.opts.Comment != 0 && strings.HasPrefix(string(line), string(s.opts.Comment)) {
		return nil, errSkipItem
	}

	var data string
	if s.opts.HasHeaders {
		data = s.headerLine + "\n" + string(line)
	} else {
		data = string(line)
	}

	r := csv.NewReader(strings.NewReader(data))
	r.Comma = s.opts.Delimiter
	r.FieldsPerRecord = s.opts.FieldsPerRecord
	if s.opts.Comment != 0 {
		r.Comment = s.opts.Comment
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fmt.Errorf("parse record: %w", err)
		}
		records = append(records, rec)
	}

	var fields []string
	if s.opts.HasHeaders {
		if len(records) < 2 {
			return nil, fmt.Errorf("could not pull a record out of the line")
		}
		fields = records[1]
	} else {
		if len(records) < 1 {
			return nil, fmt.Errorf("could not pull a record out of the line")
		}
		fields = records[0]
	}

	out := make(map[string]string, len(fields))
	for i, v := range fields {
		key := fmt.Sprintf("%d", i)
		if s.opts.HasHeaders && i < len(s.headers) {
			key = s.headers[i]
		}
		out[key] = v
	}
	return out, nil
}

func splitRecord(line string, opts DelimitedOptions) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = opts.Delimiter
	rec, err := r.Read()
	if err != nil {
		return nil
	}
	return rec
}

// DelimitedEncoder turns a map[string]string Output into a byte Output.
// The header row is written once, derived from the first record's keys in
// the order Header lists (or map iteration order if Header is empty), and
// every subsequent record is written using that same column order.
type DelimitedEncoder struct {
	Options DelimitedOptions
	Header  []string
}

// NewDelimitedEncoder returns an encoder configured with opts and an
// explicit column order.
func NewDelimitedEncoder(opts DelimitedOptions, header []string) DelimitedEncoder {
	return DelimitedEncoder{Options: opts, Header: header}
}

func (e DelimitedEncoder) Encode(name string, downline streamio.Output[[]byte]) streamio.Output[map[string]string] {
	opts := e.Options
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	state := &delimitedEncodeState{opts: opts, header: e.Header}

	return &encodedOutput[map[string]string]{
		name:     name,
		downline: downline,
		convert:  state.convert,
	}
}

type delimitedEncodeState struct {
	mu          sync.Mutex
	opts        DelimitedOptions
	header      []string
	wroteHeader bool
}

func (s *delimitedEncodeState) convert(record map[string]string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.header) == 0 {
		s.header = make([]string, 0, len(record))
		for k := range record {
			s.header = append(s.header, k)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = s.opts.Delimiter

	if s.opts.HasHeaders && !s.wroteHeader {
		if err := w.Write(s.header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		s.wroteHeader = true
	}

	row := make([]string, len(s.header))
	for i, key := range s.header {
		row[i] = record[key]
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
