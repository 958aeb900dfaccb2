package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encoding identifiers accepted in configuration and reported on payloads.
const (
	EncodingAuto    = "auto"
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-sig"
	EncodingCP932   = "cp932"
	EncodingXLSX    = "xlsx"
)

// Table is a decoded sheet: one header row followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string
	// Encoding is the source encoding the table was decoded from.
	Encoding string
}

// Payload is an encoded file together with the encoding it was written in,
// so callers can persist or transmit it without guessing.
type Payload struct {
	Data        []byte `json:"-"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"content_type"`
}

// Config selects the input and output encodings.
type Config struct {
	InputEncoding  string `mapstructure:"input_encoding"`
	OutputEncoding string `mapstructure:"output_encoding"`
}

// DefaultConfig reads whatever the listing tool exports and writes the
// Shift_JIS the marketplace upload expects.
func DefaultConfig() Config {
	return Config{InputEncoding: EncodingAuto, OutputEncoding: EncodingCP932}
}

// CSVCodec reads listing exports and writes marketplace upload files.
type CSVCodec struct {
	cfg Config
}

// Validate reports an unsupported encoding. Empty values are allowed and
// fall back to the defaults.
func (c Config) Validate() error {
	switch c.InputEncoding {
	case "", EncodingAuto, EncodingUTF8, EncodingUTF8BOM, EncodingCP932:
	default:
		return fmt.Errorf("unsupported input encoding %q", c.InputEncoding)
	}
	switch c.OutputEncoding {
	case "", EncodingUTF8, EncodingUTF8BOM, EncodingCP932:
	default:
		return fmt.Errorf("unsupported output encoding %q", c.OutputEncoding)
	}
	return nil
}

// New validates cfg and returns a codec.
func New(cfg Config) (*CSVCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.InputEncoding == "" {
		cfg.InputEncoding = EncodingAuto
	}
	if cfg.OutputEncoding == "" {
		cfg.OutputEncoding = EncodingCP932
	}
	return &CSVCodec{cfg: cfg}, nil
}

// OutputEncoding is the encoding Encode writes.
func (c *CSVCodec) OutputEncoding() string { return c.cfg.OutputEncoding }

// Decode parses a CSV or XLSX payload. Blank lines are dropped.
func (c *CSVCodec) Decode(data []byte) (*Table, error) {
	if isZip(data) {
		return decodeXLSX(data)
	}

	text, enc, err := decodeText(data, c.cfg.InputEncoding)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	table := &Table{Encoding: enc}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &CodecError{Op: "decode", Encoding: enc, Err: err}
		}
		if blank(record) {
			continue
		}
		if table.Header == nil {
			table.Header = record
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// Encode writes t for re-upload: every field quoted, CRLF line endings,
// in the configured output encoding.
func (c *CSVCodec) Encode(t *Table) (*Payload, error) {
	return c.encode(t, false)
}

// EncodeReport is Encode for files meant to be opened by people; cells that
// a spreadsheet would evaluate as formulas are escaped.
func (c *CSVCodec) EncodeReport(t *Table) (*Payload, error) {
	return c.encode(t, true)
}

func (c *CSVCodec) encode(t *Table, escape bool) (*Payload, error) {
	var buf bytes.Buffer
	w := newQuoteAllWriter(&buf)
	header := t.Header
	if escape {
		header = EscapeRow(header)
	}
	w.Write(header)
	for _, row := range t.Rows {
		if escape {
			row = EscapeRow(row)
		}
		w.Write(row)
	}

	data, err := encodeText(buf.String(), c.cfg.OutputEncoding)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Data:        data,
		Encoding:    c.cfg.OutputEncoding,
		ContentType: contentType(c.cfg.OutputEncoding),
	}, nil
}

func contentType(enc string) string {
	if enc == EncodingCP932 {
		return "text/csv; charset=Shift_JIS"
	}
	return "text/csv; charset=utf-8"
}

func isZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
