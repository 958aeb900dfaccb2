package repricer

import (
	"fmt"
	"strings"
)

// Error codes carried by the repricing errors.
const (
	ErrCodeSchemaInvalid = "SCHEMA_INVALID"
	ErrCodeRecordInvalid = "RECORD_INVALID"
	ErrCodeConfigInvalid = "CONFIG_INVALID"
)

// SchemaError means the uploaded file is the wrong file or template: a
// required column is missing or there are no data rows. It aborts the run
// before any row is processed.
type SchemaError struct {
	Missing []string `json:"missing,omitempty"`
	Reason  string   `json:"reason"`
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s (missing columns: %s)", ErrCodeSchemaInvalid, e.Reason, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrCodeSchemaInvalid, e.Reason)
}

func (e *SchemaError) Code() string { return ErrCodeSchemaInvalid }

// RecordParseError rejects a single row. Row is the 1-based data row index
// (the header is row 0).
type RecordParseError struct {
	Row    int    `json:"row"`
	SKU    string `json:"sku,omitempty"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("%s: row %d field %s=%q: %s", ErrCodeRecordInvalid, e.Row, e.Field, e.Value, e.Reason)
}

func (e *RecordParseError) Code() string { return ErrCodeRecordInvalid }

// ConfigError lists every problem found in a rule table. A run that receives
// an invalid table classifies nothing and passes every row through unchanged.
type ConfigError struct {
	Problems []string `json:"problems"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeConfigInvalid, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Code() string { return ErrCodeConfigInvalid }

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
