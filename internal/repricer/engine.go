package repricer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/codec"
	"github.com/sedori-tools/repricer/internal/log"
)

// Codec turns raw bytes into a table and back.
type Codec interface {
	Decode(data []byte) (*codec.Table, error)
	Encode(t *codec.Table) (*codec.Payload, error)
	EncodeReport(t *codec.Table) (*codec.Payload, error)
}

// Mode distinguishes a dry run from a run that renders output files.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeApply   Mode = "apply"
)

// Summary counts what a run did. TotalRows excludes rows that failed to
// parse; those are counted in FailedRows.
type Summary struct {
	TotalRows            int `json:"total_rows"`
	UpdatedRows          int `json:"updated_rows"`
	ExcludedRows         int `json:"excluded_rows"`
	SeasonalSwitchedRows int `json:"seasonal_switched_rows"`
	DateUnknownRows      int `json:"date_unknown_rows"`
	FailedRows           int `json:"failed_rows"`
}

func (s *Summary) add(item ResultItem) {
	s.TotalRows++
	switch {
	case item.DateUnknown:
		s.DateUnknownRows++
	case item.Action == ActionExclude:
		s.ExcludedRows++
	}
	if item.Seasonal {
		s.SeasonalSwitchedRows++
	}
	if item.Changed {
		s.UpdatedRows++
	}
}

// ResultItem is the outcome for one listing.
type ResultItem struct {
	Row                  int             `json:"row"`
	SKU                  string          `json:"sku"`
	DaysSinceListed      Age             `json:"days_since_listed"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	NewPrice             decimal.Decimal `json:"new_price"`
	FloorPrice           decimal.Decimal `json:"floor_price"`
	Action               Action          `json:"action"`
	RuleAction           Action          `json:"rule_action,omitempty"`
	CurrentAutoTrackMode int             `json:"current_auto_track_mode"`
	// NewAutoTrackMode is set only when the mode changes.
	NewAutoTrackMode *int   `json:"new_auto_track_mode,omitempty"`
	Changed          bool   `json:"changed"`
	Seasonal         bool   `json:"seasonal"`
	FloorApplied     bool   `json:"floor_applied"`
	DateUnknown      bool   `json:"date_unknown"`
	Reason           string `json:"reason"`

	source []string
}

// Result is everything a run produces. Updated and Report are only set in
// apply mode.
type Result struct {
	Mode     Mode                `json:"mode"`
	RunDate  time.Time           `json:"run_date"`
	Items    []ResultItem        `json:"items"`
	Summary  Summary             `json:"summary"`
	Failures []*RecordParseError `json:"failures,omitempty"`
	// ConfigProblems is set when the rule table was unusable and every row
	// was passed through unchanged.
	ConfigProblems []string `json:"config_problems,omitempty"`
	SourceEncoding string   `json:"source_encoding"`

	Updated *codec.Payload `json:"updated,omitempty"`
	Report  *codec.Payload `json:"report,omitempty"`
}

// Engine evaluates listing exports against a rule table. An Engine holds no
// per-run state and may be shared between goroutines.
type Engine struct {
	codec  Codec
	schema Schema
	logger *zap.Logger
}

func NewEngine(c Codec, schema Schema, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{codec: c, schema: schema, logger: logger}
}

// Preview evaluates data without rendering output files.
func (e *Engine) Preview(ctx context.Context, data []byte, cfg RuleConfig, runDate time.Time) (*Result, error) {
	return e.Run(ctx, data, cfg, runDate, ModePreview)
}

// Apply evaluates data and renders the updated listing file and the report.
func (e *Engine) Apply(ctx context.Context, data []byte, cfg RuleConfig, runDate time.Time) (*Result, error) {
	return e.Run(ctx, data, cfg, runDate, ModeApply)
}

// Run decodes data and evaluates it. Both modes share the same evaluation;
// apply only adds rendering.
func (e *Engine) Run(ctx context.Context, data []byte, cfg RuleConfig, runDate time.Time, mode Mode) (*Result, error) {
	table, err := e.codec.Decode(data)
	if err != nil {
		var cerr *codec.CodecError
		if !errors.As(err, &cerr) {
			err = &codec.CodecError{Op: "decode", Err: err}
		}
		return nil, err
	}

	res, err := e.Evaluate(ctx, table, cfg, runDate)
	if err != nil {
		return nil, err
	}
	res.Mode = mode
	if mode == ModeApply {
		if err := e.render(res, table); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Evaluate classifies and resolves every row of an already decoded table.
func (e *Engine) Evaluate(ctx context.Context, table *codec.Table, cfg RuleConfig, runDate time.Time) (*Result, error) {
	if table == nil || len(table.Header) == 0 {
		return nil, &SchemaError{Reason: "file has no header row"}
	}
	bound, err := e.schema.bind(table.Header)
	if err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, &SchemaError{Reason: "file has no data rows"}
	}

	res := &Result{
		RunDate:        runDate,
		Items:          make([]ResultItem, 0, len(table.Rows)),
		SourceEncoding: table.Encoding,
	}

	lg := log.With(ctx, e.logger)
	rulesUsable := true
	if err := cfg.Validate(); err != nil {
		rulesUsable = false
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			res.ConfigProblems = cerr.Problems
		}
		lg.Warn("Rule table unusable, passing every listing through",
			zap.Error(err))
	}
	excluded := cfg.excludedSet()
	seen := make(map[string]int, len(table.Rows))

	for i, cells := range table.Rows {
		row := i + 1
		rec, perr := bound.parse(row, cells, runDate)
		if perr == nil {
			if first, dup := seen[rec.SKU]; dup {
				perr = &RecordParseError{Row: row, SKU: rec.SKU, Field: e.schema.SKU, Value: rec.SKU,
					Reason: fmt.Sprintf("duplicate sku, first seen on row %d", first)}
			}
		}
		if perr != nil {
			res.Failures = append(res.Failures, perr)
			res.Summary.FailedRows++
			lg.Warn("Skipping unparsable listing row",
				zap.Int("row", perr.Row),
				zap.String("sku", perr.SKU),
				zap.String("field", perr.Field),
				zap.String("value", perr.Value),
				zap.String("reason", perr.Reason))
			continue
		}
		seen[rec.SKU] = row

		item := evaluateRecord(rec, cfg, rulesUsable, excluded, runDate)
		item.source = cells
		res.Summary.add(item)
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func evaluateRecord(rec ListingRecord, cfg RuleConfig, rulesUsable bool, excluded map[string]struct{}, runDate time.Time) ResultItem {
	item := ResultItem{
		Row:                  rec.Row,
		SKU:                  rec.SKU,
		DaysSinceListed:      rec.DaysSinceListed,
		CurrentPrice:         rec.CurrentPrice,
		NewPrice:             rec.CurrentPrice,
		FloorPrice:           rec.FloorPrice,
		Action:               ActionHold,
		CurrentAutoTrackMode: rec.CurrentAutoTrackMode,
	}

	var rule RepriceRule
	matched := false
	if rulesUsable {
		rule, matched = Classify(rec.DaysSinceListed, cfg.Rules)
	}
	if !matched {
		item.DateUnknown = true
		item.Reason = "listing date unknown"
		if !rulesUsable {
			item.Reason = "rule table unusable"
		}
		return item
	}
	item.RuleAction = rule.Action

	if _, ok := excluded[rec.SKU]; ok {
		item.Action = ActionExclude
		item.Reason = "sku on exclusion list"
		return item
	}

	res := Resolve(rec, rule, cfg, runDate)
	item.Action = res.Action
	item.NewPrice = res.NewPrice
	item.Seasonal = res.Seasonal
	item.FloorApplied = res.FloorApplied
	item.Reason = fmt.Sprintf("%s (bucket <= %d days)", res.Reason, rule.DaysFrom)
	if res.Action != ActionExclude && res.NewAutoTrackMode != rec.CurrentAutoTrackMode {
		mode := res.NewAutoTrackMode
		item.NewAutoTrackMode = &mode
	}
	item.Changed = res.Changed(rec)
	return item
}
