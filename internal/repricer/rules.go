package repricer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// RepriceRule maps the listing-age bucket (previous DaysFrom, DaysFrom] to
// an action.
type RepriceRule struct {
	DaysFrom      int    `json:"days_from"`
	Action        Action `json:"action"`
	AutoTrackMode int    `json:"value"`
	// Percent is the step used by ActionMarkdownIgnoreProfit.
	Percent int `json:"percent,omitempty"`
}

// SeasonalWindow is an inclusive range of calendar dates.
type SeasonalWindow struct {
	Start time.Time
	End   time.Time
}

// Contains compares calendar dates only; the time of day is ignored.
func (w SeasonalWindow) Contains(t time.Time) bool {
	d := dateOnly(t)
	return !d.Before(dateOnly(w.Start)) && !d.After(dateOnly(w.End))
}

// FirstFullWeekOfOctober returns the first Monday-to-Sunday week that lies
// entirely inside October of the given year.
func FirstFullWeekOfOctober(year int, loc *time.Location) SeasonalWindow {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, time.October, 1, 0, 0, 0, 0, loc)
	for start.Weekday() != time.Monday {
		start = start.AddDate(0, 0, 1)
	}
	return SeasonalWindow{Start: start, End: start.AddDate(0, 0, 6)}
}

// RuleConfig is the immutable snapshot a run is evaluated against.
type RuleConfig struct {
	SeasonalRuleEnabled bool
	// SeasonalWindow overrides the default first-full-week-of-October window.
	SeasonalWindow        *SeasonalWindow
	ProfitGuardMultiplier decimal.Decimal
	ExcludedSKUs          []string
	Rules                 []RepriceRule
	UpdatedAt             time.Time
}

// WindowFor returns the seasonal window that applies on the given run date.
func (c RuleConfig) WindowFor(runDate time.Time) SeasonalWindow {
	if c.SeasonalWindow != nil {
		return *c.SeasonalWindow
	}
	return FirstFullWeekOfOctober(runDate.Year(), runDate.Location())
}

func (c RuleConfig) multiplier() decimal.Decimal {
	if c.ProfitGuardMultiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.ProfitGuardMultiplier
}

func (c RuleConfig) excludedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.ExcludedSKUs))
	for _, sku := range c.ExcludedSKUs {
		set[sku] = struct{}{}
	}
	return set
}

// Validate checks the invariants the classifier relies on.
func (c RuleConfig) Validate() error {
	cerr := &ConfigError{}
	if len(c.Rules) == 0 {
		cerr.add("rule table is empty")
	}
	prev := 0
	for i, r := range c.Rules {
		if r.DaysFrom <= 0 {
			cerr.add("rule %d: days_from must be positive, got %d", i, r.DaysFrom)
		}
		if i > 0 && r.DaysFrom <= prev {
			cerr.add("rule %d: days_from %d does not increase past %d", i, r.DaysFrom, prev)
		}
		prev = r.DaysFrom
		if !r.Action.Valid() {
			cerr.add("rule %d: unknown action %q", i, r.Action)
		}
		if !validTrackMode(r.AutoTrackMode) {
			cerr.add("rule %d: auto-track mode %d outside 0..%d", i, r.AutoTrackMode, maxTrackMode)
		}
		// Zero means the default 1% step.
		if r.Action == ActionMarkdownIgnoreProfit && (r.Percent < 0 || r.Percent > 5) {
			cerr.add("rule %d: ignore-profit step %d%% outside 0..5", i, r.Percent)
		}
	}
	m := c.multiplier()
	if m.LessThan(decimal.NewFromInt(1)) || m.GreaterThan(decimal.NewFromInt(10)) {
		cerr.add("profit guard multiplier %s outside 1.0..10.0", m)
	}
	if w := c.SeasonalWindow; w != nil && w.End.Before(w.Start) {
		cerr.add("seasonal window ends before it starts")
	}
	return cerr.orNil()
}

// Document is the stored shape of the rule table. RepriceRules may be a list
// of rules or a map keyed by the bucket upper bound; Normalize accepts both.
type Document struct {
	ProfitGuardPercentage *float64        `json:"profit_guard_percentage,omitempty"`
	Q4RuleEnabled         bool            `json:"q4_rule_enabled"`
	ExcludedSKUs          []string        `json:"excluded_skus"`
	RepriceRules          json.RawMessage `json:"reprice_rules"`
	SeasonalWindow        *DocumentWindow `json:"seasonal_window,omitempty"`
	UpdatedAt             *time.Time      `json:"updated_at,omitempty"`
}

type DocumentWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type documentRule struct {
	DaysFrom   *int   `json:"days_from,omitempty"`
	Action     string `json:"action"`
	Value      *int   `json:"value,omitempty"`
	PriceTrace *int   `json:"priceTrace,omitempty"`
	Percent    *int   `json:"percent,omitempty"`
}

// ParseDocument decodes a stored rule document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode rule document: %w", err)
	}
	return doc, nil
}

// Normalize converts a stored document into the ordered rule table. The
// returned config is sorted by DaysFrom; any problem is reported as a
// *ConfigError listing all of them.
func Normalize(doc Document) (RuleConfig, error) {
	cerr := &ConfigError{}
	cfg := RuleConfig{
		SeasonalRuleEnabled:   doc.Q4RuleEnabled,
		ProfitGuardMultiplier: decimal.NewFromInt(1),
		ExcludedSKUs:          cleanSKUs(doc.ExcludedSKUs),
	}
	if doc.ProfitGuardPercentage != nil {
		cfg.ProfitGuardMultiplier = decimal.NewFromFloat(*doc.ProfitGuardPercentage)
	}
	if doc.UpdatedAt != nil {
		cfg.UpdatedAt = *doc.UpdatedAt
	}
	if w := doc.SeasonalWindow; w != nil {
		start, err1 := time.Parse(dateLayout, w.Start)
		end, err2 := time.Parse(dateLayout, w.End)
		if err1 != nil || err2 != nil {
			cerr.add("seasonal window dates must be YYYY-MM-DD, got %q..%q", w.Start, w.End)
		} else {
			cfg.SeasonalWindow = &SeasonalWindow{Start: start, End: end}
		}
	}

	raw, err := decodeRules(doc.RepriceRules)
	if err != nil {
		cerr.add("%v", err)
	}
	seen := make(map[int]bool, len(raw))
	for _, dr := range raw {
		rule, err := dr.toRule()
		if err != nil {
			cerr.add("%v", err)
			continue
		}
		if seen[rule.DaysFrom] {
			cerr.add("days_from %d appears more than once", rule.DaysFrom)
			continue
		}
		seen[rule.DaysFrom] = true
		cfg.Rules = append(cfg.Rules, rule)
	}
	sort.Slice(cfg.Rules, func(i, j int) bool { return cfg.Rules[i].DaysFrom < cfg.Rules[j].DaysFrom })

	if len(cerr.Problems) > 0 {
		return cfg, cerr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeRules(raw json.RawMessage) ([]documentRule, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var list []documentRule
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("reprice_rules list: %w", err)
		}
		return list, nil
	case '{':
		var byKey map[string]documentRule
		if err := json.Unmarshal(trimmed, &byKey); err != nil {
			return nil, fmt.Errorf("reprice_rules map: %w", err)
		}
		list := make([]documentRule, 0, len(byKey))
		for key, dr := range byKey {
			days, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return nil, fmt.Errorf("reprice_rules key %q is not a day count", key)
			}
			dr.DaysFrom = &days
			list = append(list, dr)
		}
		return list, nil
	}
	return nil, fmt.Errorf("reprice_rules must be a list or a map")
}

func (dr documentRule) toRule() (RepriceRule, error) {
	if dr.DaysFrom == nil {
		return RepriceRule{}, fmt.Errorf("rule for action %q has no days_from", dr.Action)
	}
	action, step, err := ParseAction(dr.Action)
	if err != nil {
		return RepriceRule{}, fmt.Errorf("days_from %d: %w", *dr.DaysFrom, err)
	}
	rule := RepriceRule{DaysFrom: *dr.DaysFrom, Action: action}
	switch action {
	case ActionAutoTrack:
		switch {
		case dr.Value != nil:
			rule.AutoTrackMode = *dr.Value
		case dr.PriceTrace != nil:
			rule.AutoTrackMode = *dr.PriceTrace
		}
	case ActionMarkdownIgnoreProfit:
		rule.Percent = 1
		if step > 0 {
			rule.Percent = step
		}
		if dr.Percent != nil {
			rule.Percent = *dr.Percent
		}
	}
	// Any auto-track value left on a non-tracking rule is stale and dropped.
	return rule, nil
}

// Document renders the config back into its stored list shape.
func (c RuleConfig) Document() Document {
	m, _ := c.multiplier().Float64()
	doc := Document{
		ProfitGuardPercentage: &m,
		Q4RuleEnabled:         c.SeasonalRuleEnabled,
		ExcludedSKUs:          append([]string{}, c.ExcludedSKUs...),
	}
	if !c.UpdatedAt.IsZero() {
		at := c.UpdatedAt
		doc.UpdatedAt = &at
	}
	if w := c.SeasonalWindow; w != nil {
		doc.SeasonalWindow = &DocumentWindow{Start: w.Start.Format(dateLayout), End: w.End.Format(dateLayout)}
	}
	rules := make([]documentRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		days, value := r.DaysFrom, r.AutoTrackMode
		dr := documentRule{DaysFrom: &days, Action: string(r.Action), Value: &value}
		if r.Action == ActionMarkdownIgnoreProfit {
			pct := r.Percent
			dr.Percent = &pct
		}
		rules = append(rules, dr)
	}
	doc.RepriceRules, _ = json.Marshal(rules)
	return doc
}

// DefaultRuleConfig is the table a fresh install starts from: monthly
// buckets up to a year plus an open-ended tail, all holding price.
func DefaultRuleConfig() RuleConfig {
	cfg := RuleConfig{ProfitGuardMultiplier: decimal.NewFromInt(1)}
	for days := 30; days <= 360; days += 30 {
		cfg.Rules = append(cfg.Rules, RepriceRule{DaysFrom: days, Action: ActionHold})
	}
	cfg.Rules = append(cfg.Rules, RepriceRule{DaysFrom: 999, Action: ActionHold})
	return cfg
}

// Clone returns a deep copy so callers can hand out snapshots.
func (c RuleConfig) Clone() RuleConfig {
	out := c
	out.Rules = append([]RepriceRule(nil), c.Rules...)
	out.ExcludedSKUs = append([]string(nil), c.ExcludedSKUs...)
	if c.SeasonalWindow != nil {
		w := *c.SeasonalWindow
		out.SeasonalWindow = &w
	}
	return out
}

func cleanSKUs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
