package repricer

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Schema names the input columns. Header matching is case-insensitive and
// ignores surrounding whitespace.
type Schema struct {
	SKU        string `mapstructure:"sku"`
	Price      string `mapstructure:"price"`
	Floor      string `mapstructure:"floor"`
	AutoTrack  string `mapstructure:"price_trace"`
	DaysListed string `mapstructure:"days_listed"`
	ListedAt   string `mapstructure:"listed_at"`
	// AgeFromSKU derives the listing date from a YYMMDD SKU prefix when no
	// age column is present.
	AgeFromSKU bool `mapstructure:"age_from_sku"`
}

// DefaultSchema matches the inventory export of the listing tool.
func DefaultSchema() Schema {
	return Schema{
		SKU:        "SKU",
		Price:      "price",
		Floor:      "akaji",
		AutoTrack:  "priceTrace",
		DaysListed: "days",
		ListedAt:   "listed_at",
		AgeFromSKU: true,
	}
}

var listedAtLayouts = []string{"2006-01-02", "2006/01/02", "20060102", "2006/1/2"}

type boundSchema struct {
	schema    Schema
	header    []string
	sku       int
	price     int
	floor     int
	autoTrack int
	days      int
	listedAt  int
}

// bind resolves column positions against a header row.
func (s Schema) bind(header []string) (*boundSchema, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := index[normalizeHeader(name)]; ok {
			return i
		}
		return -1
	}

	b := &boundSchema{
		schema:    s,
		header:    header,
		sku:       lookup(s.SKU),
		price:     lookup(s.Price),
		floor:     lookup(s.Floor),
		autoTrack: lookup(s.AutoTrack),
		days:      lookup(s.DaysListed),
		listedAt:  lookup(s.ListedAt),
	}

	var missing []string
	if b.sku < 0 {
		missing = append(missing, s.SKU)
	}
	if b.price < 0 {
		missing = append(missing, s.Price)
	}
	if b.floor < 0 {
		missing = append(missing, s.Floor)
	}
	if b.days < 0 && b.listedAt < 0 && !s.AgeFromSKU {
		missing = append(missing, s.DaysListed+"|"+s.ListedAt)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing, Reason: "required columns not found in header"}
	}
	return b, nil
}

// parse builds a ListingRecord from one data row. row is 1-based.
func (b *boundSchema) parse(row int, cells []string, runDate time.Time) (ListingRecord, *RecordParseError) {
	cell := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return CleanCell(cells[i])
	}
	fail := func(field, value, reason string) *RecordParseError {
		return &RecordParseError{Row: row, SKU: cell(b.sku), Field: field, Value: value, Reason: reason}
	}

	rec := ListingRecord{Row: row, SKU: cell(b.sku)}
	if rec.SKU == "" {
		return rec, fail(b.schema.SKU, "", "sku is empty")
	}

	var err error
	raw := cell(b.price)
	if rec.CurrentPrice, err = parseMoney(raw); err != nil {
		return rec, fail(b.schema.Price, raw, err.Error())
	}
	raw = cell(b.floor)
	if rec.FloorPrice, err = parseMoney(raw); err != nil {
		return rec, fail(b.schema.Floor, raw, err.Error())
	}

	if raw = cell(b.autoTrack); raw != "" {
		mode, err := parseWholeNumber(raw)
		if err != nil || !validTrackMode(mode) {
			return rec, fail(b.schema.AutoTrack, raw, "auto-track mode must be an integer 0..5")
		}
		rec.CurrentAutoTrackMode = mode
	}

	switch {
	case b.days >= 0:
		raw = cell(b.days)
		if raw == "" {
			rec.DaysSinceListed = UnknownAge
			break
		}
		days, err := parseWholeNumber(raw)
		if err != nil {
			return rec, fail(b.schema.DaysListed, raw, "days listed must be an integer")
		}
		rec.DaysSinceListed = ageFromDays(days)
	case b.listedAt >= 0:
		rec.DaysSinceListed = ageSince(parseListedAt(cell(b.listedAt)), runDate)
	default:
		rec.DaysSinceListed = ageSince(ListedAtFromSKU(rec.SKU), runDate)
	}
	return rec, nil
}

// ListedAtFromSKU reads the YYMMDD prefix of a SKU such as "250503-ABC".
// YY is always 20YY. It returns the zero time when the prefix is not a
// valid date.
func ListedAtFromSKU(sku string) time.Time {
	prefix, _, _ := strings.Cut(sku, "-")
	if len(prefix) < 6 {
		return time.Time{}
	}
	var n [3]int
	for i := range n {
		for _, c := range prefix[2*i : 2*i+2] {
			if c < '0' || c > '9' {
				return time.Time{}
			}
			n[i] = n[i]*10 + int(c-'0')
		}
	}
	year, month, day := 2000+n[0], time.Month(n[1]), n[2]
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}
	}
	return t
}

func parseListedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// Exports sometimes carry a time component.
	if date, _, ok := strings.Cut(s, " "); ok {
		s = date
	}
	for _, layout := range listedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func ageSince(listedAt, runDate time.Time) Age {
	if listedAt.IsZero() {
		return UnknownAge
	}
	days := int(dateOnly(runDate).Sub(dateOnly(listedAt)).Hours() / 24)
	return ageFromDays(days)
}

func ageFromDays(days int) Age {
	if days < 0 {
		return UnknownAge
	}
	return KnownAge(days)
}

// CleanCell strips the Excel text notation ="..." and surrounding spaces.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(CleanCell(h))
}

var moneyReplacer = strings.NewReplacer(",", "", "¥", "", "￥", "", "円", "")

func parseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errEmpty
	}
	d, err := decimal.NewFromString(moneyReplacer.Replace(s))
	if err != nil {
		return decimal.Zero, errNotNumeric
	}
	if d.IsNegative() {
		return decimal.Zero, errNegative
	}
	return d, nil
}

// parseWholeNumber accepts "3" and the "3.0" form spreadsheet exports emit.
func parseWholeNumber(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return 0, errNotNumeric
	}
	return int(d.IntPart()), nil
}

type parseErr string

func (e parseErr) Error() string { return string(e) }

const (
	errEmpty      parseErr = "value is empty"
	errNotNumeric parseErr = "value is not numeric"
	errNegative   parseErr = "value is negative"
)
