package repricer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func record(sku string, price, floor int64, days int, mode int) ListingRecord {
	return ListingRecord{
		SKU:                  sku,
		CurrentPrice:         dec(price),
		FloorPrice:           dec(floor),
		CurrentAutoTrackMode: mode,
		DaysSinceListed:      KnownAge(days),
	}
}

var offSeason = time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC)

func TestResolve_HoldLeavesListingUntouched(t *testing.T) {
	cfg := DefaultRuleConfig()
	for _, rec := range []ListingRecord{
		record("A", 1000, 900, 10, 0),
		record("B", 1, 0, 500, 3),
		record("C", 98765, 100000, 45, 5),
	} {
		res := Resolve(rec, RepriceRule{DaysFrom: 30, Action: ActionHold}, cfg, offSeason)
		assert.True(t, res.NewPrice.Equal(rec.CurrentPrice), rec.SKU)
		assert.Equal(t, rec.CurrentAutoTrackMode, res.NewAutoTrackMode, rec.SKU)
		assert.False(t, res.Changed(rec), rec.SKU)
	}
}

func TestResolve_MarkdownNeverBreaksFloor(t *testing.T) {
	cfg := DefaultRuleConfig()
	prices := []int64{1, 99, 100, 999, 1000, 12345}
	floors := []int64{0, 50, 98, 990, 1000, 20000}
	for pct := 1; pct <= 5; pct++ {
		action, _, err := ParseAction("markdown" + string(rune('0'+pct)) + "pct")
		assert.NoError(t, err)
		for _, p := range prices {
			for _, f := range floors {
				rec := record("X", p, f, 40, 0)
				res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: action}, cfg, offSeason)
				assert.True(t, res.NewPrice.GreaterThanOrEqual(rec.FloorPrice),
					"pct=%d price=%d floor=%d got %s", pct, p, f, res.NewPrice)
			}
		}
	}
}

func TestResolve_MarkdownFloorBinds(t *testing.T) {
	rec := record("A1", 1000, 985, 45, 0)
	res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown2}, DefaultRuleConfig(), offSeason)

	assert.Equal(t, ActionMarkdown2, res.Action)
	assert.True(t, res.NewPrice.Equal(dec(985)), "got %s", res.NewPrice)
	assert.True(t, res.FloorApplied)
	assert.True(t, res.Changed(rec))
}

func TestResolve_MarkdownBelowFloorRaisesToFloor(t *testing.T) {
	rec := record("P1", 900, 1000, 45, 0)
	res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown1}, DefaultRuleConfig(), offSeason)

	assert.True(t, res.NewPrice.Equal(dec(1000)), "got %s", res.NewPrice)
	assert.True(t, res.FloorApplied)
	assert.True(t, res.Changed(rec))
}

func TestResolve_MarkdownRoundsDown(t *testing.T) {
	rec := record("A", 1999, 0, 45, 0)
	res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown3}, DefaultRuleConfig(), offSeason)
	// 1999 * 0.97 = 1939.03
	assert.True(t, res.NewPrice.Equal(dec(1939)), "got %s", res.NewPrice)
	assert.False(t, res.FloorApplied)
}

func TestResolve_IgnoreProfitMayGoBelowFloor(t *testing.T) {
	rec := record("A", 1000, 1000, 45, 0)
	rule := RepriceRule{DaysFrom: 60, Action: ActionMarkdownIgnoreProfit, Percent: 5}
	res := Resolve(rec, rule, DefaultRuleConfig(), offSeason)
	assert.True(t, res.NewPrice.Equal(dec(950)), "got %s", res.NewPrice)
	assert.True(t, res.NewPrice.LessThan(rec.FloorPrice))
}

func TestResolve_ExcludePassesThrough(t *testing.T) {
	rec := record("A", 1000, 500, 400, 2)
	res := Resolve(rec, RepriceRule{DaysFrom: 360, Action: ActionExclude}, DefaultRuleConfig(), offSeason)
	assert.True(t, res.NewPrice.Equal(rec.CurrentPrice))
	assert.Equal(t, 2, res.NewAutoTrackMode)
	assert.False(t, res.Changed(rec))
}

func TestResolve_AutoTrackSetsModeOnly(t *testing.T) {
	rec := record("A", 1000, 500, 100, 0)
	res := Resolve(rec, RepriceRule{DaysFrom: 120, Action: ActionAutoTrack, AutoTrackMode: TrackLowest}, DefaultRuleConfig(), offSeason)
	assert.True(t, res.NewPrice.Equal(rec.CurrentPrice))
	assert.Equal(t, TrackLowest, res.NewAutoTrackMode)
	assert.True(t, res.Changed(rec))
}

func TestResolve_SeasonalOverride(t *testing.T) {
	window := FirstFullWeekOfOctober(2026, time.UTC)
	wednesday := window.Start.AddDate(0, 0, 2)
	assert.Equal(t, time.Wednesday, wednesday.Weekday())

	cfg := DefaultRuleConfig()
	cfg.SeasonalRuleEnabled = true
	rec := record("A", 1000, 500, 45, 0)

	for _, action := range []Action{ActionMarkdown1, ActionMarkdown5, ActionMarkdownIgnoreProfit} {
		res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: action, Percent: 1}, cfg, wednesday)
		assert.Equal(t, ActionAutoTrack, res.Action, action)
		assert.Equal(t, SeasonalTrackMode, res.NewAutoTrackMode, action)
		assert.True(t, res.Seasonal, action)
		assert.True(t, res.NewPrice.Equal(rec.CurrentPrice), action)
	}

	// Non-markdown actions are left alone inside the window.
	res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionHold}, cfg, wednesday)
	assert.Equal(t, ActionHold, res.Action)
	assert.False(t, res.Seasonal)

	// Outside the window the markdown applies.
	res = Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown1}, cfg, window.End.AddDate(0, 0, 1))
	assert.Equal(t, ActionMarkdown1, res.Action)
	assert.True(t, res.NewPrice.Equal(dec(990)))

	// With the flag off the markdown applies inside the window too.
	cfg.SeasonalRuleEnabled = false
	res = Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown1}, cfg, wednesday)
	assert.Equal(t, ActionMarkdown1, res.Action)
	assert.False(t, res.Seasonal)
}

func TestResolve_CustomSeasonalWindow(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.SeasonalRuleEnabled = true
	cfg.SeasonalWindow = &SeasonalWindow{
		Start: time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.December, 26, 0, 0, 0, 0, time.UTC),
	}
	rec := record("A", 1000, 500, 45, 0)
	rule := RepriceRule{DaysFrom: 60, Action: ActionMarkdown2}

	res := Resolve(rec, rule, cfg, time.Date(2026, time.December, 26, 23, 59, 0, 0, time.UTC))
	assert.True(t, res.Seasonal)

	res = Resolve(rec, rule, cfg, time.Date(2026, time.October, 7, 0, 0, 0, 0, time.UTC))
	assert.False(t, res.Seasonal)
}

func TestEffectiveFloor_Multiplier(t *testing.T) {
	cfg := DefaultRuleConfig()
	assert.True(t, EffectiveFloor(dec(985), cfg).Equal(dec(985)))

	cfg.ProfitGuardMultiplier = decimal.RequireFromString("1.1")
	// 985 * 1.1 = 1083.5, rounded up
	assert.True(t, EffectiveFloor(dec(985), cfg).Equal(dec(1084)))

	rec := record("A", 1100, 985, 45, 0)
	res := Resolve(rec, RepriceRule{DaysFrom: 60, Action: ActionMarkdown5}, cfg, offSeason)
	assert.True(t, res.NewPrice.Equal(dec(1084)), "got %s", res.NewPrice)
	assert.True(t, res.FloorApplied)
}

func TestFirstFullWeekOfOctober(t *testing.T) {
	cases := map[int]string{
		2024: "2024-10-07",
		2025: "2025-10-06",
		2026: "2026-10-05",
		2029: "2029-10-01",
	}
	for year, want := range cases {
		w := FirstFullWeekOfOctober(year, time.UTC)
		assert.Equal(t, want, w.Start.Format(dateLayout), year)
		assert.Equal(t, time.Sunday, w.End.Weekday(), year)
		assert.Equal(t, time.October, w.End.Month(), year)
	}
}
