package repricer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Resolution is the outcome of applying one rule to one listing.
type Resolution struct {
	NewPrice         decimal.Decimal
	NewAutoTrackMode int
	// Action is the effective action after the seasonal override.
	Action Action
	// Seasonal is set when a markdown was replaced by seasonal tracking.
	Seasonal bool
	// FloorApplied is set when the profit floor stopped a markdown.
	FloorApplied bool
	Reason       string
}

// Changed reports whether the resolution mutates the listing.
func (r Resolution) Changed(rec ListingRecord) bool {
	if r.Action == ActionExclude {
		return false
	}
	return !r.NewPrice.Equal(rec.CurrentPrice) || r.NewAutoTrackMode != rec.CurrentAutoTrackMode
}

// Resolve decides the new price and auto-track mode for a classified
// listing. It is pure: the same inputs always give the same Resolution.
// A markdown on a listing priced below its effective floor raises the price
// to the floor.
func Resolve(rec ListingRecord, rule RepriceRule, cfg RuleConfig, runDate time.Time) Resolution {
	res := Resolution{
		NewPrice:         rec.CurrentPrice,
		NewAutoTrackMode: rec.CurrentAutoTrackMode,
		Action:           rule.Action,
	}
	trackMode := rule.AutoTrackMode

	if cfg.SeasonalRuleEnabled && rule.Action.IsMarkdown() && cfg.WindowFor(runDate).Contains(runDate) {
		res.Action = ActionAutoTrack
		res.Seasonal = true
		trackMode = SeasonalTrackMode
	}

	switch res.Action {
	case ActionHold:
		res.Reason = "hold price"
	case ActionAutoTrack:
		res.NewAutoTrackMode = trackMode
		res.Reason = fmt.Sprintf("auto-track %d (%s)", trackMode, TrackModeName(trackMode))
		if res.Seasonal {
			res.Reason = fmt.Sprintf("seasonal window: %s replaced by auto-track %d", rule.Action, trackMode)
		}
	case ActionMarkdownIgnoreProfit:
		res.NewPrice = markdown(rec.CurrentPrice, rule.ignoreProfitPercent())
		res.Reason = fmt.Sprintf("%d%% markdown ignoring profit floor", rule.ignoreProfitPercent())
	case ActionExclude:
		res.Reason = "excluded by rule"
	default:
		pct := res.Action.MarkdownPercent()
		candidate := markdown(rec.CurrentPrice, pct)
		floor := EffectiveFloor(rec.FloorPrice, cfg)
		res.NewPrice = candidate
		res.Reason = fmt.Sprintf("%d%% markdown", pct)
		if candidate.LessThan(floor) {
			res.NewPrice = floor
			res.FloorApplied = true
			res.Reason = fmt.Sprintf("%d%% markdown held at profit floor %s", pct, floor)
		}
	}
	return res
}

// EffectiveFloor applies the profit guard multiplier to a listing's red-line
// price, rounding up to whole yen.
func EffectiveFloor(floor decimal.Decimal, cfg RuleConfig) decimal.Decimal {
	return floor.Mul(cfg.multiplier()).Ceil()
}

// markdown lowers price by pct percent, rounded down to whole yen.
func markdown(price decimal.Decimal, pct int) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(pct))).Div(hundred)
	return price.Mul(factor).Floor()
}

func (r RepriceRule) ignoreProfitPercent() int {
	if r.Percent < 1 {
		return 1
	}
	return r.Percent
}
