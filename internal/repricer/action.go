package repricer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Action is the per-bucket repricing instruction. Values are the keys the
// settings surface persists, so an Action round-trips through the stored
// rule document unchanged.
type Action string

const (
	ActionHold                 Action = "maintain"
	ActionAutoTrack            Action = "priceTrace"
	ActionMarkdown1            Action = "price_down_1"
	ActionMarkdown2            Action = "price_down_2"
	ActionMarkdown3            Action = "price_down_3"
	ActionMarkdown4            Action = "price_down_4"
	ActionMarkdown5            Action = "price_down_5"
	ActionMarkdownIgnoreProfit Action = "price_down_ignore"
	ActionExclude              Action = "exclude"
)

// actionAliases maps every accepted spelling to its canonical Action.
var actionAliases = map[string]Action{
	"maintain":             ActionHold,
	"hold":                 ActionHold,
	"pricetrace":           ActionAutoTrack,
	"autotrack":            ActionAutoTrack,
	"price_down_1":         ActionMarkdown1,
	"markdown1pct":         ActionMarkdown1,
	"price_down_2":         ActionMarkdown2,
	"markdown2pct":         ActionMarkdown2,
	"price_down_3":         ActionMarkdown3,
	"markdown3pct":         ActionMarkdown3,
	"price_down_4":         ActionMarkdown4,
	"markdown4pct":         ActionMarkdown4,
	"price_down_5":         ActionMarkdown5,
	"markdown5pct":         ActionMarkdown5,
	"price_down_ignore":    ActionMarkdownIgnoreProfit,
	"markdownignoreprofit": ActionMarkdownIgnoreProfit,
	"exclude":              ActionExclude,
}

// ParseAction resolves an action key. The second return value is the
// markdown step carried in the key itself ("price_down_ignore_3" -> 3), or 0
// when the key does not carry one.
func ParseAction(s string) (Action, int, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if a, ok := actionAliases[key]; ok {
		return a, 0, nil
	}
	if rest, ok := strings.CutPrefix(key, "price_down_ignore_"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil {
			return ActionMarkdownIgnoreProfit, n, nil
		}
	}
	return "", 0, fmt.Errorf("unknown action %q", s)
}

// IsMarkdown reports whether the action lowers the price. The ignore-profit
// markdown counts.
func (a Action) IsMarkdown() bool {
	return a.MarkdownPercent() > 0 || a == ActionMarkdownIgnoreProfit
}

// MarkdownPercent returns N for the price_down_N actions and 0 otherwise.
func (a Action) MarkdownPercent() int {
	switch a {
	case ActionMarkdown1:
		return 1
	case ActionMarkdown2:
		return 2
	case ActionMarkdown3:
		return 3
	case ActionMarkdown4:
		return 4
	case ActionMarkdown5:
		return 5
	}
	return 0
}

func (a Action) Valid() bool {
	switch a {
	case ActionHold, ActionAutoTrack, ActionMarkdownIgnoreProfit, ActionExclude:
		return true
	}
	return a.MarkdownPercent() > 0
}

func (a Action) String() string { return string(a) }

// UnmarshalJSON accepts any alias understood by ParseAction.
func (a *Action) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, _, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Auto-track strategies understood by the marketplace listing tool.
const (
	TrackNone = iota
	TrackFBAConditionMatch
	TrackConditionMatch
	TrackFBALowest
	TrackLowest
	TrackCartPrice

	maxTrackMode = TrackCartPrice
)

// SeasonalTrackMode is the strategy substituted for markdowns while the
// seasonal window is open.
const SeasonalTrackMode = TrackFBAConditionMatch

var trackModeNames = [...]string{
	TrackNone:              "none",
	TrackFBAConditionMatch: "fba_condition_match",
	TrackConditionMatch:    "condition_match",
	TrackFBALowest:         "fba_lowest",
	TrackLowest:            "lowest",
	TrackCartPrice:         "cart_price",
}

// TrackModeName returns a readable name for an auto-track mode.
func TrackModeName(mode int) string {
	if mode < 0 || mode > maxTrackMode {
		return "unknown"
	}
	return trackModeNames[mode]
}

func validTrackMode(mode int) bool {
	return mode >= 0 && mode <= maxTrackMode
}
