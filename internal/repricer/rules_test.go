package repricer

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Buckets(t *testing.T) {
	rules := []RepriceRule{
		{DaysFrom: 30, Action: ActionHold},
		{DaysFrom: 60, Action: ActionMarkdown2},
		{DaysFrom: 360, Action: ActionExclude},
	}
	cases := []struct {
		days int
		want int
	}{
		{0, 30},
		{30, 30},
		{31, 60},
		{45, 60},
		{60, 60},
		{61, 360},
		{360, 360},
		{400, 360},
	}
	for _, tc := range cases {
		rule, ok := Classify(KnownAge(tc.days), rules)
		require.True(t, ok, tc.days)
		assert.Equal(t, tc.want, rule.DaysFrom, "days=%d", tc.days)
	}
}

func TestClassify_UnknownOrEmpty(t *testing.T) {
	_, ok := Classify(UnknownAge, DefaultRuleConfig().Rules)
	assert.False(t, ok)

	_, ok = Classify(KnownAge(10), nil)
	assert.False(t, ok)
}

func TestRuleConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultRuleConfig().Validate())

	bad := RuleConfig{
		ProfitGuardMultiplier: decimal.RequireFromString("0.5"),
		Rules: []RepriceRule{
			{DaysFrom: 60, Action: ActionHold},
			{DaysFrom: 30, Action: ActionHold},
			{DaysFrom: 90, Action: Action("bogus")},
			{DaysFrom: 120, Action: ActionAutoTrack, AutoTrackMode: 9},
			{DaysFrom: 150, Action: ActionMarkdownIgnoreProfit, Percent: 7},
		},
	}
	err := bad.Validate()
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Problems, 5)
	assert.Equal(t, ErrCodeConfigInvalid, cerr.Code())

	lenient := DefaultRuleConfig()
	lenient.Rules = []RepriceRule{{DaysFrom: 30, Action: ActionMarkdownIgnoreProfit}}
	assert.NoError(t, lenient.Validate())
	lenient.Rules[0].Percent = -1
	assert.Error(t, lenient.Validate())

	err = RuleConfig{}.Validate()
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Problems, "rule table is empty")
}

func TestNormalize_ListShape(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"profit_guard_percentage": 1.2,
		"q4_rule_enabled": true,
		"excluded_skus": [" 250101-A ", ""],
		"reprice_rules": [
			{"days_from": 90, "action": "priceTrace", "value": 4},
			{"days_from": 30, "action": "maintain", "value": 3},
			{"days_from": 60, "action": "markdown2pct"},
			{"days_from": 999, "action": "price_down_ignore_3"}
		]
	}`))
	require.NoError(t, err)

	cfg, err := Normalize(doc)
	require.NoError(t, err)

	assert.True(t, cfg.SeasonalRuleEnabled)
	assert.True(t, cfg.ProfitGuardMultiplier.Equal(decimal.RequireFromString("1.2")))
	assert.Equal(t, []string{"250101-A"}, cfg.ExcludedSKUs)
	require.Len(t, cfg.Rules, 4)
	assert.Equal(t, RepriceRule{DaysFrom: 30, Action: ActionHold}, cfg.Rules[0])
	assert.Equal(t, RepriceRule{DaysFrom: 60, Action: ActionMarkdown2}, cfg.Rules[1])
	assert.Equal(t, RepriceRule{DaysFrom: 90, Action: ActionAutoTrack, AutoTrackMode: 4}, cfg.Rules[2])
	assert.Equal(t, RepriceRule{DaysFrom: 999, Action: ActionMarkdownIgnoreProfit, Percent: 3}, cfg.Rules[3])
}

func TestNormalize_MapShape(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"reprice_rules": {
			"60": {"action": "price_down_1"},
			"30": {"action": "priceTrace", "priceTrace": 1},
			"999": {"action": "exclude"}
		},
		"seasonal_window": {"start": "2026-11-23", "end": "2026-11-29"}
	}`))
	require.NoError(t, err)

	cfg, err := Normalize(doc)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 3)
	assert.Equal(t, 30, cfg.Rules[0].DaysFrom)
	assert.Equal(t, TrackFBAConditionMatch, cfg.Rules[0].AutoTrackMode)
	assert.Equal(t, ActionMarkdown1, cfg.Rules[1].Action)
	assert.Equal(t, ActionExclude, cfg.Rules[2].Action)
	assert.True(t, cfg.ProfitGuardMultiplier.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, cfg.SeasonalWindow)
	assert.Equal(t, "2026-11-23", cfg.SeasonalWindow.Start.Format(dateLayout))
}

func TestNormalize_CollectsProblems(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"profit_guard_percentage": 11,
		"reprice_rules": [
			{"days_from": 30, "action": "maintain"},
			{"days_from": 30, "action": "exclude"},
			{"days_from": 60, "action": "sell_everything"},
			{"action": "maintain"}
		]
	}`))
	require.NoError(t, err)

	_, err = Normalize(doc)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Problems, 3)
}

func TestNormalize_RejectsBadKeyAndMultiplier(t *testing.T) {
	_, err := Normalize(Document{RepriceRules: []byte(`{"soon": {"action": "maintain"}}`)})
	assert.Error(t, err)

	m := 0.9
	cfg := DefaultRuleConfig().Document()
	cfg.ProfitGuardPercentage = &m
	_, err = Normalize(cfg)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
}

func TestRuleConfig_DocumentRoundTrip(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.Rules[1] = RepriceRule{DaysFrom: 60, Action: ActionAutoTrack, AutoTrackMode: TrackCartPrice}
	cfg.Rules[2] = RepriceRule{DaysFrom: 90, Action: ActionMarkdownIgnoreProfit, Percent: 2}
	cfg.ExcludedSKUs = []string{"A", "B"}

	back, err := Normalize(cfg.Document())
	require.NoError(t, err)
	assert.Equal(t, cfg.Rules, back.Rules)
	assert.Equal(t, cfg.ExcludedSKUs, back.ExcludedSKUs)
}

func TestParseAction_Aliases(t *testing.T) {
	cases := map[string]Action{
		"hold":                 ActionHold,
		"Maintain":             ActionHold,
		"autoTrack":            ActionAutoTrack,
		"priceTrace":           ActionAutoTrack,
		"markdown4pct":         ActionMarkdown4,
		"price_down_4":         ActionMarkdown4,
		"markdownIgnoreProfit": ActionMarkdownIgnoreProfit,
		"exclude":              ActionExclude,
	}
	for in, want := range cases {
		got, _, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		assert.True(t, got.Valid(), in)
	}

	got, step, err := ParseAction("price_down_ignore_4")
	require.NoError(t, err)
	assert.Equal(t, ActionMarkdownIgnoreProfit, got)
	assert.Equal(t, 4, step)

	_, _, err = ParseAction("markdown6pct")
	assert.Error(t, err)
}

func TestMemoryRuleStore_Snapshots(t *testing.T) {
	store := NewMemoryRuleStore(DefaultRuleConfig())

	snap, err := store.Load(context.Background())
	require.NoError(t, err)

	next := DefaultRuleConfig()
	next.Rules[0].Action = ActionExclude
	require.NoError(t, store.Save(context.Background(), next))

	assert.Equal(t, ActionHold, snap.Rules[0].Action)
	latest, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionExclude, latest.Rules[0].Action)
	assert.False(t, latest.UpdatedAt.IsZero())

	assert.Error(t, store.Save(context.Background(), RuleConfig{}))
}
