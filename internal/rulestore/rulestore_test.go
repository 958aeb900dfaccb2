package rulestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedori-tools/repricer/internal/cache"
	"github.com/sedori-tools/repricer/internal/repricer"
)

var fixedNow = time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

func sampleConfig() repricer.RuleConfig {
	cfg := repricer.DefaultRuleConfig()
	cfg.SeasonalRuleEnabled = true
	cfg.ExcludedSKUs = []string{"260101-KEEP"}
	cfg.Rules[1] = repricer.RepriceRule{DaysFrom: 60, Action: repricer.ActionMarkdown3}
	cfg.Rules[2] = repricer.RepriceRule{DaysFrom: 90, Action: repricer.ActionAutoTrack, AutoTrackMode: repricer.TrackFBALowest}
	return cfg
}

func TestFileStore_MissingFileGivesDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rules.json"))
	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repricer.DefaultRuleConfig().Rules, cfg.Rules)
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rules.json")
	store := NewFileStore(path)
	store.now = func() time.Time { return fixedNow }

	require.NoError(t, store.Save(context.Background(), sampleConfig()))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Rules, got.Rules)
	assert.Equal(t, []string{"260101-KEEP"}, got.ExcludedSKUs)
	assert.True(t, got.SeasonalRuleEnabled)
	assert.True(t, got.UpdatedAt.Equal(fixedNow))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileStore_RejectsInvalidSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), sampleConfig()))

	err := store.Save(context.Background(), repricer.RuleConfig{})
	var cerr *repricer.ConfigError
	require.True(t, errors.As(err, &cerr))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Rules, got.Rules)
}

func TestFileStore_LoadsMapShapedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"profit_guard_percentage": 1.05,
		"q4_rule_enabled": false,
		"reprice_rules": {"30": {"action": "maintain"}, "999": {"action": "price_down_2"}}
	}`), 0o644))

	cfg, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, repricer.ActionMarkdown2, cfg.Rules[1].Action)
}

func TestFileStore_BrokenDocumentIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"reprice_rules": [{"days_from": 30, "action": "fire_sale"}]}`), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	var cerr *repricer.ConfigError
	assert.True(t, errors.As(err, &cerr))
}

func TestRedisStore_SaveLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(cache.New(client), "repricer:rules")
	store.now = func() time.Time { return fixedNow }

	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repricer.DefaultRuleConfig().Rules, cfg.Rules)

	require.NoError(t, store.Save(context.Background(), sampleConfig()))
	assert.True(t, mr.Exists("repricer:rules"))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleConfig().Rules, got.Rules)
	assert.True(t, got.UpdatedAt.Equal(fixedNow))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, mr.Set("repricer:rules", "not json"))

	_, err := NewRedisStore(cache.New(client), "repricer:rules").Load(context.Background())
	assert.Error(t, err)
}
