package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/config"
	"github.com/sedori-tools/repricer/internal/events"
	"github.com/sedori-tools/repricer/internal/health"
	"github.com/sedori-tools/repricer/internal/ratelimit"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
	"github.com/sedori-tools/repricer/internal/rulestore"
	"github.com/sedori-tools/repricer/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Rules.Backend = config.RulesBackendFile
	cfg.Rules.File = filepath.Join(dir, "rules.json")
	cfg.Output.Dir = filepath.Join(dir, "output")
	cfg.Postgres.DSN = ""
	cfg.Redis.Addr = ""
	cfg.Kafka.Brokers = nil
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = false
	cfg.Schedule.Enabled = false
	return cfg
}

func TestNewRuleRepository(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	repo, err := NewRuleRepository(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &rulestore.FileStore{}, repo)

	cfg.Rules.Backend = config.RulesBackendRedis
	_, err = NewRuleRepository(ctx, cfg, nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo, err = NewRuleRepository(ctx, cfg, client)
	require.NoError(t, err)
	assert.IsType(t, &rulestore.RedisStore{}, repo)
}

func TestFallbacksWithoutInfrastructure(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	runs, pool, err := NewRunRepository(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.IsType(t, &repository.MemoryRunRepository{}, runs)

	pub, err := NewPublisher(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, events.NoopPublisher{}, pub)

	assert.IsType(t, &ratelimit.MemoryRateLimiter{}, NewRateLimiter(cfg, nil, nil))
}

func TestNewEngine_RejectsUnknownEncoding(t *testing.T) {
	cfg := testConfig(t)
	cfg.Codec.OutputEncoding = "ebcdic"
	_, err := NewEngine(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestApp_EndToEndApply(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	resp, err := a.Service().Run(ctx, service.RunRequest{
		Data:     []byte("SKU,price,akaji,priceTrace,days\nA1,1000,500,0,45\n"),
		FileName: "inventory.csv",
		Mode:     repricer.ModeApply,
		Trigger:  service.TriggerCLI,
		RunDate:  time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Result.Summary.TotalRows)
	assert.FileExists(t, resp.Files.Updated)
}

func TestRuleStoreChecks_InvalidTableKeepsServiceReady(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"reprice_rules": [{"days_from": 30, "action": "fire_sale"}]}`), 0o644))

	reachable, usable := RuleStoreChecks(rulestore.NewFileStore(path))
	assert.NoError(t, reachable(ctx))
	var cerr *repricer.ConfigError
	assert.ErrorAs(t, usable(ctx), &cerr)

	gin.SetMode(gin.TestMode)
	hs := health.NewService(nil)
	hs.Register("rules", true, reachable)
	hs.Register("rules_table", false, usable)
	r := gin.New()
	hs.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unhealthy", hs.Check(ctx)["rules_table"].Status)
}

func TestRuleStoreChecks_UnreadableStore(t *testing.T) {
	reachable, usable := RuleStoreChecks(rulestore.NewFileStore(t.TempDir()))
	assert.Error(t, reachable(context.Background()))
	assert.Error(t, usable(context.Background()))
}
