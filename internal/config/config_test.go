package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sedori-tools/repricer/internal/codec"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "repricer", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, RulesBackendFile, cfg.Rules.Backend)
	assert.Equal(t, codec.EncodingCP932, cfg.Codec.OutputEncoding)
	assert.Equal(t, "akaji", cfg.Columns.Floor)
	assert.True(t, cfg.Columns.AgeFromSKU)
	assert.Equal(t, "0 9 * * 1", cfg.Schedule.Spec)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  address: ":18080"
rules:
  backend: redis
redis:
  addr: localhost:6379
kafka:
  brokers: ["k1:9092", "k2:9092"]
columns:
  floor: red_line
codec:
  output_encoding: utf-8
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.HTTP.Address)
	assert.Equal(t, RulesBackendRedis, cfg.Rules.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "red_line", cfg.Columns.Floor)
	assert.Equal(t, "SKU", cfg.Columns.SKU)
	assert.Equal(t, codec.EncodingUTF8, cfg.Codec.OutputEncoding)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/var/lib/repricer/out")
	cfg, err := Load(writeConfig(t, "output:\n  dir: data/output\n"))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/repricer/out", cfg.Output.Dir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"redis backend without addr", "rules:\n  backend: redis\n", "redis.addr"},
		{"unknown backend", "rules:\n  backend: s3\n", "rules.backend"},
		{"bad encoding", "codec:\n  output_encoding: ebcdic\n", "codec"},
		{"no age source", "columns:\n  days_listed: \"\"\n  listed_at: \"\"\n  age_from_sku: false\n", "columns.days_listed"},
		{"sampling ratio", "tracing:\n  sampling_ratio: 2\n", "sampling_ratio"},
		{"schedule without inbox", "schedule:\n  enabled: true\n  inbox_dir: \"\"\n", "schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
