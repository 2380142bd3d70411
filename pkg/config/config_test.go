package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dir", cfg.Index.Source)
	assert.Equal(t, 5, cfg.Search.MinResults)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.Debounce)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
index:
  source: http
  root: https://docs.example.com/html/search
search:
  minResults: 3
session:
  debounce: 100ms
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	t.Setenv("DS_SEARCH_MIN_RESULTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Index.Source)
	assert.Equal(t, "https://docs.example.com/html/search", cfg.Index.Root)
	assert.Equal(t, 7, cfg.Search.MinResults)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.Debounce)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	t.Setenv("DS_INDEX_SOURCE", "ftp")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.source")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", p.DSN())
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Index.Watch)
	assert.Equal(t, "docsearch-analytics", cfg.Kafka.ConsumerGroup)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestKafkaEnabledFromEnv(t *testing.T) {
	t.Setenv("DS_KAFKA_ENABLED", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Kafka.Enabled)
}
