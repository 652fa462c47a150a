package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "ledgersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SourceSupabase, cfg.Source.Kind)
	assert.Equal(t, 1000, cfg.Source.PageSize)
	assert.Equal(t, 60*time.Second, cfg.Source.Timeout)
	assert.Equal(t, ObjectsSupabase, cfg.Objects.Kind)
	assert.Equal(t, "exports", cfg.ExportRoot)
	assert.Equal(t, "credentials.json", cfg.Drive.CredentialsFile)
	assert.Equal(t, "token.json", cfg.Drive.TokenFile)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.Drive.On())
	assert.True(t, cfg.EntityEnabled("purchases"))
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeConfig(t, dir, `
source:
  kind: bigquery
  page_size: 250
  timeout: 30s
  bigquery:
    project: file-project
    dataset: ledgers
objects:
  kind: gcs
  bucket: receipts
drive:
  enabled: false
export_root: /srv/exports
http_addr: ":8080"
timezone: Europe/Zurich
entities:
  campaigns:
    enabled: false
  expenses:
    schedule: "30 3 * * *"
`)
	t.Setenv("BIGQUERY_PROJECT", "env-project")
	t.Setenv("LEDGERSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceBigQuery, cfg.Source.Kind)
	assert.Equal(t, 250, cfg.Source.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, "env-project", cfg.Source.BigQuery.Project)
	assert.Equal(t, "ledgers", cfg.Source.BigQuery.Dataset)
	assert.Equal(t, ObjectsGCS, cfg.Objects.Kind)
	assert.Equal(t, "receipts", cfg.Objects.Bucket)
	assert.False(t, cfg.Drive.On())
	assert.Equal(t, "/srv/exports", cfg.ExportRoot)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Europe/Zurich", cfg.Location().String())
	assert.False(t, cfg.EntityEnabled("campaigns"))
	assert.True(t, cfg.EntityEnabled("expenses"))
	assert.Equal(t, "30 3 * * *", cfg.EntitySchedule("expenses", "5 2 * * *"))
	assert.Equal(t, "0 2 * * *", cfg.EntitySchedule("purchases", "0 2 * * *"))
	assert.NoError(t, cfg.RequireSource())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SUPABASE_URL=https://example.supabase.co/\nAPI_KEY=anon-key\n"), 0o644))
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("API_KEY", "")
	os.Unsetenv("SUPABASE_URL")
	os.Unsetenv("API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://example.supabase.co", cfg.Source.URL)
	assert.Equal(t, "anon-key", cfg.Source.APIKey)
	assert.NoError(t, cfg.RequireSource())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad source", "source: {kind: mysql}"},
		{"bad objects", "objects: {kind: s3}"},
		{"gcs without bucket", "objects: {kind: gcs}"},
		{"negative workers", "workers: -1"},
		{"bad timezone", "timezone: Mars/Olympus"},
		{"bad yaml", "source: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			_, err := Load(writeConfig(t, dir, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestRequireSource(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Kind: SourceSupabase}}
	err := cfg.RequireSource()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.Contains(t, err.Error(), "API_KEY")

	cfg = &Config{Source: SourceConfig{Kind: SourceBigQuery, BigQuery: BigQueryConfig{Project: "p"}}}
	assert.ErrorContains(t, cfg.RequireSource(), "BIGQUERY_DATASET")
}

func TestApplyEnv_Workers(t *testing.T) {
	var cfg Config
	env := map[string]string{"LEDGERSYNC_WORKERS": "5", "API_KEY": "k"}
	require.NoError(t, applyEnv(&cfg, func(k string) string { return env[k] }))
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "k", cfg.Source.APIKey)

	env["LEDGERSYNC_WORKERS"] = "many"
	assert.Error(t, applyEnv(&cfg, func(k string) string { return env[k] }))
}
