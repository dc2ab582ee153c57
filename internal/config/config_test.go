package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
steps:
  - name: legacyUsersStep
    source: legacy_users
    target: users
  - name: plantLogsStep
    sources: [carelogs, waterlogs]
    target: logs
    source_tag: plantlogs
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.MetricsAddr)
	assert.Equal(t, 500, cfg.Migration.BatchSize)
	assert.True(t, cfg.Migration.ShowProgress)
	assert.Equal(t, "mongo", cfg.Checkpoint.Backend)
	assert.Equal(t, "migration_checkpoints", cfg.Checkpoint.Collection)
	require.Len(t, cfg.Steps, 2)
	assert.Equal(t, []string{"carelogs", "waterlogs"}, cfg.Steps[1].Sources)
	assert.Equal(t, "plantlogs", cfg.Steps[1].SourceTag)
}

func TestLoadFlagOverrides(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("mongo-uri", "", "")
	flags.Int("batch-size", 500, "")
	flags.Bool("dry-run", false, "")
	flags.String("checkpoint-backend", "mongo", "")
	flags.String("checkpoint-path", "", "")
	require.NoError(t, flags.Set("mongo-uri", "mongodb://other:27017"))
	require.NoError(t, flags.Set("batch-size", "250"))
	require.NoError(t, flags.Set("dry-run", "true"))
	require.NoError(t, flags.Set("checkpoint-backend", "sqlite"))
	require.NoError(t, flags.Set("checkpoint-path", "/tmp/cp.db"))

	cfg, err := Load(writeConfig(t, validYAML), flags)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://other:27017", cfg.Mongo.URI)
	assert.Equal(t, 250, cfg.Migration.BatchSize)
	assert.True(t, cfg.Migration.DryRun)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Backend)
	assert.Equal(t, "/tmp/cp.db", cfg.Checkpoint.Path)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "missing uri",
			yaml: `
mongo:
  database: plantcare
steps:
  - {name: s, source: a, target: b}
`,
		},
		{
			name: "no steps",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
`,
		},
		{
			name: "duplicate step names",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
steps:
  - {name: s, source: a, target: b}
  - {name: s, source: c, target: d}
`,
		},
		{
			name: "source and sources both set",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
steps:
  - {name: s, source: a, sources: [c], target: b}
`,
		},
		{
			name: "missing target",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
steps:
  - {name: s, source: a}
`,
		},
		{
			name: "unknown checkpoint backend",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
checkpoint:
  backend: etcd
steps:
  - {name: s, source: a, target: b}
`,
		},
		{
			name: "archive enabled without bucket",
			yaml: `
mongo:
  uri: mongodb://localhost:27017
  database: plantcare
archive:
  enabled: true
  endpoint: minio:9000
steps:
  - {name: s, source: a, target: b}
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml), nil)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml", nil)
	require.Error(t, err)
}
