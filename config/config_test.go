package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		GitHub: GitHubConfig{Token: "tok"},
		Query:  QueryConfig{ReposPerBatch: 50, MaxAttempts: 5, RetryBase: time.Second, RetryMax: time.Minute},
		Store: StoreConfig{
			Driver:                "sqlite",
			ProvisionedThroughput: 400,
			WriteCostUnits:        5,
		},
		SourcesFile: filepath.Join("testdata", "sources.json"),
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.GitHub.Token = ""
	cfg.Query.ReposPerBatch = 0
	cfg.Store.ProvisionedThroughput = 100
	cfg.Events = EventConfig{Publish: true, Bus: "kafka"}
	cfg.SourcesFile = filepath.Join("testdata", "missing.json")

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	for _, want := range []string{"GITHUB_TOKEN", "REPOS_PER_QUERY_BATCH", "STORE_PROVISIONED_THROUGHPUT", "KAFKA_BROKERS", "sources file"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_ServerlessSkipsBudget(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.ServerlessMode = true
	cfg.Store.ProvisionedThroughput = 0
	cfg.Store.WriteCostUnits = 0
	require.NoError(t, cfg.Validate())
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validConfig(t)
	cfg.Store.Driver = "postgres"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestBudgetBytes(t *testing.T) {
	tests := []struct {
		name       string
		throughput int
		cost       int
		want       int
	}{
		{"default provisioning", 400, 5, 60000},
		{"large provisioning", 1000, 10, 80000},
		{"exhausted by buffer", 100, 5, 0},
		{"zero cost", 400, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StoreConfig{ProvisionedThroughput: tt.throughput, WriteCostUnits: tt.cost}
			assert.Equal(t, tt.want, s.BudgetBytes())
		})
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("REPOS_PER_QUERY_BATCH", "2")
	t.Setenv("STORE_SERVERLESS_MODE", "TRUE")
	t.Setenv("PUBLISH_TO_EVENT_BUS", "false")
	t.Setenv("SYNC_INTERVAL", "6h")
	t.Setenv("SOURCES_FILE", filepath.Join("testdata", "sources.json"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Query.ReposPerBatch)
	assert.True(t, cfg.Store.ServerlessMode)
	assert.False(t, cfg.Events.Publish)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "https://api.github.com/graphql", cfg.GitHub.GraphQLURL)
}

func TestLoad_BadInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")
	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MalformedValuesAreReported(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SOURCES_FILE", filepath.Join("testdata", "sources.json"))
	t.Setenv("STORE_SERVERLESS_MODE", "yes")
	t.Setenv("REPOS_PER_QUERY_BATCH", "ten")
	t.Setenv("QUERY_RETRY_BASE", "60")

	cfg, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Nil(t, cfg)
	for _, want := range []string{"STORE_SERVERLESS_MODE", "REPOS_PER_QUERY_BATCH", "QUERY_RETRY_BASE"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_RetryBaseMustBePositive(t *testing.T) {
	cfg := validConfig(t)
	cfg.Query.RetryBase = 0
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "QUERY_RETRY_BASE")
}

func TestLoadSources(t *testing.T) {
	sources, err := LoadSources(filepath.Join("testdata", "sources.json"))
	require.NoError(t, err)

	require.Len(t, sources.FullOrgs, 2)
	assert.Equal(t, "acme", sources.FullOrgs[0].OrgName)
	assert.Equal(t, map[string]bool{"secret-repo": true, "legacy": true}, sources.FullOrgs[0].Excluded())
	assert.Empty(t, sources.FullOrgs[1].Excluded())
	assert.Equal(t, []string{"indie/tool", "someone/lib"}, sources.IndividualRepos)
}

func TestLoadSources_Errors(t *testing.T) {
	_, err := LoadSources(filepath.Join("testdata", "nope.json"))
	assert.Error(t, err)

	_, err = LoadSources(filepath.Join("testdata", "bad_repo.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-repo")
}
