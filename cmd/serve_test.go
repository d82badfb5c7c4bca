package main

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/cache"
	"github.com/sells-group/procsearch/internal/config"
	"github.com/sells-group/procsearch/internal/persistence"
	"github.com/sells-group/procsearch/internal/resilience"
)

func newMockSearchStore(t *testing.T) *persistence.SearchStore {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return persistence.NewWithPool(mock)
}

func TestBuildCascade_PostgresOnlyWithoutRedisOrLocalDir(t *testing.T) {
	cfg = &config.Config{}
	store := newMockSearchStore(t)

	cascade := buildCascade(store, nil)

	require.NotNil(t, cascade)
	assert.Len(t, cascade.Tiers(), 1)
	assert.Equal(t, cache.TierPostgres, cascade.Tiers()[0].Name())
}

func TestBuildCascade_AddsFileTierWhenLocalDirConfigured(t *testing.T) {
	cfg = &config.Config{}
	cfg.Cache.LocalDir = t.TempDir()
	store := newMockSearchStore(t)

	cascade := buildCascade(store, nil)

	require.Len(t, cascade.Tiers(), 2)
	assert.Equal(t, cache.TierPostgres, cascade.Tiers()[0].Name())
	assert.Equal(t, cache.TierFile, cascade.Tiers()[1].Name())
}

func TestBuildSources_SkipsDisabledAndUnknownCodes(t *testing.T) {
	cfg = &config.Config{}
	cfg.Sources.Fallback = "pncp"
	cfg.Sources.Sources = []config.SourceConfig{
		{Code: "pncp", Enabled: true, BaseURL: "https://pncp.example", TimeoutMs: 5000},
		{Code: "comprasnet", Enabled: true, BaseURL: "https://comprasnet.example", TimeoutMs: 5000},
		{Code: "comprasnet", Enabled: false, BaseURL: "https://disabled.example", TimeoutMs: 5000},
		{Code: "unknown-portal", Enabled: true, BaseURL: "https://unknown.example", TimeoutMs: 5000},
	}
	circuitCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 0}

	selector := buildSources(nil, circuitCfg, nil)
	sources := selector()

	assert.Len(t, sources.Enabled, 2)
	require.NotNil(t, sources.Fallback)
}

func TestBuildSources_NoFallbackMatchLeavesFallbackNil(t *testing.T) {
	cfg = &config.Config{}
	cfg.Sources.Fallback = "does-not-exist"
	cfg.Sources.Sources = []config.SourceConfig{
		{Code: "pncp", Enabled: true, BaseURL: "https://pncp.example", TimeoutMs: 5000},
	}
	circuitCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 0}

	selector := buildSources(nil, circuitCfg, nil)
	sources := selector()

	assert.Len(t, sources.Enabled, 1)
	assert.Nil(t, sources.Fallback)
}
