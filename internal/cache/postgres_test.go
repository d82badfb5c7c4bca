package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procsearch/internal/model"
)

func newMockPostgresTier(t *testing.T) (*PostgresTier, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresTier(mock), mock
}

func TestPostgresTier_GetNotFoundReturnsNilNoError(t *testing.T) {
	t.Parallel()
	tier, mock := newMockPostgresTier(t)

	mock.ExpectQuery(`SELECT params_hash, user_id, results`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	row, err := tier.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTier_GetScansFoundRow(t *testing.T) {
	t.Parallel()
	tier, mock := newMockPostgresTier(t)

	resultsJSON, _ := json.Marshal([]model.UnifiedProcurement{})
	searchJSON, _ := json.Marshal(model.SearchRequest{SetorID: "ti"})
	sourcesJSON, _ := json.Marshal([]string{"pncp"})
	now := time.Now()

	cols := []string{
		"params_hash", "user_id", "results", "search_params", "sources_json",
		"fetched_at", "last_success_at", "last_attempt_at", "fail_streak",
		"degraded_until", "coverage", "fetch_duration_ms", "priority",
		"access_count", "last_accessed_at",
	}
	rows := pgxmock.NewRows(cols).
		AddRow("k1", "u1", resultsJSON, searchJSON, sourcesJSON, now, now, now, 0, nil, []byte("{}"), int64(120), model.PriorityWarm, 4, now)

	mock.ExpectQuery(`SELECT params_hash, user_id, results`).
		WithArgs("k1").
		WillReturnRows(rows)

	row, err := tier.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "k1", row.ParamsHash)
	assert.Equal(t, model.PriorityWarm, row.Priority)
}

func TestPostgresTier_PutUpsertsRow(t *testing.T) {
	t.Parallel()
	tier, mock := newMockPostgresTier(t)

	mock.ExpectExec(`INSERT INTO search_cache`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	row := model.CacheRow{
		ParamsHash:    "k2",
		FetchedAt:     time.Now(),
		LastSuccessAt: time.Now(),
		LastAttemptAt: time.Now(),
	}
	require.NoError(t, tier.Put(context.Background(), row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTier_PutRejectsInvalidRow(t *testing.T) {
	t.Parallel()
	tier, _ := newMockPostgresTier(t)

	now := time.Now()
	row := model.CacheRow{
		ParamsHash:    "k3",
		FailStreak:    2,
		LastSuccessAt: now,
		LastAttemptAt: now.Add(-time.Hour),
	}
	err := tier.Put(context.Background(), row)
	require.Error(t, err)
}

func TestPostgresTier_QueryColumns(t *testing.T) {
	t.Parallel()
	tier, mock := newMockPostgresTier(t)

	mock.ExpectQuery(`SELECT column_name FROM information_schema.columns`).
		WithArgs("search_cache").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("params_hash").AddRow("user_id"))

	cols, err := tier.QueryColumns(context.Background(), "search_cache")
	require.NoError(t, err)
	assert.Contains(t, cols, "params_hash")
}
