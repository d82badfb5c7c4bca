package cache

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

// pgxPool is the subset of *pgxpool.Pool the Postgres tier needs,
// narrowed to an interface so tests can substitute pgxmock without a
// live database (grounded on the teacher's internal/store pgxmock
// test pattern).
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS search_cache (
	params_hash       TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	results           JSONB NOT NULL,
	search_params     JSONB NOT NULL,
	sources_json      JSONB NOT NULL,
	fetched_at        TIMESTAMPTZ NOT NULL,
	last_success_at   TIMESTAMPTZ NOT NULL,
	last_attempt_at   TIMESTAMPTZ NOT NULL,
	fail_streak       INT NOT NULL DEFAULT 0,
	degraded_until    TIMESTAMPTZ,
	coverage          JSONB,
	fetch_duration_ms BIGINT NOT NULL DEFAULT 0,
	priority          TEXT NOT NULL DEFAULT 'cold',
	access_count      INT NOT NULL DEFAULT 0,
	last_accessed_at  TIMESTAMPTZ
);
`

// PostgresTier is the persistent, authoritative tier of the cascade.
type PostgresTier struct {
	pool pgxPool
}

// NewPostgresTier wraps an existing pool (a *pgxpool.Pool in production,
// a pgxmock.PgxPoolIface in tests).
func NewPostgresTier(pool pgxPool) *PostgresTier {
	return &PostgresTier{pool: pool}
}

// Migrate creates the search_cache table if absent.
func (t *PostgresTier) Migrate(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres cache: migrate")
}

func (t *PostgresTier) Name() TierName { return TierPostgres }

func (t *PostgresTier) Get(ctx context.Context, paramsHash string) (*model.CacheRow, error) {
	row := t.pool.QueryRow(ctx, `
		SELECT params_hash, user_id, results, search_params, sources_json,
		       fetched_at, last_success_at, last_attempt_at, fail_streak,
		       degraded_until, coverage, fetch_duration_ms, priority,
		       access_count, last_accessed_at
		FROM search_cache WHERE params_hash = $1`, paramsHash)

	var (
		r            model.CacheRow
		resultsJSON  []byte
		searchJSON   []byte
		sourcesJSON  []byte
		coverageJSON []byte
	)
	err := row.Scan(
		&r.ParamsHash, &r.UserID, &resultsJSON, &searchJSON, &sourcesJSON,
		&r.FetchedAt, &r.LastSuccessAt, &r.LastAttemptAt, &r.FailStreak,
		&r.DegradedUntil, &coverageJSON, &r.FetchDuration, &r.Priority,
		&r.AccessCount, &r.LastAccessed,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres cache: scan")
	}

	if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
		return nil, eris.Wrap(err, "postgres cache: unmarshal results")
	}
	if err := json.Unmarshal(searchJSON, &r.SearchParams); err != nil {
		return nil, eris.Wrap(err, "postgres cache: unmarshal search_params")
	}
	if err := json.Unmarshal(sourcesJSON, &r.SourcesJSON); err != nil {
		return nil, eris.Wrap(err, "postgres cache: unmarshal sources_json")
	}
	if len(coverageJSON) > 0 {
		if err := json.Unmarshal(coverageJSON, &r.Coverage); err != nil {
			return nil, eris.Wrap(err, "postgres cache: unmarshal coverage")
		}
	}
	return &r, nil
}

func (t *PostgresTier) Put(ctx context.Context, row model.CacheRow) error {
	if err := row.Validate(); err != nil {
		return eris.Wrap(err, "postgres cache: invalid row")
	}

	resultsJSON, err := json.Marshal(row.Results)
	if err != nil {
		return eris.Wrap(err, "postgres cache: marshal results")
	}
	searchJSON, err := json.Marshal(row.SearchParams)
	if err != nil {
		return eris.Wrap(err, "postgres cache: marshal search_params")
	}
	sourcesJSON, err := json.Marshal(row.SourcesJSON)
	if err != nil {
		return eris.Wrap(err, "postgres cache: marshal sources_json")
	}
	coverageJSON, err := json.Marshal(row.Coverage)
	if err != nil {
		return eris.Wrap(err, "postgres cache: marshal coverage")
	}

	_, err = t.pool.Exec(ctx, `
		INSERT INTO search_cache (
			params_hash, user_id, results, search_params, sources_json,
			fetched_at, last_success_at, last_attempt_at, fail_streak,
			degraded_until, coverage, fetch_duration_ms, priority,
			access_count, last_accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (params_hash) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			results = EXCLUDED.results,
			search_params = EXCLUDED.search_params,
			sources_json = EXCLUDED.sources_json,
			fetched_at = EXCLUDED.fetched_at,
			last_success_at = EXCLUDED.last_success_at,
			last_attempt_at = EXCLUDED.last_attempt_at,
			fail_streak = EXCLUDED.fail_streak,
			degraded_until = EXCLUDED.degraded_until,
			coverage = EXCLUDED.coverage,
			fetch_duration_ms = EXCLUDED.fetch_duration_ms,
			priority = EXCLUDED.priority,
			access_count = EXCLUDED.access_count,
			last_accessed_at = EXCLUDED.last_accessed_at`,
		row.ParamsHash, row.UserID, resultsJSON, searchJSON, sourcesJSON,
		row.FetchedAt, row.LastSuccessAt, row.LastAttemptAt, row.FailStreak,
		row.DegradedUntil, coverageJSON, row.FetchDuration, row.Priority,
		row.AccessCount, row.LastAccessed,
	)
	return eris.Wrap(err, "postgres cache: upsert")
}

func (t *PostgresTier) Health(ctx context.Context) error {
	return eris.Wrap(t.pool.Ping(ctx), "postgres cache: ping")
}

// DegradedStats reports the aggregates GET /health/cache surfaces: how
// many rows are currently in a degraded window and the mean fail_streak
// across the whole table.
func (t *PostgresTier) DegradedStats(ctx context.Context) (degradedKeys int, avgFailStreak float64, err error) {
	row := t.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE degraded_until IS NOT NULL AND degraded_until > now()),
			COALESCE(AVG(fail_streak), 0)
		FROM search_cache`)
	if scanErr := row.Scan(&degradedKeys, &avgFailStreak); scanErr != nil {
		return 0, 0, eris.Wrap(scanErr, "postgres cache: degraded stats")
	}
	return degradedKeys, avgFailStreak, nil
}

// QueryColumns implements columnQuerier against information_schema, used
// by ValidateSchema at startup.
func (t *PostgresTier) QueryColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := t.pool.Query(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, eris.Wrap(err, "postgres cache: query columns")
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres cache: scan column name")
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}
