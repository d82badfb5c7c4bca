// Package persistence is the Postgres-backed system of record for search
// sessions: one row per search, written at request time and updated as the
// pipeline runs. It satisfies the narrow collaborator interfaces the
// pipeline and searchstate packages declare (pipeline.ResultStore,
// searchstate.RecoveryStore) plus the read path GET /search-results needs.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procsearch/internal/model"
)

// SearchStore is the Postgres system of record for search sessions.
type SearchStore struct {
	pool Pool
}

// NewPostgres opens a pgxpool against connString and verifies connectivity.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*SearchStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "persistence: parse connection string")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "persistence: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "persistence: ping")
	}
	return &SearchStore{pool: pool}, nil
}

// NewWithPool wraps an already-constructed Pool, primarily for tests that
// substitute pgxmock.
func NewWithPool(pool Pool) *SearchStore {
	return &SearchStore{pool: pool}
}

// Migrate applies pending schema migrations.
func (s *SearchStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Close releases the underlying pool. Safe to call on a SearchStore backed
// by a pgxmock pool in tests; mocks no-op Close.
func (s *SearchStore) Close() {
	s.pool.Close()
}

// Ping reports whether the store can reach its database, for GET /health/cache.
func (s *SearchStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "persistence: ping")
}

// Pool exposes the underlying connection pool so the composition root can
// share it with the Postgres cache tier instead of opening a second one.
func (s *SearchStore) Pool() Pool {
	return s.pool
}

// CreateSession inserts the CREATED-state row the HTTP boundary writes
// before handing the request to the pipeline, so a crash mid-search leaves
// a non-terminal row behind for RunStartupRecovery to find.
func (s *SearchStore) CreateSession(ctx context.Context, searchID string, req model.SearchRequest) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "persistence: marshal search request")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO search_sessions (id, setor_id, request, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO NOTHING`,
		searchID, req.SetorID, reqJSON, string(model.StateCreated), now,
	)
	return eris.Wrapf(err, "persistence: create session %s", searchID)
}

// SaveSearchResult implements pipeline.ResultStore: it records the final
// response and marks the session COMPLETED (or FAILED, driven by the
// response's own state, since assembleResponse already encodes that).
func (s *SearchStore) SaveSearchResult(ctx context.Context, searchID string, resp model.SearchResponse) error {
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return eris.Wrap(err, "persistence: marshal search response")
	}

	state := model.StateCompleted
	if resp.ResponseState == model.ResponseEmptyFailure {
		state = model.StateFailed
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE search_sessions SET response = $1, state = $2, updated_at = $3 WHERE id = $4`,
		respJSON, string(state), time.Now().UTC(), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "persistence: save search result %s", searchID)
	}
	if tag.RowsAffected() == 0 {
		// No CreateSession row exists yet (e.g. a worker-only deployment
		// that never called it) — insert rather than fail the search.
		return s.insertCompletedSession(ctx, searchID, respJSON, state)
	}
	return nil
}

func (s *SearchStore) insertCompletedSession(ctx context.Context, searchID string, respJSON []byte, state model.SearchState) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_sessions (id, setor_id, request, response, state, created_at, updated_at)
		 VALUES ($1, '', '{}'::jsonb, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET response = EXCLUDED.response, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		searchID, respJSON, string(state), now,
	)
	return eris.Wrapf(err, "persistence: insert completed session %s", searchID)
}

// GetSearchResult backs GET /search-results/{search_id}. ok is false when
// the session exists but hasn't produced a response yet (still running).
func (s *SearchStore) GetSearchResult(ctx context.Context, searchID string) (model.SearchResponse, bool, error) {
	var respJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT response FROM search_sessions WHERE id = $1`, searchID,
	).Scan(&respJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SearchResponse{}, false, nil
		}
		return model.SearchResponse{}, false, eris.Wrapf(err, "persistence: get search result %s", searchID)
	}
	if len(respJSON) == 0 {
		return model.SearchResponse{}, false, nil
	}

	var resp model.SearchResponse
	if err := json.Unmarshal(respJSON, &resp); err != nil {
		return model.SearchResponse{}, false, eris.Wrap(err, "persistence: unmarshal search response")
	}
	return resp, true, nil
}

// GetSessionState backs GET /search-results/{search_id}'s not-ready path:
// it distinguishes a search_id that was never created (ok=false) from one
// that exists but hasn't reached a terminal state yet, so the handler can
// return 404 versus 202 rather than collapsing both into "not found".
func (s *SearchStore) GetSessionState(ctx context.Context, searchID string) (model.SearchState, bool, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM search_sessions WHERE id = $1`, searchID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, eris.Wrapf(err, "persistence: get session state %s", searchID)
	}
	return model.SearchState(state), true, nil
}

// ListStaleNonTerminal implements searchstate.RecoveryStore.
func (s *SearchStore) ListStaleNonTerminal(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM search_sessions
		 WHERE state NOT IN ($1, $2, $3, $4) AND updated_at < $5`,
		string(model.StateCompleted), string(model.StateFailed),
		string(model.StateTimedOut), string(model.StateRateLimited),
		olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "persistence: list stale non-terminal sessions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "persistence: scan stale session id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "persistence: iterate stale sessions")
}

// MarkTimedOut implements searchstate.RecoveryStore.
func (s *SearchStore) MarkTimedOut(ctx context.Context, searchID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE search_sessions SET state = $1, updated_at = $2 WHERE id = $3`,
		string(model.StateTimedOut), time.Now().UTC(), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "persistence: mark timed out %s", searchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("persistence: search not found: %s", searchID)
	}
	_ = reason // recorded via structured logging by the recovery caller, not persisted per-row
	return nil
}
