package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// ResultStore persists finished session results as JSONB rows.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.SessionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_results (quiz_id, scope_id, data, finished_at) VALUES ($1, $2, $3::jsonb, $4)`,
		result.QuizID, result.ScopeID, data, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}
