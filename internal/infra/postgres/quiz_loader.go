package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"toohak-session-service/internal/domain"
)

// QuizLoader loads quiz snapshots (JSONB) from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int) (domain.Quiz, error) {
	var (
		ownerID int
		raw     []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT owner_id, data FROM quizzes WHERE id=$1`, quizID).Scan(&ownerID, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: quiz %d", domain.ErrNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	quiz.OwnerID = ownerID
	return quiz, nil
}
