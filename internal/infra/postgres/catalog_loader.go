package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-quiz-engine/internal/domain"
)

// CatalogLoader reads the quiz catalog straight from the course database for
// deployments that have read access to it, skipping the upstream REST hop.
// Each row stores the quiz document (metadata plus questions) as JSONB.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

// quizDocument is the JSONB shape of a quizzes row.
type quizDocument struct {
	domain.Quiz
	Questions []domain.Question `json:"questions"`
}

func (l *CatalogLoader) LoadLessonQuizzes(ctx context.Context, lessonID string) ([]domain.Quiz, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM quizzes WHERE lesson_id=$1 ORDER BY id`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load lesson quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var doc quizDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quizzes = append(quizzes, doc.Quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lesson quizzes: %w", err)
	}
	return quizzes, nil
}

func (l *CatalogLoader) LoadQuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load quiz questions: %w", err)
	}
	var doc quizDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return doc.Questions, nil
}
