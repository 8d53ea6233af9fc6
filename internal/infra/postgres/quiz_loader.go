package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-exam-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads quizzes and their ordered questions straight from the
// pgx pool. It backs the quiz cache on the read path.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

const (
	selectQuizSQL = `SELECT id, title, description, course_id, creator_id, access_code, time_limit,
	passing_score, is_active, show_results, bonus_enabled, bonus_time_per_question, created_at, updated_at
FROM quizzes WHERE id = $1`

	selectQuestionsSQL = `SELECT id, quiz_id, text, type, options, correct_answer, points, order_index
FROM questions WHERE quiz_id = $1 ORDER BY order_index, id`
)

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := l.pool.QueryRow(ctx, selectQuizSQL, quizID).Scan(
		&quiz.ID,
		&quiz.Title,
		&quiz.Description,
		&quiz.CourseID,
		&quiz.CreatorID,
		&quiz.AccessCode,
		&quiz.TimeLimit,
		&quiz.PassingScore,
		&quiz.IsActive,
		&quiz.ShowResults,
		&quiz.BonusEnabled,
		&quiz.BonusTimePerQuestion,
		&quiz.CreatedAt,
		&quiz.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, selectQuestionsSQL, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	quiz.Questions = []domain.Question{}
	for rows.Next() {
		var (
			q     domain.Question
			qtype string
		)
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &qtype, &q.Options, &q.CorrectAnswer, &q.Points, &q.Order); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qtype)
		if q.Options == nil {
			q.Options = []string{}
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
