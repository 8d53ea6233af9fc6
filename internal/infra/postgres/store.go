package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	accessCodeConstraint = "quizzes_access_code_key"
)

// OpenDB opens a bun handle over the pgdriver connector.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements app.Store on Postgres through bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var _ app.Store = (*Store)(nil)

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(newQuizRow(quiz)).Exec(ctx); err != nil {
			if code, constraint := pgError(err); code == pgUniqueViolation && constraint == accessCodeConstraint {
				return domain.ErrAccessCodeTaken
			}
			return fmt.Errorf("insert quiz: %w", err)
		}
		return insertQuestions(ctx, tx, quiz)
	})
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.selectQuiz(ctx, "q.id = ?", quizID)
}

func (s *Store) GetQuizByAccessCode(ctx context.Context, code string) (domain.Quiz, error) {
	return s.selectQuiz(ctx, "q.access_code = ?", code)
}

func (s *Store) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	return s.db.NewSelect().
		Model((*quizRow)(nil)).
		Where("access_code = ?", code).
		Exists(ctx)
}

func (s *Store) UpdateQuiz(ctx context.Context, quiz domain.Quiz, replaceQuestions bool) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockQuiz(ctx, tx, quiz.ID); err != nil {
			return err
		}
		if replaceQuestions {
			if err := ensureUnused(ctx, tx, quiz.ID); err != nil {
				return err
			}
		}

		_, err := tx.NewUpdate().
			Model(newQuizRow(quiz)).
			Column("title", "description", "course_id", "time_limit", "passing_score",
				"is_active", "show_results", "bonus_enabled", "bonus_time_per_question", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if !replaceQuestions {
			return nil
		}

		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		return insertQuestions(ctx, tx, quiz)
	})
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockQuiz(ctx, tx, quizID); err != nil {
			return err
		}
		if err := ensureUnused(ctx, tx, quizID); err != nil {
			return err
		}
		// questions go with the quiz via ON DELETE CASCADE
		if _, err := tx.NewDelete().Model((*quizRow)(nil)).Where("id = ?", quizID).Exec(ctx); err != nil {
			if code, _ := pgError(err); code == pgForeignKeyViolation {
				return domain.ErrQuizInUse
			}
			return fmt.Errorf("delete quiz: %w", err)
		}
		return nil
	})
}

func (s *Store) ListQuizzes(ctx context.Context, creatorID string) ([]domain.Quiz, error) {
	var rows []quizRow
	q := s.db.NewSelect().
		Model(&rows).
		Relation("Questions", orderQuestions).
		Order("q.created_at ASC", "q.id ASC")
	if creatorID != "" {
		q = q.Where("q.creator_id = ?", creatorID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) CreateExamination(ctx context.Context, exam domain.Examination) error {
	res, err := s.db.NewInsert().
		Model(newExaminationRow(exam)).
		On("CONFLICT (quiz_id, student_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		if code, _ := pgError(err); code == pgForeignKeyViolation {
			return domain.ErrQuizNotFound
		}
		return fmt.Errorf("insert examination: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDuplicateExamination
	}
	return nil
}

func (s *Store) FindExamination(ctx context.Context, quizID, studentID string) (domain.Examination, error) {
	return selectExamination(ctx, s.db, false, "quiz_id = ? AND student_id = ?", quizID, studentID)
}

func (s *Store) GetExamination(ctx context.Context, examID string) (domain.Examination, error) {
	return selectExamination(ctx, s.db, false, "id = ?", examID)
}

func (s *Store) GetExaminationByToken(ctx context.Context, token string) (domain.Examination, error) {
	return selectExamination(ctx, s.db, false, "token = ?", token)
}

func (s *Store) ListExaminations(ctx context.Context, quizID string) ([]domain.Examination, error) {
	var rows []examinationRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("started_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list examinations: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Examination{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var answers []answerRow
	if err := s.db.NewSelect().
		Model(&answers).
		Where("examination_id IN (?)", bun.In(ids)).
		Order("created_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byExam := make(map[string][]answerRow, len(rows))
	for _, a := range answers {
		byExam[a.ExaminationID] = append(byExam[a.ExaminationID], a)
	}

	out := make([]domain.Examination, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain(byExam[rows[i].ID]))
	}
	return out, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx app.ExaminationTx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &examinationTx{tx: tx})
	})
}

type examinationTx struct {
	tx bun.Tx
}

func (t *examinationTx) LockExamination(ctx context.Context, examID string) (domain.Examination, error) {
	return selectExamination(ctx, t.tx, true, "id = ?", examID)
}

func (t *examinationTx) UpsertAnswers(ctx context.Context, answers []domain.ExaminationAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	rows := newAnswerRows(answers)
	_, err := t.tx.NewInsert().
		Model(&rows).
		On("CONFLICT (examination_id, question_id) DO UPDATE").
		Set("answer = EXCLUDED.answer").
		Set("is_correct = EXCLUDED.is_correct").
		Set("points_earned = EXCLUDED.points_earned").
		Set("bonus_awarded = EXCLUDED.bonus_awarded").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (t *examinationTx) SaveExamination(ctx context.Context, exam domain.Examination) error {
	res, err := t.tx.NewUpdate().
		Model(newExaminationRow(exam)).
		Column("completed_at", "time_spent", "bonus_time_earned", "score", "percentage", "passed").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrExaminationNotFound
	}
	return nil
}

func (s *Store) selectQuiz(ctx context.Context, where string, arg interface{}) (domain.Quiz, error) {
	row := new(quizRow)
	err := s.db.NewSelect().
		Model(row).
		Relation("Questions", orderQuestions).
		Where(where, arg).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return row.toDomain(), nil
}

func selectExamination(ctx context.Context, db bun.IDB, forUpdate bool, where string, args ...interface{}) (domain.Examination, error) {
	row := new(examinationRow)
	q := db.NewSelect().Model(row).Where(where, args...)
	if forUpdate {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Examination{}, domain.ErrExaminationNotFound
	}
	if err != nil {
		return domain.Examination{}, fmt.Errorf("load examination: %w", err)
	}

	var answers []answerRow
	if err := db.NewSelect().
		Model(&answers).
		Where("examination_id = ?", row.ID).
		Order("created_at ASC", "id ASC").
		Scan(ctx); err != nil {
		return domain.Examination{}, fmt.Errorf("load answers: %w", err)
	}
	return row.toDomain(answers), nil
}

func insertQuestions(ctx context.Context, tx bun.Tx, quiz domain.Quiz) error {
	rows := newQuestionRows(quiz)
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

// lockQuiz takes the quiz row lock so no examination can be created for it
// until the transaction ends.
func lockQuiz(ctx context.Context, tx bun.Tx, quizID string) error {
	var id string
	err := tx.NewSelect().
		Table("quizzes").
		Column("id").
		Where("id = ?", quizID).
		For("UPDATE").
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrQuizNotFound
	}
	return err
}

func ensureUnused(ctx context.Context, tx bun.Tx, quizID string) error {
	inUse, err := tx.NewSelect().
		Model((*examinationRow)(nil)).
		Where("quiz_id = ?", quizID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check examinations: %w", err)
	}
	if inUse {
		return domain.ErrQuizInUse
	}
	return nil
}

func orderQuestions(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("order_index ASC", "id ASC")
}

func pgError(err error) (code, constraint string) {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C'), pgErr.Field('n')
	}
	return "", ""
}
