package postgres

import (
	"time"

	"quiz-exam-service/internal/domain"

	"github.com/uptrace/bun"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID                   string         `bun:"id,pk"`
	Title                string         `bun:"title,notnull"`
	Description          string         `bun:"description,notnull"`
	CourseID             string         `bun:"course_id,notnull"`
	CreatorID            string         `bun:"creator_id,notnull"`
	AccessCode           string         `bun:"access_code,notnull,unique"`
	TimeLimit            *int           `bun:"time_limit"`
	PassingScore         float64        `bun:"passing_score,notnull"`
	IsActive             bool           `bun:"is_active,notnull"`
	ShowResults          bool           `bun:"show_results,notnull"`
	BonusEnabled         bool           `bun:"bonus_enabled,notnull"`
	BonusTimePerQuestion int            `bun:"bonus_time_per_question,notnull"`
	CreatedAt            time.Time      `bun:"created_at,notnull"`
	UpdatedAt            time.Time      `bun:"updated_at,notnull"`
	Questions            []*questionRow `bun:"rel:has-many,join:id=quiz_id"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qn"`

	ID            string   `bun:"id,pk"`
	QuizID        string   `bun:"quiz_id,notnull"`
	Text          string   `bun:"text,notnull"`
	Type          string   `bun:"type,notnull"`
	Options       []string `bun:"options,array"`
	CorrectAnswer string   `bun:"correct_answer,notnull"`
	Points        int      `bun:"points,notnull"`
	OrderIndex    int      `bun:"order_index,notnull"`
}

type examinationRow struct {
	bun.BaseModel `bun:"table:examinations,alias:e"`

	ID              string     `bun:"id,pk"`
	QuizID          string     `bun:"quiz_id,notnull"`
	StudentID       string     `bun:"student_id,notnull"`
	Token           string     `bun:"token,notnull,unique"`
	StartedAt       time.Time  `bun:"started_at,notnull"`
	CompletedAt     *time.Time `bun:"completed_at"`
	TimeSpent       int        `bun:"time_spent,notnull"`
	BonusTimeEarned int        `bun:"bonus_time_earned,notnull"`
	Score           int        `bun:"score,notnull"`
	Percentage      float64    `bun:"percentage,notnull"`
	Passed          bool       `bun:"passed,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:examination_answers,alias:ea"`

	ID            string    `bun:"id,pk"`
	ExaminationID string    `bun:"examination_id,notnull"`
	QuestionID    string    `bun:"question_id,notnull"`
	Answer        string    `bun:"answer,notnull"`
	IsCorrect     *bool     `bun:"is_correct"`
	PointsEarned  int       `bun:"points_earned,notnull"`
	BonusAwarded  bool      `bun:"bonus_awarded,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func newQuizRow(q domain.Quiz) *quizRow {
	row := &quizRow{
		ID:                   q.ID,
		Title:                q.Title,
		Description:          q.Description,
		CourseID:             q.CourseID,
		CreatorID:            q.CreatorID,
		AccessCode:           q.AccessCode,
		TimeLimit:            q.TimeLimit,
		PassingScore:         q.PassingScore,
		IsActive:             q.IsActive,
		ShowResults:          q.ShowResults,
		BonusEnabled:         q.BonusEnabled,
		BonusTimePerQuestion: q.BonusTimePerQuestion,
		CreatedAt:            q.CreatedAt,
		UpdatedAt:            q.UpdatedAt,
	}
	return row
}

func newQuestionRows(q domain.Quiz) []*questionRow {
	rows := make([]*questionRow, 0, len(q.Questions))
	for _, question := range q.Questions {
		options := question.Options
		if options == nil {
			options = []string{}
		}
		rows = append(rows, &questionRow{
			ID:            question.ID,
			QuizID:        q.ID,
			Text:          question.Text,
			Type:          string(question.Type),
			Options:       options,
			CorrectAnswer: question.CorrectAnswer,
			Points:        question.Points,
			OrderIndex:    question.Order,
		})
	}
	return rows
}

func (r *quizRow) toDomain() domain.Quiz {
	quiz := domain.Quiz{
		ID:                   r.ID,
		Title:                r.Title,
		Description:          r.Description,
		CourseID:             r.CourseID,
		CreatorID:            r.CreatorID,
		AccessCode:           r.AccessCode,
		TimeLimit:            r.TimeLimit,
		PassingScore:         r.PassingScore,
		IsActive:             r.IsActive,
		ShowResults:          r.ShowResults,
		BonusEnabled:         r.BonusEnabled,
		BonusTimePerQuestion: r.BonusTimePerQuestion,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		Questions:            make([]domain.Question, 0, len(r.Questions)),
	}
	for _, q := range r.Questions {
		quiz.Questions = append(quiz.Questions, q.toDomain())
	}
	return quiz
}

func (r *questionRow) toDomain() domain.Question {
	options := r.Options
	if options == nil {
		options = []string{}
	}
	return domain.Question{
		ID:            r.ID,
		QuizID:        r.QuizID,
		Text:          r.Text,
		Type:          domain.QuestionType(r.Type),
		Options:       options,
		CorrectAnswer: r.CorrectAnswer,
		Points:        r.Points,
		Order:         r.OrderIndex,
	}
}

func newExaminationRow(e domain.Examination) *examinationRow {
	return &examinationRow{
		ID:              e.ID,
		QuizID:          e.QuizID,
		StudentID:       e.StudentID,
		Token:           e.Token,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		TimeSpent:       e.TimeSpent,
		BonusTimeEarned: e.BonusTimeEarned,
		Score:           e.Score,
		Percentage:      e.Percentage,
		Passed:          e.Passed,
	}
}

func (r *examinationRow) toDomain(answers []answerRow) domain.Examination {
	exam := domain.Examination{
		ID:              r.ID,
		QuizID:          r.QuizID,
		StudentID:       r.StudentID,
		Token:           r.Token,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		TimeSpent:       r.TimeSpent,
		BonusTimeEarned: r.BonusTimeEarned,
		Score:           r.Score,
		Percentage:      r.Percentage,
		Passed:          r.Passed,
		Answers:         make([]domain.ExaminationAnswer, 0, len(answers)),
	}
	for _, a := range answers {
		exam.Answers = append(exam.Answers, domain.ExaminationAnswer{
			ID:            a.ID,
			ExaminationID: a.ExaminationID,
			QuestionID:    a.QuestionID,
			Answer:        a.Answer,
			IsCorrect:     a.IsCorrect,
			PointsEarned:  a.PointsEarned,
			BonusAwarded:  a.BonusAwarded,
			CreatedAt:     a.CreatedAt,
			UpdatedAt:     a.UpdatedAt,
		})
	}
	return exam
}

func newAnswerRows(answers []domain.ExaminationAnswer) []answerRow {
	rows := make([]answerRow, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, answerRow{
			ID:            a.ID,
			ExaminationID: a.ExaminationID,
			QuestionID:    a.QuestionID,
			Answer:        a.Answer,
			IsCorrect:     a.IsCorrect,
			PointsEarned:  a.PointsEarned,
			BonusAwarded:  a.BonusAwarded,
			CreatedAt:     a.CreatedAt,
			UpdatedAt:     a.UpdatedAt,
		})
	}
	return rows
}
