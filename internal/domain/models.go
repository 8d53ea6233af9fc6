package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the caller's role as carried in the bearer token.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// Caller identifies the authenticated principal behind a request.
type Caller struct {
	ID   string
	Role Role
}

// QuestionType tags how a question's options and correct answer are interpreted.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// Question belongs to exactly one quiz. CorrectAnswer is compared verbatim
// against submitted answers: an option index for multiple choice, "true" or
// "false" for true/false, free text otherwise.
type Question struct {
	ID            string       `json:"id"`
	QuizID        string       `json:"quizId"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	Points        int          `json:"points"`
	Order         int          `json:"order"`
}

// Validate checks the per-type invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidInput)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: question points must not be negative", ErrInvalidInput)
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: multiple choice needs at least 2 options", ErrInvalidInput)
		}
		for i, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("%w: option %d is empty", ErrInvalidInput, i)
			}
		}
		idx, err := strconv.Atoi(q.CorrectAnswer)
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: correct answer must be an option index in [0,%d)", ErrInvalidInput, len(q.Options))
		}
	case QuestionTrueFalse:
		if q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
			return fmt.Errorf("%w: true/false correct answer must be \"true\" or \"false\"", ErrInvalidInput)
		}
	case QuestionShortAnswer, QuestionEssay:
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidInput, q.Type)
	}
	return nil
}

// Quiz is a teacher-authored set of ordered questions distributed by access code.
type Quiz struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	CourseID             string     `json:"courseId,omitempty"`
	CreatorID            string     `json:"creatorId"`
	AccessCode           string     `json:"accessCode"`
	TimeLimit            *int       `json:"timeLimit,omitempty"` // minutes
	PassingScore         float64    `json:"passingScore"`        // percent
	IsActive             bool       `json:"isActive"`
	ShowResults          bool       `json:"showResults"`
	BonusEnabled         bool       `json:"bonusEnabled"`
	BonusTimePerQuestion int        `json:"bonusTimePerQuestion"` // seconds
	Questions            []Question `json:"questions"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Validate checks quiz-level settings and every question.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("%w: passing score must be between 0 and 100", ErrInvalidInput)
	}
	if q.TimeLimit != nil && *q.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidInput)
	}
	if q.BonusTimePerQuestion < 0 {
		return fmt.Errorf("%w: bonus time must not be negative", ErrInvalidInput)
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}

// MaxScore is the sum of all question points, answered or not.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Question returns the question with the given id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// ForStudent returns a copy of the quiz with the answer key removed.
func (q Quiz) ForStudent() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectAnswer = ""
		out.Questions[i] = question
	}
	return out
}

// QuizSummary is what students see when looking up a quiz by access code.
type QuizSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	TimeLimit     *int   `json:"timeLimit,omitempty"`
	IsActive      bool   `json:"isActive"`
	QuestionCount int    `json:"questionCount"`
}

// Summary projects the quiz into its public summary.
func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		TimeLimit:     q.TimeLimit,
		IsActive:      q.IsActive,
		QuestionCount: len(q.Questions),
	}
}

// Examination is one student's attempt at one quiz.
type Examination struct {
	ID              string              `json:"id"`
	QuizID          string              `json:"quizId"`
	StudentID       string              `json:"studentId"`
	Token           string              `json:"token"`
	StartedAt       time.Time           `json:"startedAt"`
	CompletedAt     *time.Time          `json:"completedAt"`
	TimeSpent       int                 `json:"timeSpent"`       // seconds
	BonusTimeEarned int                 `json:"bonusTimeEarned"` // seconds
	Score           int                 `json:"score"`
	Percentage      float64             `json:"percentage"`
	Passed          bool                `json:"passed"`
	Answers         []ExaminationAnswer `json:"answers"`
}

// IsCompleted reports whether the examination reached its terminal state.
func (e Examination) IsCompleted() bool {
	return e.CompletedAt != nil
}

// Deadline is the nominal end of the attempt including earned bonus time.
// It is informational only; nothing rejects late submissions.
func (e Examination) Deadline(quiz Quiz) *time.Time {
	if quiz.TimeLimit == nil {
		return nil
	}
	d := e.StartedAt.
		Add(time.Duration(*quiz.TimeLimit) * time.Minute).
		Add(time.Duration(e.BonusTimeEarned) * time.Second)
	return &d
}

// ExaminationAnswer is the latest answer for one question of an examination.
type ExaminationAnswer struct {
	ID            string    `json:"id"`
	ExaminationID string    `json:"examinationId"`
	QuestionID    string    `json:"questionId"`
	Answer        string    `json:"answer"`
	IsCorrect     *bool     `json:"isCorrect"`
	PointsEarned  int       `json:"pointsEarned"`
	BonusAwarded  bool      `json:"bonusAwarded"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Correct treats an ungraded answer as incorrect.
func (a ExaminationAnswer) Correct() bool {
	return a.IsCorrect != nil && *a.IsCorrect
}

// AnswerInput is a client-submitted answer. Correctness is never accepted from clients.
type AnswerInput struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// AnswerStatus is the inline grading feedback for one processed answer.
type AnswerStatus struct {
	QuestionID   string `json:"questionId"`
	Answer       string `json:"answer"`
	IsCorrect    bool   `json:"isCorrect"`
	PointsEarned int    `json:"pointsEarned"`
}

// ResultSummary is the computed view of an examination's outcome.
type ResultSummary struct {
	Score           int        `json:"score"`
	MaxScore        int        `json:"maxScore"`
	Percentage      float64    `json:"percentage"`
	Passed          bool       `json:"passed"`
	Answered        int        `json:"answered"`
	Correct         int        `json:"correct"`
	TimeSpent       int        `json:"timeSpent"`
	BonusTimeEarned int        `json:"bonusTimeEarned"`
	Completed       bool       `json:"completed"`
	Deadline        *time.Time `json:"deadline,omitempty"`
}

// ProgressEventType names the lifecycle step a progress event reports.
type ProgressEventType string

const (
	ProgressStarted   ProgressEventType = "started"
	ProgressAnswered  ProgressEventType = "answered"
	ProgressCompleted ProgressEventType = "completed"
)

// ProgressEvent is pushed to teachers monitoring a quiz.
type ProgressEvent struct {
	Type            ProgressEventType `json:"type"`
	QuizID          string            `json:"quizId"`
	ExaminationID   string            `json:"examinationId"`
	StudentID       string            `json:"studentId"`
	Answered        int               `json:"answered"`
	Score           int               `json:"score"`
	BonusTimeEarned int               `json:"bonusTimeEarned"`
	Percentage      *float64          `json:"percentage,omitempty"`
	Passed          *bool             `json:"passed,omitempty"`
	At              time.Time         `json:"at"`
}
