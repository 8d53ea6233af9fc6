package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"quiz-exam-service/internal/domain"
)

const createQuizAttempts = 3

// QuestionDraft is the author-supplied form of a question.
type QuestionDraft struct {
	Text          string              `json:"text"`
	Type          domain.QuestionType `json:"type"`
	Options       []string            `json:"options"`
	CorrectAnswer string              `json:"correctAnswer"`
	Points        *int                `json:"points"` // defaults to 1
	Order         *int                `json:"order"`  // defaults to position
}

// QuizDraft is the author-supplied form of a new quiz.
type QuizDraft struct {
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	CourseID             string          `json:"courseId"`
	TimeLimit            *int            `json:"timeLimit"`
	PassingScore         float64         `json:"passingScore"`
	IsActive             *bool           `json:"isActive"` // defaults to true
	ShowResults          bool            `json:"showResults"`
	BonusEnabled         bool            `json:"bonusEnabled"`
	BonusTimePerQuestion int             `json:"bonusTimePerQuestion"`
	Questions            []QuestionDraft `json:"questions"`
}

// QuizPatch is a partial update. Nil fields are left unchanged.
type QuizPatch struct {
	Title                *string          `json:"title"`
	Description          *string          `json:"description"`
	CourseID             *string          `json:"courseId"`
	TimeLimit            *int             `json:"timeLimit"`
	ClearTimeLimit       bool             `json:"clearTimeLimit"`
	PassingScore         *float64         `json:"passingScore"`
	IsActive             *bool            `json:"isActive"`
	ShowResults          *bool            `json:"showResults"`
	BonusEnabled         *bool            `json:"bonusEnabled"`
	BonusTimePerQuestion *int             `json:"bonusTimePerQuestion"`
	Questions            *[]QuestionDraft `json:"questions"`
}

// QuizService contains the quiz authoring use cases.
type QuizService struct {
	store   Store
	quizzes QuizRepository
	codes   *AccessCodeGenerator
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func NewQuizService(store Store, quizzes QuizRepository, codes *AccessCodeGenerator, opts ...Option) *QuizService {
	o := buildOptions(opts)
	return &QuizService{
		store:   store,
		quizzes: quizzes,
		codes:   codes,
		logger:  o.logger,
		now:     o.now,
		newID:   o.newID,
	}
}

// CreateQuiz validates the draft, assigns a unique access code and stores it.
func (s *QuizService) CreateQuiz(ctx context.Context, caller domain.Caller, draft QuizDraft) (domain.Quiz, error) {
	if !canAuthor(caller) {
		return domain.Quiz{}, domain.ErrForbidden
	}

	now := s.now().UTC()
	quiz := domain.Quiz{
		ID:                   s.newID(),
		Title:                draft.Title,
		Description:          draft.Description,
		CourseID:             draft.CourseID,
		CreatorID:            caller.ID,
		TimeLimit:            draft.TimeLimit,
		PassingScore:         draft.PassingScore,
		IsActive:             draft.IsActive == nil || *draft.IsActive,
		ShowResults:          draft.ShowResults,
		BonusEnabled:         draft.BonusEnabled,
		BonusTimePerQuestion: draft.BonusTimePerQuestion,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	quiz.Questions = s.buildQuestions(quiz.ID, draft.Questions)
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}

	for attempt := 0; attempt < createQuizAttempts; attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
		}
		quiz.AccessCode = code

		err = s.store.CreateQuiz(ctx, quiz)
		if errors.Is(err, domain.ErrAccessCodeTaken) {
			s.logger.Warn("access code claimed concurrently, regenerating", slog.String("code", code))
			continue
		}
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
		}

		s.logger.Info("quiz created",
			slog.String("quiz_id", quiz.ID),
			slog.String("creator_id", caller.ID),
			slog.Int("questions", len(quiz.Questions)))
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrNoAccessCode
}

// UpdateQuiz applies a partial update. Questions can only be replaced while
// no examination references the quiz.
func (s *QuizService) UpdateQuiz(ctx context.Context, caller domain.Caller, quizID string, patch QuizPatch) (domain.Quiz, error) {
	quiz, err := s.AuthorizeOwner(ctx, caller, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}

	if patch.Title != nil {
		quiz.Title = *patch.Title
	}
	if patch.Description != nil {
		quiz.Description = *patch.Description
	}
	if patch.CourseID != nil {
		quiz.CourseID = *patch.CourseID
	}
	if patch.ClearTimeLimit {
		quiz.TimeLimit = nil
	} else if patch.TimeLimit != nil {
		quiz.TimeLimit = patch.TimeLimit
	}
	if patch.PassingScore != nil {
		quiz.PassingScore = *patch.PassingScore
	}
	if patch.IsActive != nil {
		quiz.IsActive = *patch.IsActive
	}
	if patch.ShowResults != nil {
		quiz.ShowResults = *patch.ShowResults
	}
	if patch.BonusEnabled != nil {
		quiz.BonusEnabled = *patch.BonusEnabled
	}
	if patch.BonusTimePerQuestion != nil {
		quiz.BonusTimePerQuestion = *patch.BonusTimePerQuestion
	}
	replace := patch.Questions != nil
	if replace {
		quiz.Questions = s.buildQuestions(quiz.ID, *patch.Questions)
	}
	quiz.UpdatedAt = s.now().UTC()

	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.store.UpdateQuiz(ctx, quiz, replace); err != nil {
		if errors.Is(err, domain.ErrQuizInUse) || errors.Is(err, domain.ErrQuizNotFound) {
			return domain.Quiz{}, err
		}
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	s.invalidate(ctx, quiz.ID)
	return quiz, nil
}

// DeleteQuiz removes a quiz and its questions unless examinations reference it.
func (s *QuizService) DeleteQuiz(ctx context.Context, caller domain.Caller, quizID string) error {
	if _, err := s.AuthorizeOwner(ctx, caller, quizID); err != nil {
		return err
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		if errors.Is(err, domain.ErrQuizInUse) || errors.Is(err, domain.ErrQuizNotFound) {
			return err
		}
		return fmt.Errorf("delete quiz: %w", err)
	}
	s.invalidate(ctx, quizID)
	s.logger.Info("quiz deleted", slog.String("quiz_id", quizID), slog.String("by", caller.ID))
	return nil
}

// GetQuiz returns the full quiz, answer key included, to its owner or an admin.
func (s *QuizService) GetQuiz(ctx context.Context, caller domain.Caller, quizID string) (domain.Quiz, error) {
	return s.AuthorizeOwner(ctx, caller, quizID)
}

// ListQuizzes lists the caller's quizzes; admins see every quiz.
func (s *QuizService) ListQuizzes(ctx context.Context, caller domain.Caller) ([]domain.Quiz, error) {
	creator := caller.ID
	switch caller.Role {
	case domain.RoleAdmin:
		creator = ""
	case domain.RoleTeacher:
	default:
		return nil, domain.ErrForbidden
	}
	quizzes, err := s.store.ListQuizzes(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// LookupByAccessCode resolves an access code to the quiz's public summary.
func (s *QuizService) LookupByAccessCode(ctx context.Context, code string) (domain.QuizSummary, error) {
	if code == "" {
		return domain.QuizSummary{}, fmt.Errorf("%w: access code is required", domain.ErrInvalidInput)
	}
	quiz, err := s.store.GetQuizByAccessCode(ctx, code)
	if err != nil {
		return domain.QuizSummary{}, err
	}
	return quiz.Summary(), nil
}

// AuthorizeOwner loads the quiz from the store and checks that caller created
// it or is an admin.
func (s *QuizService) AuthorizeOwner(ctx context.Context, caller domain.Caller, quizID string) (domain.Quiz, error) {
	if !canAuthor(caller) {
		return domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if caller.Role != domain.RoleAdmin && quiz.CreatorID != caller.ID {
		return domain.Quiz{}, domain.ErrNotQuizOwner
	}
	return quiz, nil
}

// ExportResults writes one CSV row per examination of the quiz.
func (s *QuizService) ExportResults(ctx context.Context, caller domain.Caller, quizID string, w io.Writer) error {
	quiz, err := s.AuthorizeOwner(ctx, caller, quizID)
	if err != nil {
		return err
	}
	exams, err := s.store.ListExaminations(ctx, quizID)
	if err != nil {
		return fmt.Errorf("list examinations: %w", err)
	}

	rows := make([][]string, 0, len(exams)+1)
	rows = append(rows, []string{
		"student",
		"token",
		"started_at",
		"completed_at",
		"score",
		"max_score",
		"percentage",
		"passed",
		"time_spent",
		"bonus_time_earned",
	})
	maxScore := strconv.Itoa(quiz.MaxScore())
	for _, exam := range exams {
		completedAt := ""
		if exam.CompletedAt != nil {
			completedAt = exam.CompletedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			exam.StudentID,
			exam.Token,
			exam.StartedAt.UTC().Format(time.RFC3339),
			completedAt,
			strconv.Itoa(exam.Score),
			maxScore,
			strconv.FormatFloat(exam.Percentage, 'f', 2, 64),
			strconv.FormatBool(exam.Passed),
			strconv.Itoa(exam.TimeSpent),
			strconv.Itoa(exam.BonusTimeEarned),
		})
	}

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func (s *QuizService) buildQuestions(quizID string, drafts []QuestionDraft) []domain.Question {
	questions := make([]domain.Question, 0, len(drafts))
	for i, d := range drafts {
		points := 1
		if d.Points != nil {
			points = *d.Points
		}
		order := i
		if d.Order != nil {
			order = *d.Order
		}
		options := d.Options
		if options == nil {
			options = []string{}
		}
		questions = append(questions, domain.Question{
			ID:            s.newID(),
			QuizID:        quizID,
			Text:          d.Text,
			Type:          d.Type,
			Options:       options,
			CorrectAnswer: d.CorrectAnswer,
			Points:        points,
			Order:         order,
		})
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
	return questions
}

func (s *QuizService) invalidate(ctx context.Context, quizID string) {
	if s.quizzes == nil {
		return
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		s.logger.Warn("quiz cache invalidation failed",
			slog.String("quiz_id", quizID),
			slog.String("error", err.Error()))
	}
}

func canAuthor(caller domain.Caller) bool {
	return caller.Role == domain.RoleTeacher || caller.Role == domain.RoleAdmin
}
