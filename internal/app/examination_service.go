package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quiz-exam-service/internal/domain"
)

// StartResult is returned when a student starts or resumes an examination.
type StartResult struct {
	Examination domain.Examination `json:"examination"`
	Quiz        domain.Quiz        `json:"quiz"`
	Resumed     bool               `json:"resumed"`
}

// SubmitResult carries the updated examination and inline grading feedback.
type SubmitResult struct {
	Examination domain.Examination    `json:"examination"`
	Statuses    []domain.AnswerStatus `json:"statuses"`
}

// Result is the full view of an examination for result pages.
type Result struct {
	Examination domain.Examination   `json:"examination"`
	Quiz        domain.Quiz          `json:"quiz"`
	Summary     domain.ResultSummary `json:"summary"`
}

// ExaminationService runs the examination lifecycle: start, submit, complete.
type ExaminationService struct {
	store    ExaminationStore
	quizzes  QuizRepository
	progress ProgressPublisher
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewExaminationService(store ExaminationStore, quizzes QuizRepository, opts ...Option) *ExaminationService {
	o := buildOptions(opts)
	return &ExaminationService{
		store:    store,
		quizzes:  quizzes,
		progress: o.progress,
		logger:   o.logger,
		now:      o.now,
		newID:    o.newID,
	}
}

// Start creates the student's examination for a quiz, or resumes the
// existing incomplete one. Completed examinations cannot be retaken.
func (s *ExaminationService) Start(ctx context.Context, quizID, studentID string) (StartResult, error) {
	if strings.TrimSpace(quizID) == "" {
		return StartResult{}, fmt.Errorf("%w: quizId is required", domain.ErrInvalidInput)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if !quiz.IsActive {
		return StartResult{}, domain.ErrQuizInactive
	}
	if len(quiz.Questions) == 0 {
		return StartResult{}, domain.ErrQuizHasNoQuestions
	}

	existing, err := s.store.FindExamination(ctx, quizID, studentID)
	switch {
	case err == nil:
		return resume(existing, quiz)
	case !errors.Is(err, domain.ErrExaminationNotFound):
		return StartResult{}, fmt.Errorf("find examination: %w", err)
	}

	exam := domain.Examination{
		ID:        s.newID(),
		QuizID:    quizID,
		StudentID: studentID,
		Token:     s.newID(),
		StartedAt: s.now().UTC(),
		Answers:   []domain.ExaminationAnswer{},
	}
	if err := s.store.CreateExamination(ctx, exam); err != nil {
		if !errors.Is(err, domain.ErrDuplicateExamination) {
			return StartResult{}, fmt.Errorf("create examination: %w", err)
		}
		// A concurrent start won the race; hand back its row.
		winner, err := s.store.FindExamination(ctx, quizID, studentID)
		if err != nil {
			return StartResult{}, fmt.Errorf("find examination: %w", err)
		}
		return resume(winner, quiz)
	}

	s.logger.Info("examination started",
		slog.String("examination_id", exam.ID),
		slog.String("quiz_id", quizID),
		slog.String("student_id", studentID))
	s.publish(ctx, domain.ProgressStarted, exam)

	return StartResult{Examination: exam, Quiz: quiz.ForStudent()}, nil
}

func resume(exam domain.Examination, quiz domain.Quiz) (StartResult, error) {
	if exam.IsCompleted() {
		return StartResult{}, domain.ErrAlreadyCompleted
	}
	return StartResult{Examination: exam, Quiz: quiz.ForStudent(), Resumed: true}, nil
}

// SubmitAnswers grades and stores a batch of answers. The upserts and any
// bonus-time credit commit together or not at all.
func (s *ExaminationService) SubmitAnswers(ctx context.Context, examID, studentID string, inputs []domain.AnswerInput) (SubmitResult, error) {
	exam, quiz, err := s.loadMutable(ctx, examID, studentID)
	if err != nil {
		return SubmitResult{}, err
	}

	var result SubmitResult
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ExaminationTx) error {
		locked, err := tx.LockExamination(ctx, exam.ID)
		if err != nil {
			return err
		}
		if err := checkMutable(locked, studentID); err != nil {
			return err
		}

		graded := gradeAnswers(quiz, locked, inputs, s.now().UTC(), s.newID)
		if len(graded.upserts) > 0 {
			if err := tx.UpsertAnswers(ctx, graded.upserts); err != nil {
				return fmt.Errorf("upsert answers: %w", err)
			}
		}
		if graded.bonus > 0 {
			locked.BonusTimeEarned += graded.bonus
			if err := tx.SaveExamination(ctx, locked); err != nil {
				return fmt.Errorf("save bonus time: %w", err)
			}
		}
		locked.Answers = graded.answers
		result = SubmitResult{Examination: locked, Statuses: graded.statuses}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	if result.Statuses == nil {
		result.Statuses = []domain.AnswerStatus{}
	}

	if len(result.Statuses) > 0 {
		s.publish(ctx, domain.ProgressAnswered, result.Examination)
	}
	return result, nil
}

// Complete finalizes the examination: score, percentage, pass/fail and time spent.
func (s *ExaminationService) Complete(ctx context.Context, examID, studentID string) (domain.Examination, error) {
	exam, quiz, err := s.loadMutable(ctx, examID, studentID)
	if err != nil {
		return domain.Examination{}, err
	}

	var completed domain.Examination
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ExaminationTx) error {
		locked, err := tx.LockExamination(ctx, exam.ID)
		if err != nil {
			return err
		}
		if err := checkMutable(locked, studentID); err != nil {
			return err
		}
		finalize(&locked, quiz, s.now().UTC())
		if err := tx.SaveExamination(ctx, locked); err != nil {
			return fmt.Errorf("save completion: %w", err)
		}
		completed = locked
		return nil
	})
	if err != nil {
		return domain.Examination{}, err
	}

	s.logger.Info("examination completed",
		slog.String("examination_id", completed.ID),
		slog.Int("score", completed.Score),
		slog.Float64("percentage", completed.Percentage),
		slog.Bool("passed", completed.Passed))
	s.publish(ctx, domain.ProgressCompleted, completed)
	return completed, nil
}

// GetResult returns the examination with its quiz and summary.
func (s *ExaminationService) GetResult(ctx context.Context, caller domain.Caller, examID string) (Result, error) {
	exam, err := s.store.GetExamination(ctx, examID)
	if err != nil {
		return Result{}, err
	}
	return s.result(ctx, caller, exam)
}

// GetResultByToken looks an examination up by its opaque token.
func (s *ExaminationService) GetResultByToken(ctx context.Context, caller domain.Caller, token string) (Result, error) {
	exam, err := s.store.GetExaminationByToken(ctx, token)
	if err != nil {
		return Result{}, err
	}
	return s.result(ctx, caller, exam)
}

func (s *ExaminationService) result(ctx context.Context, caller domain.Caller, exam domain.Examination) (Result, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, exam.QuizID)
	if err != nil {
		return Result{}, err
	}

	view := quiz
	switch {
	case caller.Role == domain.RoleAdmin:
	case caller.Role == domain.RoleTeacher && quiz.CreatorID == caller.ID:
	case caller.Role == domain.RoleStudent && exam.StudentID == caller.ID:
		if !quiz.ShowResults || !exam.IsCompleted() {
			view = quiz.ForStudent()
		}
	case caller.Role == domain.RoleStudent:
		return Result{}, domain.ErrNotExaminationOwner
	case caller.Role == domain.RoleTeacher:
		return Result{}, domain.ErrNotQuizOwner
	default:
		return Result{}, domain.ErrForbidden
	}

	return Result{Examination: exam, Quiz: view, Summary: summarize(exam, quiz)}, nil
}

// loadMutable performs the cheap pre-transaction checks and loads the quiz
// used for grading.
func (s *ExaminationService) loadMutable(ctx context.Context, examID, studentID string) (domain.Examination, domain.Quiz, error) {
	exam, err := s.store.GetExamination(ctx, examID)
	if err != nil {
		return domain.Examination{}, domain.Quiz{}, err
	}
	if err := checkMutable(exam, studentID); err != nil {
		return domain.Examination{}, domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, exam.QuizID)
	if err != nil {
		return domain.Examination{}, domain.Quiz{}, err
	}
	return exam, quiz, nil
}

func checkMutable(exam domain.Examination, studentID string) error {
	if exam.StudentID != studentID {
		return domain.ErrNotExaminationOwner
	}
	if exam.IsCompleted() {
		return domain.ErrAlreadyCompleted
	}
	return nil
}

func (s *ExaminationService) publish(ctx context.Context, typ domain.ProgressEventType, exam domain.Examination) {
	if s.progress == nil {
		return
	}
	event := domain.ProgressEvent{
		Type:            typ,
		QuizID:          exam.QuizID,
		ExaminationID:   exam.ID,
		StudentID:       exam.StudentID,
		Answered:        len(exam.Answers),
		BonusTimeEarned: exam.BonusTimeEarned,
		At:              s.now().UTC(),
	}
	for _, a := range exam.Answers {
		event.Score += a.PointsEarned
	}
	if exam.IsCompleted() {
		percentage, passed := exam.Percentage, exam.Passed
		event.Score = exam.Score
		event.Percentage = &percentage
		event.Passed = &passed
	}
	if err := s.progress.Publish(ctx, event); err != nil {
		s.logger.Warn("publish progress failed",
			slog.String("examination_id", exam.ID),
			slog.String("error", err.Error()))
	}
}
