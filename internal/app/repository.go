package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"quiz-exam-service/internal/domain"

	"github.com/google/uuid"
)

// QuizLoader fetches quiz content, with questions in order, from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository serves quiz content on the hot path (usually cached).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string) error
}

// QuizStore persists quizzes and their questions.
type QuizStore interface {
	QuizLoader
	// CreateQuiz returns domain.ErrAccessCodeTaken if the access code is not unique.
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	GetQuizByAccessCode(ctx context.Context, code string) (domain.Quiz, error)
	AccessCodeExists(ctx context.Context, code string) (bool, error)
	// UpdateQuiz writes the quiz fields; when replaceQuestions is set it also swaps
	// the question set, failing with domain.ErrQuizInUse if examinations exist.
	UpdateQuiz(ctx context.Context, quiz domain.Quiz, replaceQuestions bool) error
	// DeleteQuiz fails with domain.ErrQuizInUse if examinations exist.
	DeleteQuiz(ctx context.Context, quizID string) error
	// ListQuizzes lists quizzes created by creatorID, or all quizzes if it is empty.
	ListQuizzes(ctx context.Context, creatorID string) ([]domain.Quiz, error)
}

// ExaminationStore persists examinations and their answers.
type ExaminationStore interface {
	// CreateExamination returns domain.ErrDuplicateExamination if the student
	// already has an examination for the quiz.
	CreateExamination(ctx context.Context, exam domain.Examination) error
	FindExamination(ctx context.Context, quizID, studentID string) (domain.Examination, error)
	GetExamination(ctx context.Context, examID string) (domain.Examination, error)
	GetExaminationByToken(ctx context.Context, token string) (domain.Examination, error)
	ListExaminations(ctx context.Context, quizID string) ([]domain.Examination, error)
	// RunInTx runs fn in a single transaction, committing only if fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ExaminationTx) error) error
}

// ExaminationTx is the write surface available inside RunInTx.
type ExaminationTx interface {
	// LockExamination loads the examination with its answers and holds it
	// exclusively until the transaction ends.
	LockExamination(ctx context.Context, examID string) (domain.Examination, error)
	UpsertAnswers(ctx context.Context, answers []domain.ExaminationAnswer) error
	// SaveExamination writes the scalar fields of exam (not its answers).
	SaveExamination(ctx context.Context, exam domain.Examination) error
}

// Store is the full persistence contract.
type Store interface {
	QuizStore
	ExaminationStore
}

// ProgressPublisher broadcasts examination progress to monitors.
type ProgressPublisher interface {
	Publish(ctx context.Context, event domain.ProgressEvent) error
}

type options struct {
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	progress ProgressPublisher
}

// Option customizes a service.
type Option func(*options)

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides the UUID generator used for new records.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProgress sets where progress events are published.
func WithProgress(p ProgressPublisher) Option {
	return func(o *options) { o.progress = p }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
