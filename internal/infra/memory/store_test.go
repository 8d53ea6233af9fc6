package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRejectsDuplicateAccessCode(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	other := sampleQuiz()
	other.ID = "quiz-2"
	err := store.CreateQuiz(ctx, other)
	assert.ErrorIs(t, err, domain.ErrAccessCodeTaken)

	exists, err := store.AccessCodeExists(ctx, "ABC123-456789")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreOneExaminationPerStudent(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	first := domain.Examination{ID: "e1", QuizID: "quiz-1", StudentID: "s1", Token: "t1", StartedAt: time.Now()}
	require.NoError(t, store.CreateExamination(ctx, first))

	second := domain.Examination{ID: "e2", QuizID: "quiz-1", StudentID: "s1", Token: "t2", StartedAt: time.Now()}
	assert.ErrorIs(t, store.CreateExamination(ctx, second), domain.ErrDuplicateExamination)

	found, err := store.FindExamination(ctx, "quiz-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "e1", found.ID)

	byToken, err := store.GetExaminationByToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "e1", byToken.ID)
}

func TestStoreListExaminationsEmptyIsNotNil(t *testing.T) {
	store := seededStore(t)

	exams, err := store.ListExaminations(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.NotNil(t, exams)
	assert.Empty(t, exams)
}

func TestStoreTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.CreateExamination(ctx, domain.Examination{ID: "e1", QuizID: "quiz-1", StudentID: "s1", Token: "t1"}))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx app.ExaminationTx) error {
		exam, err := tx.LockExamination(ctx, "e1")
		require.NoError(t, err)
		correct := true
		require.NoError(t, tx.UpsertAnswers(ctx, []domain.ExaminationAnswer{
			{ID: "a1", ExaminationID: "e1", QuestionID: "q1", Answer: "1", IsCorrect: &correct, PointsEarned: 1},
		}))
		exam.BonusTimeEarned = 30
		require.NoError(t, tx.SaveExamination(ctx, exam))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exam, err := store.GetExamination(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, exam.Answers)
	assert.Zero(t, exam.BonusTimeEarned)
}

func TestStoreUpsertKeepsOneRowPerQuestion(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.CreateExamination(ctx, domain.Examination{ID: "e1", QuizID: "quiz-1", StudentID: "s1", Token: "t1"}))

	for _, value := range []string{"0", "1"} {
		value := value
		err := store.RunInTx(ctx, func(ctx context.Context, tx app.ExaminationTx) error {
			return tx.UpsertAnswers(ctx, []domain.ExaminationAnswer{
				{ID: "a-" + value, ExaminationID: "e1", QuestionID: "q1", Answer: value},
			})
		})
		require.NoError(t, err)
	}

	exam, err := store.GetExamination(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, exam.Answers, 1)
	assert.Equal(t, "1", exam.Answers[0].Answer)
	assert.Equal(t, "a-0", exam.Answers[0].ID, "row identity is kept on update")
}

func TestStoreQuizWithExaminationsIsProtected(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	require.NoError(t, store.CreateExamination(ctx, domain.Examination{ID: "e1", QuizID: "quiz-1", StudentID: "s1", Token: "t1"}))

	assert.ErrorIs(t, store.DeleteQuiz(ctx, "quiz-1"), domain.ErrQuizInUse)

	quiz, err := store.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.ErrorIs(t, store.UpdateQuiz(ctx, quiz, true), domain.ErrQuizInUse)

	quiz.Title = "Renamed"
	require.NoError(t, store.UpdateQuiz(ctx, quiz, false))
	reloaded, err := store.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Title)
}

func TestStoreDeleteQuiz(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	require.NoError(t, store.DeleteQuiz(ctx, "quiz-1"))
	_, err := store.LoadQuiz(ctx, "quiz-1")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)

	exists, err := store.AccessCodeExists(ctx, "ABC123-456789")
	require.NoError(t, err)
	assert.False(t, exists, "access code is released with the quiz")
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	quiz, err := store.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	quiz.Questions[0].Options[0] = "mutated"

	again, err := store.LoadQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "3", again.Questions[0].Options[0])
}
