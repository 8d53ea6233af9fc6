package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"
	"quiz-exam-service/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleDraft() app.QuizDraft {
	return app.QuizDraft{
		Title:        "Fractions",
		PassingScore: 60,
		Questions: []app.QuestionDraft{
			{Text: "1/2 + 1/2?", Type: domain.QuestionMultipleChoice, Options: []string{"1", "2"}, CorrectAnswer: "0", Points: intPtr(2)},
			{Text: "1/3 > 1/4", Type: domain.QuestionTrueFalse, CorrectAnswer: "true"},
			{Text: "Explain", Type: domain.QuestionEssay, Order: intPtr(-1)},
		},
	}
}

func TestCreateQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	quiz, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)

	assert.NotEmpty(t, quiz.ID)
	assert.Regexp(t, accessCodePattern, quiz.AccessCode)
	assert.Equal(t, teacher.ID, quiz.CreatorID)
	assert.True(t, quiz.IsActive, "quizzes are active unless stated otherwise")
	require.Len(t, quiz.Questions, 3)
	assert.Equal(t, "Explain", quiz.Questions[0].Text, "explicit order wins over position")
	assert.Equal(t, 2, quiz.Questions[1].Points)
	assert.Equal(t, 1, quiz.Questions[2].Points, "points default to 1")
	assert.Equal(t, 4, quiz.MaxScore())

	stored, err := f.store.GetQuizByAccessCode(ctx, quiz.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, quiz.ID, stored.ID)
}

func TestCreateQuizValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := map[string]func(d *app.QuizDraft){
		"blank title":      func(d *app.QuizDraft) { d.Title = " " },
		"passing over 100": func(d *app.QuizDraft) { d.PassingScore = 101 },
		"zero time limit":  func(d *app.QuizDraft) { d.TimeLimit = intPtr(0) },
		"negative bonus":   func(d *app.QuizDraft) { d.BonusTimePerQuestion = -1 },
		"mc index range":   func(d *app.QuizDraft) { d.Questions[0].CorrectAnswer = "5" },
		"tf bad answer":    func(d *app.QuizDraft) { d.Questions[1].CorrectAnswer = "yes" },
		"unknown type":     func(d *app.QuizDraft) { d.Questions[2].Type = "matching" },
		"negative points":  func(d *app.QuizDraft) { d.Questions[0].Points = intPtr(-1) },
		"single mc option": func(d *app.QuizDraft) { d.Questions[0].Options = []string{"1"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			draft := sampleDraft()
			mutate(&draft)
			_, err := f.quizzes.CreateQuiz(ctx, teacher, draft)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}

	_, err := f.quizzes.CreateQuiz(ctx, student, sampleDraft())
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// racingStore reports an access-code collision on the first insert, as a
// concurrent writer claiming the same code would.
type racingStore struct {
	*memory.Store
	collisions int
}

func (s *racingStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	if s.collisions > 0 {
		s.collisions--
		return domain.ErrAccessCodeTaken
	}
	return s.Store.CreateQuiz(ctx, quiz)
}

func TestCreateQuizRetriesCodeCollision(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Store: memory.NewStore(), collisions: 2}
	svc := app.NewQuizService(store, memory.NewQuizCache(store, time.Minute), app.NewAccessCodeGenerator(store, 10, 0))

	quiz, err := svc.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)
	assert.NotEmpty(t, quiz.AccessCode)

	store.collisions = 3
	_, err = svc.CreateQuiz(ctx, teacher, sampleDraft())
	assert.ErrorIs(t, err, domain.ErrNoAccessCode)
}

func TestUpdateQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)

	title := "Fractions II"
	updated, err := f.quizzes.UpdateQuiz(ctx, teacher, quiz.ID, app.QuizPatch{
		Title:     &title,
		TimeLimit: intPtr(15),
		Questions: &[]app.QuestionDraft{{Text: "2/4 = 1/2", Type: domain.QuestionTrueFalse, CorrectAnswer: "true", Points: intPtr(5)}},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, quiz.AccessCode, updated.AccessCode)
	require.NotNil(t, updated.TimeLimit)
	assert.Equal(t, 15, *updated.TimeLimit)
	assert.Equal(t, 5, updated.MaxScore())

	cleared, err := f.quizzes.UpdateQuiz(ctx, teacher, quiz.ID, app.QuizPatch{ClearTimeLimit: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.TimeLimit)

	_, err = f.quizzes.UpdateQuiz(ctx, domain.Caller{ID: "teacher-2", Role: domain.RoleTeacher}, quiz.ID, app.QuizPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrNotQuizOwner)

	bad := 150.0
	_, err = f.quizzes.UpdateQuiz(ctx, teacher, quiz.ID, app.QuizPatch{PassingScore: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuizInUseProtection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)
	_, err = f.exams.Start(ctx, quiz.ID, student.ID)
	require.NoError(t, err)

	_, err = f.quizzes.UpdateQuiz(ctx, teacher, quiz.ID, app.QuizPatch{Questions: &[]app.QuestionDraft{}})
	assert.ErrorIs(t, err, domain.ErrQuizInUse)

	active := false
	updated, err := f.quizzes.UpdateQuiz(ctx, teacher, quiz.ID, app.QuizPatch{IsActive: &active})
	require.NoError(t, err, "metadata stays editable")
	assert.False(t, updated.IsActive)

	err = f.quizzes.DeleteQuiz(ctx, teacher, quiz.ID)
	assert.ErrorIs(t, err, domain.ErrQuizInUse)
}

func TestDeleteQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)

	_, err = f.cache.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)

	require.NoError(t, f.quizzes.DeleteQuiz(ctx, admin, quiz.ID))
	_, err = f.quizzes.GetQuiz(ctx, teacher, quiz.ID)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
	_, err = f.exams.Start(ctx, quiz.ID, student.ID)
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

func TestListQuizzes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := domain.Caller{ID: "teacher-2", Role: domain.RoleTeacher}

	_, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)
	_, err = f.quizzes.CreateQuiz(ctx, other, sampleDraft())
	require.NoError(t, err)

	mine, err := f.quizzes.ListQuizzes(ctx, teacher)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.quizzes.ListQuizzes(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.quizzes.ListQuizzes(ctx, student)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLookupByAccessCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz, err := f.quizzes.CreateQuiz(ctx, teacher, sampleDraft())
	require.NoError(t, err)

	summary, err := f.quizzes.LookupByAccessCode(ctx, quiz.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, quiz.ID, summary.ID)
	assert.Equal(t, 3, summary.QuestionCount)

	_, err = f.quizzes.LookupByAccessCode(ctx, "NOPE00-000000")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
	_, err = f.quizzes.LookupByAccessCode(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExportResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz := f.seed(t, newQuiz("quiz-1", 50, 5, 5))

	started, err := f.exams.Start(ctx, quiz.ID, student.ID)
	require.NoError(t, err)
	_, err = f.exams.SubmitAnswers(ctx, started.Examination.ID, student.ID, []domain.AnswerInput{answer("quiz-1-q1", "1")})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.exams.Complete(ctx, started.Examination.ID, student.ID)
	require.NoError(t, err)
	_, err = f.exams.Start(ctx, quiz.ID, "student-2")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.quizzes.ExportResults(ctx, teacher, quiz.ID, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"student", "token", "started_at", "completed_at", "score", "max_score",
		"percentage", "passed", "time_spent", "bonus_time_earned"}, rows[0])
	assert.Equal(t, "student-1", rows[1][0])
	assert.Equal(t, "5", rows[1][4])
	assert.Equal(t, "10", rows[1][5])
	assert.Equal(t, "50.00", rows[1][6])
	assert.Equal(t, "true", rows[1][7])
	assert.Equal(t, "60", rows[1][8])
	assert.Equal(t, "", rows[2][3], "incomplete examinations have no completion time")

	err = f.quizzes.ExportResults(ctx, domain.Caller{ID: "teacher-2", Role: domain.RoleTeacher}, quiz.ID, &buf)
	assert.ErrorIs(t, err, domain.ErrNotQuizOwner)
}
