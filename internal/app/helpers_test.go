package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"
	"quiz-exam-service/internal/infra/memory"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store   *memory.Store
	cache   *memory.QuizCache
	clock   *fakeClock
	monitor *app.Monitor
	exams   *app.ExaminationService
	quizzes *app.QuizService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	monitor := app.NewMonitor()
	cache := memory.NewQuizCache(store, time.Minute)
	codes := app.NewAccessCodeGenerator(store, 10, 0)
	return &fixture{
		store:   store,
		cache:   cache,
		clock:   clock,
		monitor: monitor,
		exams:   app.NewExaminationService(store, cache, app.WithClock(clock.Now), app.WithProgress(monitor)),
		quizzes: app.NewQuizService(store, cache, codes, app.WithClock(clock.Now)),
	}
}

func (f *fixture) seed(t *testing.T, quiz domain.Quiz) domain.Quiz {
	t.Helper()
	require.NoError(t, f.store.CreateQuiz(context.Background(), quiz))
	return quiz
}

// newQuiz builds an active multiple-choice quiz whose correct option is
// always "1", one question per entry in points.
func newQuiz(id string, passing float64, points ...int) domain.Quiz {
	quiz := domain.Quiz{
		ID:           id,
		Title:        "Quiz " + id,
		CreatorID:    "teacher-1",
		AccessCode:   "CODE" + id,
		PassingScore: passing,
		IsActive:     true,
	}
	for i, p := range points {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:            fmt.Sprintf("%s-q%d", id, i+1),
			QuizID:        id,
			Text:          fmt.Sprintf("Question %d", i+1),
			Type:          domain.QuestionMultipleChoice,
			Options:       []string{"wrong", "right"},
			CorrectAnswer: "1",
			Points:        p,
			Order:         i,
		})
	}
	return quiz
}

func answer(questionID, value string) domain.AnswerInput {
	return domain.AnswerInput{QuestionID: questionID, Answer: value}
}

var (
	teacher = domain.Caller{ID: "teacher-1", Role: domain.RoleTeacher}
	admin   = domain.Caller{ID: "admin-1", Role: domain.RoleAdmin}
	student = domain.Caller{ID: "student-1", Role: domain.RoleStudent}
)
