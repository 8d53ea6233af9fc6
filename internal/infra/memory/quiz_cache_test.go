package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuizCacheCaches(t *testing.T) {
	ctx := context.Background()
	loader := &countingLoader{QuizLoader: seededStore(t)}
	cache := NewQuizCache(loader, time.Minute)

	quiz, err := cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Arithmetic", quiz.Title)
	assert.EqualValues(t, 1, loader.calls.Load())

	_, err = cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, loader.calls.Load(), "second read should hit the cache")
}

func TestQuizCacheExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	loader := &countingLoader{QuizLoader: seededStore(t)}
	cache := NewQuizCacheWithClock(loader, time.Minute, clock)

	_, err := cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load(), "expired entry should reload")

	require.NoError(t, cache.Invalidate(ctx, "quiz-1"))
	_, err = cache.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, loader.calls.Load(), "invalidated entry should reload")
}

func TestQuizCacheCoalescesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	loader := &countingLoader{QuizLoader: seededStore(t), gate: release}
	cache := NewQuizCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetQuiz(ctx, "quiz-1")
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestQuizCachePropagatesNotFound(t *testing.T) {
	cache := NewQuizCache(NewStore(), time.Minute)
	_, err := cache.GetQuiz(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
}

type countingLoader struct {
	app.QuizLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.CreateQuiz(context.Background(), sampleQuiz()))
	return store
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           "quiz-1",
		Title:        "Arithmetic",
		CreatorID:    "teacher-1",
		AccessCode:   "ABC123-456789",
		PassingScore: 50,
		IsActive:     true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				QuizID:        "quiz-1",
				Text:          "What is 2 + 2?",
				Type:          domain.QuestionMultipleChoice,
				Options:       []string{"3", "4"},
				CorrectAnswer: "1",
				Points:        1,
			},
		},
	}
}
