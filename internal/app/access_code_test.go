package app_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accessCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}-[0-9]{6}$`)

// codeRegistry marks every generated code as taken, like a store would after
// the quiz is saved.
type codeRegistry struct {
	mu     sync.Mutex
	taken  map[string]bool
	always bool
	calls  int
}

func (r *codeRegistry) AccessCodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.always || r.taken[code], nil
}

func (r *codeRegistry) claim(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taken[code] = true
}

func TestAccessCodeFormat(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_123)
	gen := app.NewAccessCodeGeneratorWithClock(&codeRegistry{taken: map[string]bool{}}, 10, 0, func() time.Time { return fixed })

	code, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, accessCodePattern, code)
	assert.Equal(t, "123", code[7:10], "timestamp segment carries the last three millisecond digits")
}

func TestAccessCodesAreUniqueUnderFixedClock(t *testing.T) {
	registry := &codeRegistry{taken: map[string]bool{}}
	fixed := time.UnixMilli(42)
	gen := app.NewAccessCodeGeneratorWithClock(registry, 10, 0, func() time.Time { return fixed })

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		code, err := gen.Generate(context.Background())
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		registry.claim(code)
	}
}

func TestAccessCodeExhaustion(t *testing.T) {
	registry := &codeRegistry{always: true}
	gen := app.NewAccessCodeGenerator(registry, 4, time.Millisecond)

	_, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoAccessCode)
	assert.Equal(t, 4, registry.calls)
	assert.True(t, domain.Retryable(err))
}

func TestAccessCodeRetryHonoursContext(t *testing.T) {
	gen := app.NewAccessCodeGenerator(&codeRegistry{always: true}, 10, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gen.Generate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
