package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"quiz-exam-service/internal/domain"
)

const (
	accessCodeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultCodeAttempts  = 10
	defaultCodeRetryWait = 5 * time.Millisecond
)

// AccessCodeChecker reports whether a quiz already uses an access code.
type AccessCodeChecker interface {
	AccessCodeExists(ctx context.Context, code string) (bool, error)
}

// AccessCodeGenerator produces unique RRRRRR-TTTTTT quiz access codes.
type AccessCodeGenerator struct {
	checker  AccessCodeChecker
	attempts int
	delay    time.Duration
	now      func() time.Time
	random   io.Reader
}

// NewAccessCodeGenerator returns a generator that tries up to attempts
// candidates, sleeping delay between them. A non-positive attempts or a
// negative delay selects the default.
func NewAccessCodeGenerator(checker AccessCodeChecker, attempts int, delay time.Duration) *AccessCodeGenerator {
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}
	if delay < 0 {
		delay = defaultCodeRetryWait
	}
	return &AccessCodeGenerator{
		checker:  checker,
		attempts: attempts,
		delay:    delay,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// NewAccessCodeGeneratorWithClock is test-only for deterministic timestamps.
func NewAccessCodeGeneratorWithClock(checker AccessCodeChecker, attempts int, delay time.Duration, now func() time.Time) *AccessCodeGenerator {
	g := NewAccessCodeGenerator(checker, attempts, delay)
	g.now = now
	return g
}

// Generate returns a code not used by any quiz at the time of the check, or
// domain.ErrNoAccessCode once the attempt budget is spent.
func (g *AccessCodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 && g.delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.delay):
			}
		}

		code, err := g.candidate()
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		taken, err := g.checker.AccessCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check access code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrNoAccessCode
}

func (g *AccessCodeGenerator) candidate() (string, error) {
	prefix := make([]byte, 6)
	for i := range prefix {
		n, err := g.randomInt(len(accessCodeAlphabet))
		if err != nil {
			return "", err
		}
		prefix[i] = accessCodeAlphabet[n]
	}
	extra, err := g.randomInt(1000)
	if err != nil {
		return "", err
	}
	millis := g.now().UnixMilli() % 1000
	return fmt.Sprintf("%s-%03d%03d", prefix, millis, extra), nil
}

func (g *AccessCodeGenerator) randomInt(limit int) (int, error) {
	n, err := rand.Int(g.random, big.NewInt(int64(limit)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
