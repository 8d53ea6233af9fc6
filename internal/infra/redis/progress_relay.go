package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quiz-exam-service/internal/app"
	"quiz-exam-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const progressPattern = "quiz:*:progress"

// ProgressSink receives events relayed from other instances.
type ProgressSink interface {
	Deliver(event domain.ProgressEvent)
}

// ProgressRelay publishes progress events on Redis pub/sub and feeds every
// event seen on the shared pattern into the local sink.
type ProgressRelay struct {
	client *redis.Client
	sink   ProgressSink
	logger *slog.Logger

	retryInitial time.Duration
	retryMax     time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// RelayOption tunes a ProgressRelay.
type RelayOption func(*ProgressRelay)

// WithRetryInterval bounds the exponential backoff Serve uses between
// subscription attempts.
func WithRetryInterval(initial, maxInterval time.Duration) RelayOption {
	return func(r *ProgressRelay) {
		if initial > 0 {
			r.retryInitial = initial
		}
		if maxInterval >= r.retryInitial {
			r.retryMax = maxInterval
		}
	}
}

func NewProgressRelay(client *redis.Client, sink ProgressSink, logger *slog.Logger, opts ...RelayOption) *ProgressRelay {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &ProgressRelay{
		client:       client,
		sink:         sink,
		logger:       logger,
		retryInitial: 100 * time.Millisecond,
		retryMax:     10 * time.Second,
		ready:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryMax < r.retryInitial {
		r.retryMax = r.retryInitial
	}
	return r
}

var _ app.ProgressPublisher = (*ProgressRelay)(nil)

// Publish sends the event to every instance, including this one.
func (r *ProgressRelay) Publish(ctx context.Context, event domain.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, progressChannel(event.QuizID), data).Err()
}

// Ready is closed once Run's subscription is confirmed by Redis.
func (r *ProgressRelay) Ready() <-chan struct{} {
	return r.ready
}

// Serve keeps Run going until ctx is done, resubscribing with exponential
// backoff whenever the subscription fails or drops.
func (r *ProgressRelay) Serve(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retryInitial
	policy.MaxInterval = r.retryMax
	policy.MaxElapsedTime = 0
	policy.Reset()
	b := backoff.WithContext(policy, ctx)

	for {
		subscribed, err := r.run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		attrs := []any{slog.Duration("retry_in", wait)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		r.logger.Warn("progress subscription lost", attrs...)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Run forwards relayed events to the sink until ctx is done or the
// subscription ends.
func (r *ProgressRelay) Run(ctx context.Context) error {
	_, err := r.run(ctx)
	return err
}

func (r *ProgressRelay) run(ctx context.Context) (bool, error) {
	pubsub := r.client.PSubscribe(ctx, progressPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, err
	}
	r.readyOnce.Do(func() { close(r.ready) })

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, nil
			}
			var event domain.ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("dropping malformed progress event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()))
				continue
			}
			if event.QuizID == "" {
				event.QuizID = quizIDFromChannel(msg.Channel)
			}
			r.sink.Deliver(event)
		}
	}
}

func progressChannel(quizID string) string {
	return "quiz:" + quizID + ":progress"
}

func quizIDFromChannel(channel string) string {
	return strings.TrimSuffix(strings.TrimPrefix(channel, "quiz:"), ":progress")
}
