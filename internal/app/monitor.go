package app

import (
	"context"
	"sync"

	"quiz-exam-service/internal/domain"
)

const monitorBuffer = 16

// Monitor fans out progress events to in-process subscribers, keyed by quiz.
type Monitor struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.ProgressEvent]struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{subscribers: make(map[string]map[chan domain.ProgressEvent]struct{})}
}

// Publish delivers the event locally. It satisfies ProgressPublisher.
func (m *Monitor) Publish(_ context.Context, event domain.ProgressEvent) error {
	m.Deliver(event)
	return nil
}

// Subscribe returns a channel of events for quizID.
// The caller must invoke the returned cancel function to avoid leaks.
func (m *Monitor) Subscribe(quizID string) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, monitorBuffer)

	m.mu.Lock()
	subs, ok := m.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.ProgressEvent]struct{})
		m.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs, ok := m.subscribers[quizID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, quizID)
		}
	}
	return ch, cancel
}

// Deliver pushes event to every subscriber of its quiz. A full subscriber
// loses its oldest buffered event.
func (m *Monitor) Deliver(event domain.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subscribers[event.QuizID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// Subscribers reports how many subscribers are watching quizID.
func (m *Monitor) Subscribers(quizID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers[quizID])
}
