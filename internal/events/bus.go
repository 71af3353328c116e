// Package events is the in-process publish/subscribe bus that carries
// PipelineEvents from the pipeline engine to its side-effect consumers.
//
// Publish never blocks. Every subscription owns an unbounded FIFO queue, so a
// slow consumer delays only itself. Within a subscription each event is
// delivered to exactly one caller of Next.
package events

import (
	"context"
	"sync"

	"jobmate/campaign-service/internal/kanban"
	"jobmate/campaign-service/internal/metrics"
)

// Bus fans events out to every subscription.
type Bus struct {
	mu      sync.RWMutex
	subs    []*Subscription
	closed  bool
	metrics *metrics.Metrics
}

// NewBus returns an empty bus. m may be nil.
func NewBus(m *metrics.Metrics) *Bus {
	return &Bus{metrics: m}
}

// Subscribe registers a new queue. Only events published after the call are
// delivered to it.
func (b *Bus) Subscribe(name string) *Subscription {
	s := &Subscription{
		name:    name,
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		metrics: b.metrics,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

// Publish enqueues ev on every subscription. Events published after Close are
// dropped.
func (b *Bus) Publish(ev kanban.PipelineEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		s.push(ev)
	}
}

// Close stops accepting events. Subscribers drain what is already queued,
// then Next reports false.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.close()
	}
}

// Subscription is one consumer group's queue.
type Subscription struct {
	name    string
	mu      sync.Mutex
	queue   []kanban.PipelineEvent
	closed  bool
	ready   chan struct{}
	done    chan struct{}
	metrics *metrics.Metrics
}

// Name returns the subscriber name given to Subscribe.
func (s *Subscription) Name() string { return s.name }

// Len returns the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription) push(ev kanban.PipelineEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.SetQueueDepth(s.name, depth)
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Next blocks until an event is available. It returns false when ctx is done,
// or when the bus is closed and the queue is drained.
func (s *Subscription) Next(ctx context.Context) (kanban.PipelineEvent, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = kanban.PipelineEvent{}
			s.queue = s.queue[1:]
			remaining := len(s.queue)
			s.mu.Unlock()

			s.metrics.SetQueueDepth(s.name, remaining)
			if remaining > 0 {
				// wake another waiting consumer
				s.signal()
			}
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return kanban.PipelineEvent{}, false
		}

		select {
		case <-s.ready:
		case <-s.done:
		case <-ctx.Done():
			return kanban.PipelineEvent{}, false
		}
	}
}
