package usecase

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/metrics"
)

var ErrSchedulerClosed = errors.New("transition scheduler closed")

const defaultApplyTimeout = 5 * time.Second

// Applier performs a due transition. Returning domain.ErrNotFound marks the
// transition as dropped rather than failed.
type Applier interface {
	ApplyTransition(ctx context.Context, t domain.Transition) error
}

type ApplierFunc func(ctx context.Context, t domain.Transition) error

func (f ApplierFunc) ApplyTransition(ctx context.Context, t domain.Transition) error {
	return f(ctx, t)
}

// TransitionScheduler runs deferred status changes after a fixed delay.
// Pending transitions live in memory only and are lost on shutdown. There is
// no retry and no cancellation.
type TransitionScheduler struct {
	delay        time.Duration
	workers      int
	applyTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	queue   transitionQueue
	closed  bool
	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	applier Applier

	scheduledTotal atomic.Int64
	appliedTotal   atomic.Int64
	droppedTotal   atomic.Int64
	failedTotal    atomic.Int64
}

type TransitionSchedulerMetrics struct {
	ScheduledTotal int64
	AppliedTotal   int64
	DroppedTotal   int64
	FailedTotal    int64
}

func NewTransitionScheduler(delay time.Duration, workers int, logger *slog.Logger) *TransitionScheduler {
	if delay < 0 {
		delay = 0
	}
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionScheduler{
		delay:        delay,
		workers:      workers,
		applyTimeout: defaultApplyTimeout,
		logger:       logger.With("component", "transition_scheduler"),
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
}

// Start launches the timer loop and the worker pool. Transitions scheduled
// before Start wait in the queue.
func (s *TransitionScheduler) Start(parent context.Context, applier Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.closed {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.applier = applier

	jobs := make(chan domain.Transition)
	s.wg.Add(1 + s.workers)
	go s.loop(ctx, jobs)
	for i := 0; i < s.workers; i++ {
		go s.work(jobs)
	}
}

// Close stops the scheduler. Transitions already handed to a worker finish;
// queued ones are discarded.
func (s *TransitionScheduler) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.closed = true
	discarded := s.queue.Len()
	s.queue = nil
	metrics.TransitionsPending.Set(0)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if discarded > 0 {
		s.logger.Warn("discarded pending transitions on close", "count", discarded)
	}
	return nil
}

func (s *TransitionScheduler) Schedule(softwareID int64, target domain.Status) (domain.Transition, error) {
	t := domain.Transition{
		ID:         uuid.NewString(),
		SoftwareID: softwareID,
		Target:     target,
		DueAt:      s.now().Add(s.delay),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Transition{}, ErrSchedulerClosed
	}
	heap.Push(&s.queue, t)
	metrics.TransitionsPending.Set(float64(s.queue.Len()))
	s.mu.Unlock()

	s.scheduledTotal.Add(1)
	metrics.Transitions.WithLabelValues(metrics.OutcomeScheduled).Inc()
	s.logger.Debug("transition scheduled", "transition_id", t.ID, "software_id", softwareID, "target", target, "due_at", t.DueAt)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t, nil
}

// Pending returns the number of transitions waiting for their delay.
func (s *TransitionScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *TransitionScheduler) Metrics() TransitionSchedulerMetrics {
	return TransitionSchedulerMetrics{
		ScheduledTotal: s.scheduledTotal.Load(),
		AppliedTotal:   s.appliedTotal.Load(),
		DroppedTotal:   s.droppedTotal.Load(),
		FailedTotal:    s.failedTotal.Load(),
	}
}

func (s *TransitionScheduler) loop(ctx context.Context, jobs chan<- domain.Transition) {
	defer s.wg.Done()
	defer close(jobs)

	for {
		due, wait := s.takeDue()
		for _, t := range due {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// takeDue pops every transition whose due time has passed. wait is the time
// until the next one, or -1 when the queue is empty.
func (s *TransitionScheduler) takeDue() ([]domain.Transition, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []domain.Transition
	for s.queue.Len() > 0 && !s.queue[0].DueAt.After(now) {
		due = append(due, heap.Pop(&s.queue).(domain.Transition))
	}
	metrics.TransitionsPending.Set(float64(s.queue.Len()))

	if s.queue.Len() == 0 {
		return due, -1
	}
	return due, s.queue[0].DueAt.Sub(now)
}

func (s *TransitionScheduler) work(jobs <-chan domain.Transition) {
	defer s.wg.Done()
	for t := range jobs {
		s.apply(t)
	}
}

func (s *TransitionScheduler) apply(t domain.Transition) {
	defer func() {
		if r := recover(); r != nil {
			s.failedTotal.Add(1)
			metrics.Transitions.WithLabelValues(metrics.OutcomeFailed).Inc()
			s.logger.Error("transition panicked", "transition_id", t.ID, "software_id", t.SoftwareID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.applyTimeout)
	defer cancel()

	err := s.applier.ApplyTransition(ctx, t)
	switch {
	case err == nil:
		s.appliedTotal.Add(1)
		metrics.Transitions.WithLabelValues(metrics.OutcomeApplied).Inc()
		s.logger.Debug("transition applied", "transition_id", t.ID, "software_id", t.SoftwareID, "target", t.Target)
	case errors.Is(err, domain.ErrNotFound):
		s.droppedTotal.Add(1)
		metrics.Transitions.WithLabelValues(metrics.OutcomeDropped).Inc()
		s.logger.Debug("transition target vanished", "transition_id", t.ID, "software_id", t.SoftwareID)
	default:
		s.failedTotal.Add(1)
		metrics.Transitions.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Error("transition failed", "transition_id", t.ID, "software_id", t.SoftwareID, "target", t.Target, "error", err)
	}
}

// transitionQueue is a min-heap on DueAt.
type transitionQueue []domain.Transition

func (q transitionQueue) Len() int           { return len(q) }
func (q transitionQueue) Less(i, j int) bool { return q[i].DueAt.Before(q[j].DueAt) }
func (q transitionQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *transitionQueue) Push(x any) { *q = append(*q, x.(domain.Transition)) }

func (q *transitionQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	*q = old[:n-1]
	return t
}
