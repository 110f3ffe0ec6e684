package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/ports"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

const defaultPublishTimeout = 30 * time.Second

type queuedEvent struct {
	topic string
	event domain.EventEnvelope
}

// QueuedPublisher hands events to a background goroutine so that slow sinks
// never delay the request that produced them. Events are dropped when the
// buffer is full or after Close.
type QueuedPublisher struct {
	next   ports.EventPublisher
	logger *slog.Logger
	queue  chan queuedEvent

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	publishedTotal atomic.Int64
	droppedTotal   atomic.Int64
	failedTotal    atomic.Int64
}

func NewQueuedPublisher(next ports.EventPublisher, buffer int, logger *slog.Logger) *QueuedPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &QueuedPublisher{
		next:   next,
		logger: logger.With("component", "event_queue"),
		queue:  make(chan queuedEvent, buffer),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *QueuedPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.droppedTotal.Add(1)
		return ErrQueueClosed
	}
	select {
	case p.queue <- queuedEvent{topic: topic, event: event}:
		return nil
	default:
		p.droppedTotal.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the buffered ones to be sent.
func (p *QueuedPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *QueuedPublisher) loop() {
	defer p.wg.Done()
	for item := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		err := p.next.Publish(ctx, item.topic, item.event)
		cancel()
		if err != nil {
			p.failedTotal.Add(1)
			p.logger.Warn("deliver event", "event_id", item.event.EventID, "event_type", item.event.EventType, "error", err)
			continue
		}
		p.publishedTotal.Add(1)
	}
}

type QueuedPublisherMetrics struct {
	PublishedTotal int64
	DroppedTotal   int64
	FailedTotal    int64
}

func (p *QueuedPublisher) Metrics() QueuedPublisherMetrics {
	return QueuedPublisherMetrics{
		PublishedTotal: p.publishedTotal.Load(),
		DroppedTotal:   p.droppedTotal.Load(),
		FailedTotal:    p.failedTotal.Load(),
	}
}
