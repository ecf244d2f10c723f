package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/movinesta/swipe-ingest/internal/logger"
	"github.com/movinesta/swipe-ingest/internal/metrics"
	"github.com/movinesta/swipe-ingest/internal/models"
)

const dropLogCooldown = 30 * time.Second

// Handler processes one accepted batch. It owns its own error handling.
type Handler func(ctx context.Context, b *models.AcceptedBatch)

// Pool runs post-response work on a fixed set of workers. Enqueue never
// blocks the request path; batches are dropped when the queue is full.
type Pool struct {
	queue   *Queue
	handle  Handler
	workers int
	log     *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropMu      sync.Mutex
	lastDropLog time.Time
}

func NewPool(queueSize, workers int, handle Handler, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		queue:   NewQueue(queueSize),
		handle:  handle,
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. ctx is handed to every Handler call and
// should outlive individual requests.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.log.Info("fanout pool started", "workers", p.workers, "queue_capacity", p.queue.Capacity())
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for b := range p.queue.Chan() {
		p.queue.MarkDequeued()
		metrics.FanoutQueueDepth.Set(float64(p.queue.Depth()))
		p.runOne(ctx, id, b)
	}
}

func (p *Pool) runOne(ctx context.Context, id int, b *models.AcceptedBatch) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("fanout worker panic", "worker", id, "request_id", b.RequestID, "panic", fmt.Sprint(r))
		}
	}()
	p.handle(ctx, b)
}

// Enqueue hands b to the workers. It returns false if the pool is shut
// down or the queue is full.
func (p *Pool) Enqueue(b *models.AcceptedBatch) bool {
	if b == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	if !p.queue.TryEnqueue(b) {
		metrics.FanoutDropped.Inc()
		if p.shouldLogDrop() {
			p.log.Warn("fanout queue full, dropping batch", "request_id", b.RequestID, "capacity", p.queue.Capacity())
		}
		return false
	}
	metrics.FanoutQueueDepth.Set(float64(p.queue.Depth()))
	return true
}

func (p *Pool) shouldLogDrop() bool {
	p.dropMu.Lock()
	defer p.dropMu.Unlock()
	if time.Since(p.lastDropLog) < dropLogCooldown {
		return false
	}
	p.lastDropLog = time.Now()
	return true
}

func (p *Pool) Depth() int    { return p.queue.Depth() }
func (p *Pool) Capacity() int { return p.queue.Capacity() }

// Shutdown stops intake and waits for queued batches to finish or ctx to
// expire, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.queue.close()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fanout shutdown: %w", ctx.Err())
	}
}
