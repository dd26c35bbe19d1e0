package workq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
)

// ErrDisabled is returned by Submit once the queue has started shutting
// down; no further work units are accepted.
var ErrDisabled = errors.New("workq: disabled (shutting down)")

// maxWorkers mirrors the original implementation's xassert(count < 1024):
// a worker pool this large is almost certainly a misconfiguration.
const maxWorkers = 1024

// Func is the body of a unit of work. It must not block indefinitely and
// must not submit a work unit that, transitively, waits on its own
// completion — WorkQueue has no priority, and Submit does not detect
// such recursion.
type Func func()

type work struct {
	fn  Func
	tag string
}

// WorkQueue is a fixed pool of worker goroutines draining a single FIFO.
// Units run in submission order across the queue as a whole (the order in
// which they are popped), but completions may interleave across workers.
type WorkQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []work
	shutdown bool
	active   int
	total    int
	done     chan struct{}
}

// New creates a WorkQueue with count worker goroutines already running.
func New(count int) *WorkQueue {
	if count >= maxWorkers {
		panic(fmt.Sprintf("workq: worker count %d exceeds maximum of %d", count, maxWorkers))
	}

	wq := &WorkQueue{
		done: make(chan struct{}),
	}
	wq.cond = sync.NewCond(&wq.mu)

	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		id := i + 1
		go wq.runWorker(id, &wg)
	}

	go func() {
		wg.Wait()
		close(wq.done)
	}()

	wq.total = count
	return wq
}

func (wq *WorkQueue) runWorker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := log.WithComponent("workq")

	for {
		wq.mu.Lock()
		for len(wq.queue) == 0 && !wq.shutdown {
			wq.cond.Wait()
		}

		if len(wq.queue) == 0 {
			// shutdown and drained: this worker exits.
			wq.mu.Unlock()
			logger.Debug().Int("worker", id).Msg("workq: worker shutting down")
			return
		}

		item := wq.queue[0]
		wq.queue = wq.queue[1:]
		wq.active++
		queued := len(wq.queue)
		active := wq.active
		total := wq.total
		wq.mu.Unlock()

		metrics.WorkQueueActiveWorkers.Set(float64(active))
		metrics.WorkQueueQueueDepth.Set(float64(queued))

		logger.Debug().Int("worker", id).Str("tag", item.tag).
			Int("active", active).Int("total", total).Int("queued", queued).
			Msg("workq: running unit")

		item.fn()

		wq.mu.Lock()
		wq.active--
		active = wq.active
		wq.mu.Unlock()
		metrics.WorkQueueActiveWorkers.Set(float64(active))
	}
}

// Submit enqueues a unit of work, tagged for diagnostics, and wakes one
// idle worker. It never blocks. Returns ErrDisabled once Quiesce has been
// called, even if workers are still draining the remaining queue.
func (wq *WorkQueue) Submit(fn Func, tag string) error {
	wq.mu.Lock()
	defer wq.mu.Unlock()

	if wq.shutdown {
		metrics.WorkQueueRejectedTotal.Inc()
		return ErrDisabled
	}

	wq.queue = append(wq.queue, work{fn: fn, tag: tag})
	wq.cond.Signal()
	metrics.WorkQueueSubmittedTotal.Inc()
	metrics.WorkQueueQueueDepth.Set(float64(len(wq.queue)))
	return nil
}

// Quiesce sets the shutdown latch, wakes every worker, and blocks until
// all of them have exited (i.e. the queue has fully drained). After
// Quiesce returns, Submit always fails with ErrDisabled.
func (wq *WorkQueue) Quiesce() {
	wq.mu.Lock()
	wq.shutdown = true
	wq.mu.Unlock()
	wq.cond.Broadcast()
	<-wq.done
}

// ActiveCount returns the number of workers currently executing a unit.
// Diagnostic only.
func (wq *WorkQueue) ActiveCount() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return wq.active
}

// QueuedCount returns the number of units waiting to be picked up.
func (wq *WorkQueue) QueuedCount() int {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	return len(wq.queue)
}
