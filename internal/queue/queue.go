package queue

import (
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of work: extract invoice fields from the files attached to
// a board item. Jobs have no identity beyond their FIFO position; duplicate
// triggers enqueue duplicate jobs and both are processed independently.
type Job struct {
	ItemID     string
	BoardID    string
	EnqueuedAt time.Time
}

// Processor handles a single dequeued job. A returned error marks that job
// failed; the pool logs it and moves on.
type Processor interface {
	Process(job Job) error
}

// Queue is a bounded-concurrency FIFO work queue. The bound caps simultaneous
// API load and the peak memory held in raster buffers, not job ordering:
// multiple workers drain concurrently and completion order is unspecified.
//
// The job slice and the active-worker count are the only shared state, both
// guarded by one mutex; everything a job touches while processing is owned by
// its worker alone.
type Queue struct {
	processor Processor
	bound     int
	delay     time.Duration

	mu     sync.Mutex
	jobs   []Job
	active int
	idle   *sync.Cond
}

// New creates a queue processing at most bound jobs at once, pausing
// interJobDelay between consecutive jobs on the same worker to soften bursts
// against the downstream API.
func New(processor Processor, bound int, interJobDelay time.Duration) *Queue {
	if bound < 1 {
		bound = 1
	}
	q := &Queue{
		processor: processor,
		bound:     bound,
		delay:     interJobDelay,
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job and opportunistically starts workers. Safe for
// concurrent use; duplicates are not filtered.
func (q *Queue) Enqueue(itemID, boardID string) {
	q.mu.Lock()
	q.jobs = append(q.jobs, Job{ItemID: itemID, BoardID: boardID, EnqueuedAt: time.Now()})
	pending := len(q.jobs)
	q.mu.Unlock()

	slog.Debug("Job enqueued", "item_id", itemID, "board_id", boardID, "pending", pending)
	q.ensureWorkers()
}

// Len reports the number of jobs waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// ActiveWorkers reports how many workers are currently running.
func (q *Queue) ActiveWorkers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Wait blocks until the queue is drained and every worker has exited.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.jobs) > 0 || q.active > 0 {
		q.idle.Wait()
	}
}

// ensureWorkers starts workers up to the bound while jobs are waiting. It is
// idempotent and safe to call at any time, and it MUST be called after every
// worker exit regardless of the pre-decrement count: gating the exit-side
// call on a stale capacity check can leave a non-empty queue with zero
// workers.
func (q *Queue) ensureWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.active < q.bound && len(q.jobs) > 0 {
		q.active++
		go q.work()
	}
}

// work drains the queue until it is empty, then exits. A panic escaping a job
// kills only this worker; the exit path replenishes the pool.
func (q *Queue) work() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker terminated unexpectedly", "panic", r)
		}
		q.onWorkerExit()
	}()

	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if err := q.processor.Process(job); err != nil {
			slog.Error("Job failed", "item_id", job.ItemID, "board_id", job.BoardID, "error", err)
		}

		if q.delay > 0 {
			time.Sleep(q.delay)
		}
	}
}

// onWorkerExit decrements the active count and then unconditionally re-checks
// whether replacement workers are needed.
func (q *Queue) onWorkerExit() {
	q.mu.Lock()
	q.active--
	q.idle.Broadcast()
	q.mu.Unlock()

	q.ensureWorkers()
}
