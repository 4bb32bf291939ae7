package meshing

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Job converts one record snapshot into geometry for Target.
type Job[T any] struct {
	Target T
	Build  func() (Mesh, error)
}

type result[T any] struct {
	target T
	mesh   Mesh
}

// Queue is a fixed pool of mesh workers with a bounded job queue and a completion
// queue drained by the frame goroutine. A job that panics or fails yields an empty
// mesh; it never takes down a worker.
type Queue[T any] struct {
	jobQueue chan Job[T]
	results  chan result[T]
	workers  int
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	inflight atomic.Int64
}

// NewQueue starts workers goroutines behind a job queue of queueSize entries.
func NewQueue[T any](workers, queueSize int, log *zap.Logger) *Queue[T] {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		jobQueue: make(chan Job[T], queueSize),
		results:  make(chan result[T], queueSize+workers),
		workers:  workers,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range workers {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Submit queues a job. It returns false without blocking when the queue is full
// or shut down.
func (q *Queue[T]) Submit(job Job[T]) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobQueue <- job:
		q.inflight.Add(1)
		return true
	default:
		return false
	}
}

func (q *Queue[T]) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-q.jobQueue:
			if !ok {
				return
			}
			r := result[T]{target: job.Target, mesh: q.run(id, job)}
			select {
			case q.results <- r:
			case <-q.ctx.Done():
				return
			}
		case <-q.ctx.Done():
			return
		}
	}
}

// run builds one job inside a recover boundary.
func (q *Queue[T]) run(id int, job Job[T]) (m Mesh) {
	defer func() {
		if rec := recover(); rec != nil {
			q.log.Error("mesh job panic",
				zap.Int("worker", id),
				zap.Any("target", job.Target),
				zap.Any("panic", rec),
			)
			m = Mesh{}
		}
	}()
	m, err := job.Build()
	if err != nil {
		q.log.Error("mesh job failed", zap.Int("worker", id), zap.Any("target", job.Target), zap.Error(err))
		return Mesh{}
	}
	return m
}

// DrainCompleted yields every finished job without blocking. Call it once per
// frame from the goroutine that owns the scene.
func (q *Queue[T]) DrainCompleted() iter.Seq2[T, Mesh] {
	return func(yield func(T, Mesh) bool) {
		for {
			select {
			case r := <-q.results:
				q.inflight.Add(-1)
				if !yield(r.target, r.mesh) {
					return
				}
			default:
				return
			}
		}
	}
}

// Pending returns the number of submitted jobs whose result has not been drained yet.
func (q *Queue[T]) Pending() int {
	return int(q.inflight.Load())
}

func (q *Queue[T]) Workers() int { return q.workers }

// Shutdown stops the workers and waits for them. In-flight results are dropped.
func (q *Queue[T]) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cancel()
	close(q.jobQueue)
	q.mu.Unlock()
	q.wg.Wait()
}
