package jobs

import (
	"context"
	"sync"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/metrics"
)

const (
	// DefaultWorkers bounds how many outbound exchanges run concurrently.
	DefaultWorkers = 10

	queueDepth = 256
)

// runner abstracts the job executor so dispatcher tests can stub it.
type runner interface {
	Run(ctx context.Context, job Job) error
}

// Dispatcher fans jobs out to a fixed worker pool. At most one job per
// (kind, reservation) pair is queued or running at any time; duplicates are
// rejected at submit so a double-clicked button or a replayed callback never
// sends the same message twice concurrently.
type Dispatcher struct {
	runner  runner
	workers int
	queue   chan Job

	mu       sync.Mutex
	inflight map[Job]struct{}

	wg sync.WaitGroup
}

func NewDispatcher(r runner, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		runner:   r,
		workers:  workers,
		queue:    make(chan Job, queueDepth),
		inflight: make(map[Job]struct{}),
	}
}

// Start launches the worker pool. Workers drain until Stop closes the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for job := range d.queue {
				d.run(ctx, job)
			}
		}()
	}
}

// Stop closes the queue and waits for running jobs to finish.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

// Submit enqueues a job unless the same job is already pending or the queue
// is full. The return value tells the caller whether the job was accepted.
func (d *Dispatcher) Submit(job Job) bool {
	d.mu.Lock()
	if _, dup := d.inflight[job]; dup {
		d.mu.Unlock()
		logger.Debug("job already in flight", "kind", job.Kind, "reservation", job.ReservationID)
		metrics.JobsRejected.Inc()
		return false
	}
	d.inflight[job] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- job:
		metrics.JobsQueued.Inc()
		return true
	default:
		d.clear(job)
		logger.Warn("job queue full", "kind", job.Kind, "reservation", job.ReservationID)
		metrics.JobsRejected.Inc()
		return false
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer d.clear(job)
	if err := d.runner.Run(ctx, job); err != nil {
		metrics.JobsFailed.Inc()
		logger.Error("job failed", "kind", job.Kind, "reservation", job.ReservationID, "error", err)
	}
}

func (d *Dispatcher) clear(job Job) {
	d.mu.Lock()
	delete(d.inflight, job)
	d.mu.Unlock()
}
