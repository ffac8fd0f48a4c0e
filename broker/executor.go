package broker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// executor is a small fixed-size worker pool used for both the async
// completion handlers (Tier 1) and the dedicated DLQ executor (Tier 2),
// matching §5's requirement that DLQ sends "never block the primary send
// path" and that async handlers "run on a dedicated scheduler, not the
// broker client's I/O threads". Submissions queue on a buffered channel;
// Shutdown waits up to gracePeriod for the queue to drain and then
// returns; it does not cancel tasks still queued or running.
type executor struct {
	tasks chan func()
	wg    sync.WaitGroup
	log   zerolog.Logger
	name  string

	mu       sync.Mutex
	closed   bool
	dropped  int
}

// newExecutor starts workers goroutines draining a queue of depth
// queueDepth. queueDepth bounds how much work can be buffered ahead of the
// workers; once it is full, Submit drops further tasks and returns false.
func newExecutor(name string, workers, queueDepth int, log zerolog.Logger) *executor {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = workers * 4
	}
	e := &executor{
		tasks: make(chan func(), queueDepth),
		log:   log.With().Str("executor", name).Logger(),
		name:  name,
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *executor) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		task()
	}
}

// Submit enqueues task for execution on one of the pool's workers. After
// Shutdown has started, Submit drops the task and returns false rather
// than panicking on a closed channel. The closed check and the channel
// send share a lock with Shutdown's own close(e.tasks), so a Submit that
// observes closed==false is guaranteed the channel is still open for the
// duration of its send.
func (e *executor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.dropped++
		return false
	}

	select {
	case e.tasks <- task:
		return true
	default:
		e.log.Warn().Msg("executor queue full; submission dropped")
		return false
	}
}

// Shutdown closes the queue and waits up to gracePeriod for already-
// queued tasks to drain, then returns without waiting further. If the
// grace period elapses first, a warning is logged; tasks still queued are
// not removed or cancelled, and the workers go on running them after
// Shutdown has returned.
func (e *executor) Shutdown(gracePeriod time.Duration) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		e.log.Warn().Msg("shutdown grace period elapsed with tasks still queued; abandoning them")
	}
}
