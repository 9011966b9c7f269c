package dispatch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/luciancaetano/wsnext"
)

// DefaultWorkers is the worker pool size used when none is configured.
const DefaultWorkers = 200

// Executors owns the scheduling contexts callbacks run on: a fixed group of
// event loops, a bounded worker pool and unbounded virtual goroutines.
type Executors struct {
	loops   []*eventLoop
	next    atomic.Uint64
	workers *semaphore.Weighted
	logger  *slog.Logger

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewExecutors starts the event loops. Non-positive sizes fall back to
// runtime.NumCPU() loops and DefaultWorkers workers.
func NewExecutors(loops, workers int, logger *slog.Logger) *Executors {
	if loops <= 0 {
		loops = runtime.NumCPU()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executors{
		loops:   make([]*eventLoop, loops),
		workers: semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}
	for i := range e.loops {
		l := &eventLoop{id: i, tasks: newMailbox[func()](), quit: make(chan struct{}), logger: logger}
		e.loops[i] = l
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			l.run()
		}()
	}
	return e
}

// Pin returns a scheduler bound to one event loop, chosen round-robin.
// All event-loop work of a connection runs on the loop it is pinned to.
func (e *Executors) Pin() *Scheduler {
	n := e.next.Add(1) - 1
	return &Scheduler{executors: e, loop: e.loops[n%uint64(len(e.loops))]}
}

// Stop stops the event loops once their queued tasks have run. Tasks
// submitted afterwards run on their own goroutine so that pending
// completions still resolve.
func (e *Executors) Stop() {
	e.stopOnce.Do(func() {
		for _, l := range e.loops {
			l.stop()
		}
		e.wg.Wait()
	})
}

func (e *Executors) work(task func()) {
	go func() {
		// Background never cancels, so Acquire only returns once a slot is free.
		_ = e.workers.Acquire(context.Background(), 1)
		defer e.workers.Release(1)
		runTask(e.logger, task)
	}()
}

// Scheduler runs the tasks of one connection. It implements
// compiler.Scheduler.
type Scheduler struct {
	executors *Executors
	loop      *eventLoop
}

// Execute runs task on em.
func (s *Scheduler) Execute(em wsnext.ExecutionModel, task func()) {
	switch em {
	case wsnext.WorkerThread:
		s.executors.work(task)
	case wsnext.VirtualThread:
		go runTask(s.executors.logger, task)
	default:
		if !s.loop.submit(task) {
			go runTask(s.executors.logger, task)
		}
	}
}

// Loop returns the index of the event loop the scheduler is pinned to.
func (s *Scheduler) Loop() int {
	return s.loop.id
}

type eventLoop struct {
	id     int
	tasks  *mailbox[func()]
	quit   chan struct{}
	logger *slog.Logger
}

func (l *eventLoop) submit(task func()) bool {
	return l.tasks.put(task)
}

func (l *eventLoop) run() {
	for {
		select {
		case <-l.quit:
			// Tasks queued before stop still run.
			l.drain()
			return
		case <-l.tasks.signal():
		}
		l.drain()
	}
}

func (l *eventLoop) drain() {
	for {
		task, ok := l.tasks.take()
		if !ok {
			return
		}
		runTask(l.logger, task)
	}
}

// stop rejects new tasks and lets the loop finish the queued ones.
func (l *eventLoop) stop() {
	l.tasks.seal()
	close(l.quit)
}

// runTask runs task, logging a panic instead of crashing the loop. Callback
// panics are recovered by the adapter; anything reaching here is a bug in
// the engine itself.
func runTask(logger *slog.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in scheduled task", "panic", r)
		}
	}()
	task()
}
