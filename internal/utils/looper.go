package utils

import (
	"errors"
	"sync"
)

// Job represents a task to be executed on the looper.
type Job struct {
	Task func()
}

// Looper runs posted tasks one at a time, in the order they were posted. It is
// the single event loop every callback of the screen is delivered on.
type Looper struct {
	jobQueue chan Job
	quit     chan struct{}
	done     chan struct{}

	mu       sync.RWMutex
	started  bool
	closed   bool
	stopOnce sync.Once
}

// NewLooper creates a looper whose queue holds up to capacity pending tasks.
func NewLooper(capacity int) *Looper {
	if capacity < 1 {
		capacity = 1
	}
	return &Looper{
		jobQueue: make(chan Job, capacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (l *Looper) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("looper is shut down")
	}
	if l.started {
		return errors.New("looper is already running")
	}
	l.started = true
	go l.worker()
	return nil
}

// worker processes jobs from the jobQueue.
func (l *Looper) worker() {
	defer close(l.done)
	for job := range l.jobQueue {
		job.Task()
	}
}

// Post queues task and reports whether it was accepted. It blocks while the
// queue is full and returns false once the looper is shutting down.
func (l *Looper) Post(task func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	select {
	case l.jobQueue <- Job{Task: task}:
		return true
	case <-l.quit:
		return false
	}
}

// Stop stops accepting tasks, runs the ones already queued and waits for the
// worker to exit. It must not be called from a task.
func (l *Looper) Stop() error {
	stopped := true
	l.stopOnce.Do(func() {
		stopped = false

		// Release posters blocked on a full queue before taking the write lock.
		close(l.quit)

		l.mu.Lock()
		l.closed = true
		started := l.started
		close(l.jobQueue)
		l.mu.Unlock()

		if started {
			<-l.done
		}
	})
	if stopped {
		return errors.New("looper is not running")
	}
	return nil
}
