// Package mainloop provides the single goroutine that owns all binding,
// scheme, provider and status state. Background work hands its results back
// with Post.
package mainloop

import (
	"context"
	"sync"

	"github.com/bdlm/log"
)

// Poster schedules fn on the owning context.
type Poster interface {
	Post(fn func())
}

// Immediate runs posted funcs synchronously on the caller's goroutine.
// Useful in tests and single-threaded tools.
type Immediate struct{}

func (Immediate) Post(fn func()) { fn() }

// Loop executes posted funcs one at a time, in order, on the goroutine that
// calls Run. The queue is unbounded so Post never blocks, including when it
// is called from the loop itself.
type Loop struct {
	mu       sync.Mutex
	queue    []func()
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopped  bool
	stopOnce sync.Once
}

// New creates a loop. Call Run to start it.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Post queues fn. Funcs posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		log.Debugf("mainloop: dropping func posted after stop")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Sync posts fn and waits for it to finish. It must not be called from the
// loop goroutine. It returns false if the loop stopped first.
func (l *Loop) Sync(fn func()) bool {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Run processes funcs until ctx is cancelled or Stop is called, then drains
// whatever is still queued.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		l.drain()
		select {
		case <-l.wake:
		case <-ctx.Done():
			l.shutdown()
			return
		case <-l.stop:
			l.shutdown()
			return
		}
	}
}

// Stop ends Run and waits for it to return. Run must have been started.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.drain()
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}
