package sched

import "sync"

// Scheduler marshals closures onto the game server's main loop. Inventory and
// wallet mutations issued from asynchronous tasks must go through it; the main
// loop itself is single-threaded and closures run one at a time in submission
// order.
type Scheduler interface {
	Run(fn func())
}

// Wait submits fn and blocks the calling goroutine until it ran. Use it when
// an asynchronous task needs the result of a main-loop mutation.
func Wait[T any](s Scheduler, fn func() T) T {
	var out T
	done := make(chan struct{})
	s.Run(func() {
		out = fn()
		close(done)
	})
	<-done
	return out
}

// Loop is a Scheduler backed by a single drain goroutine, standing in for the
// game server's tick loop when the economy layer runs outside one.
type Loop struct {
	queue chan func()
	once  sync.Once
	done  chan struct{}
}

// NewLoop starts the drain goroutine.
func NewLoop() *Loop {
	l := &Loop{queue: make(chan func(), 64), done: make(chan struct{})}
	go l.drain()
	return l
}

func (l *Loop) drain() {
	defer close(l.done)
	for fn := range l.queue {
		fn()
	}
}

func (l *Loop) Run(fn func()) {
	l.queue <- fn
}

// Close stops accepting work and waits for queued closures to finish.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.queue) })
	<-l.done
}

// Sync runs closures inline on the calling goroutine. Test use, where the test
// goroutine plays the part of the main loop.
type Sync struct{}

func (Sync) Run(fn func()) { fn() }
