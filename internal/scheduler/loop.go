package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/mstate/internal/ir"
)

// Loop is a cooperative single-goroutine event loop implementing Bus and
// Timers on real time.
//
// Every handler and timer callback runs on the goroutine that called Run,
// so machines driven by one Loop never run concurrently. Raise coalesces:
// a machine with a wake already pending is not queued twice.
type Loop struct {
	mu       sync.Mutex
	handlers map[ir.MachineID]func()
	raised   map[ir.MachineID]bool
	tasks    []func()

	signal   chan struct{} // buffered, size 1
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLoop returns a loop that is not yet running.
func NewLoop() *Loop {
	return &Loop{
		handlers: make(map[ir.MachineID]func()),
		raised:   make(map[ir.MachineID]bool),
		signal:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// OnEvent registers the wake handler for id, replacing any previous one.
func (l *Loop) OnEvent(id ir.MachineID, handler func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[id] = handler
}

// Raise queues a wake for id. Safe from any goroutine.
func (l *Loop) Raise(id ir.MachineID) {
	l.mu.Lock()
	if l.raised[id] {
		l.mu.Unlock()
		return
	}
	l.raised[id] = true
	l.tasks = append(l.tasks, func() { l.dispatch(id) })
	l.mu.Unlock()
	l.notify()
}

func (l *Loop) dispatch(id ir.MachineID) {
	l.mu.Lock()
	delete(l.raised, id)
	h := l.handlers[id]
	l.mu.Unlock()
	if h == nil {
		slog.Warn("wake for unregistered machine", "machine", id)
		return
	}
	h()
}

// post queues fn to run on the loop goroutine.
func (l *Loop) post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.notify()
}

func (l *Loop) notify() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tasks) == 0 {
		return nil, false
	}
	fn := l.tasks[0]
	l.tasks[0] = nil
	if len(l.tasks) == 1 {
		l.tasks = l.tasks[:0]
	} else {
		l.tasks = l.tasks[1:]
	}
	return fn, true
}

// After runs fn on the loop goroutine once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { l.post(fn) })
	return func() { t.Stop() }
}

// Every runs fn on the loop goroutine every d until cancelled or the loop
// stops.
func (l *Loop) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.post(fn)
			case <-done:
				return
			case <-l.stop:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Run processes events until ctx is cancelled or Stop is called. It
// returns ctx.Err() on cancellation and nil after Stop.
func (l *Loop) Run(ctx context.Context) error {
	slog.Debug("event loop starting")
	for {
		for {
			select {
			case <-l.stop:
				slog.Debug("event loop stopping: stopped")
				return nil
			default:
			}
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
		}

		select {
		case <-ctx.Done():
			slog.Debug("event loop stopping: context cancelled")
			return ctx.Err()
		case <-l.stop:
			slog.Debug("event loop stopping: stopped")
			return nil
		case <-l.signal:
		}
	}
}

// Stop makes Run return. Safe to call more than once and from handlers.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}
