package demo

import (
	"sync"
	"time"
)

type task struct {
	id    int
	runAt time.Time
	every time.Duration // repeating when > 0
	fn    func()
}

// Scheduler is a cooperative single-goroutine timer queue. Every
// scheduled callback runs to completion on the Run goroutine before the
// next one fires, so callbacks never overlap and never observe
// half-mutated shared state. Stop drops all pending tasks; no callback
// fires after Stop returns from the Run goroutine's perspective.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[int]*task
	nextID int

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks: map[int]*task{},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// After schedules fn to run once after d. It returns a handle for Cancel.
func (s *Scheduler) After(d time.Duration, fn func()) int {
	return s.add(d, 0, fn)
}

// Every schedules fn to run repeatedly with period d.
func (s *Scheduler) Every(d time.Duration, fn func()) int {
	return s.add(d, d, fn)
}

func (s *Scheduler) add(d, every time.Duration, fn func()) int {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = &task{
		id:    id,
		runAt: time.Now().Add(d),
		every: every,
		fn:    fn,
	}
	s.mu.Unlock()
	s.signal()
	return id
}

func (s *Scheduler) Cancel(id int) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	s.signal()
}

// Pending returns the number of tasks still scheduled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task and ends Run. It is safe to call more
// than once and from any goroutine, including from inside a callback.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.tasks = map[int]*task{}
	s.mu.Unlock()
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Run drives the queue until Stop. It is the only goroutine that ever
// invokes callbacks.
func (s *Scheduler) Run() {
	for {
		next := s.earliest()
		if next == nil {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}

		timer := time.NewTimer(time.Until(next.runAt))
		select {
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
			continue
		case <-s.done:
			timer.Stop()
			return
		}

		s.mu.Lock()
		t, ok := s.tasks[next.id] // may have been cancelled while waiting
		if ok {
			if t.every > 0 {
				t.runAt = t.runAt.Add(t.every)
			} else {
				delete(s.tasks, t.id)
			}
		}
		s.mu.Unlock()

		if ok {
			select {
			case <-s.done:
				return
			default:
			}
			t.fn()
		}
	}
}

func (s *Scheduler) earliest() *task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *task
	for _, t := range s.tasks {
		if next == nil || t.runAt.Before(next.runAt) {
			next = t
		}
	}
	return next
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
