package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/dreamware/hermes/internal/herrors"
)

// Lane is a bounded FIFO of tasks. emplace acquires mu for reading so
// many concurrent submitters never block each other; resize acquires mu
// for writing, which blocks every new emplace until the resize finishes —
// the plug/drain protocol spec.md §4.6 calls for.
type Lane struct {
	mu    sync.RWMutex
	ch    chan *Task
	depth atomic.Int64
}

func newLane(capacity int) *Lane {
	if capacity <= 0 {
		capacity = 1
	}
	return &Lane{ch: make(chan *Task, capacity)}
}

// emplace pushes t onto the lane without blocking, failing with NoSpace
// if the lane is at capacity.
func (l *Lane) emplace(t *Task) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	select {
	case l.ch <- t:
		l.depth.Add(1)
		return nil
	default:
		return herrors.New(herrors.NoSpace, "scheduler: lane at capacity")
	}
}

// tryPop removes and returns the lane's head task, if any is ready.
func (l *Lane) tryPop() (*Task, bool) {
	select {
	case t := <-l.ch:
		l.depth.Add(-1)
		return t, true
	default:
		return nil, false
	}
}

// Depth returns the current approximate queue length, for the
// hermes_scheduler_lane_depth gauge.
func (l *Lane) Depth() int64 { return l.depth.Load() }

// Resize replaces the lane's backing channel with one of newCapacity,
// carrying over any tasks already queued. New emplaces block for the
// duration of the resize; in-flight pops by a worker that already removed
// a task from the old channel are unaffected since they no longer touch
// the channel.
func (l *Lane) Resize(newCapacity int) {
	if newCapacity <= 0 {
		newCapacity = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.ch
	next := make(chan *Task, newCapacity)
	close(old)
	for t := range old {
		select {
		case next <- t:
		default:
			// Newly shrunk capacity couldn't hold every carried-over task;
			// the most recently queued tasks that do not fit are dropped
			// rather than block resize forever.
			l.depth.Add(-1)
		}
	}
	l.ch = next
}
