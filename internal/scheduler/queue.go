package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/metrics"
)

// LaneGroup bundles every lane for one priority class.
type LaneGroup struct {
	Priority PriorityClass
	Lanes    []*Lane
}

func newLaneGroup(priority PriorityClass, numLanes, queueDepth int) *LaneGroup {
	lanes := make([]*Lane, numLanes)
	for i := range lanes {
		lanes[i] = newLane(queueDepth)
	}
	return &LaneGroup{Priority: priority, Lanes: lanes}
}

func (g *LaneGroup) laneFor(hash uint32) *Lane {
	return g.Lanes[hash%uint32(len(g.Lanes))]
}

// Queue owns every lane group and the worker pool draining them. Groups
// are iterated Admin, LowLatency, LongRunning when a worker looks for its
// next task, implementing the §4.6 priority rule.
type Queue struct {
	groups []*LaneGroup
	m      *metrics.Registry

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewQueue constructs a Queue sized per cfg. m may be nil.
func NewQueue(cfg config.QueueManagerConfig, m *metrics.Registry) *Queue {
	numLanes := cfg.MaxLanes
	if numLanes <= 0 {
		numLanes = 1
	}
	return &Queue{
		groups: []*LaneGroup{
			newLaneGroup(PriorityAdmin, numLanes, cfg.QueueDepth),
			newLaneGroup(PriorityLowLatency, numLanes, cfg.QueueDepth),
			newLaneGroup(PriorityLongRunning, numLanes, cfg.QueueDepth),
		},
		m:      m,
		stopCh: make(chan struct{}),
	}
}

func (q *Queue) groupFor(p PriorityClass) *LaneGroup {
	for _, g := range q.groups {
		if g.Priority == p {
			return g
		}
	}
	return nil
}

// Submit routes task to the lane its Priority and LaneHash select.
func (q *Queue) Submit(task *Task) error {
	group := q.groupFor(task.Priority)
	if group == nil {
		return herrors.New(herrors.InvalidArgument, "scheduler: unrecognized priority class")
	}
	return group.laneFor(task.LaneHash).emplace(task)
}

// SubmitLane dispatches a fire-and-forget function onto the low-latency
// lane laneHash selects, for callers that want lane serialization without
// building a full Task (e.g. blobio's background access-stat updates).
func (q *Queue) SubmitLane(laneHash uint32, run func(ctx context.Context) (any, error)) error {
	return q.Submit(&Task{LaneHash: laneHash, Priority: PriorityLowLatency, Run: run})
}

// StartWorkers launches n worker goroutines draining the queue until ctx
// is cancelled or Stop is called.
func (q *Queue) StartWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx)
	}
}

// Stop signals every worker to exit and waits for them to drain their
// current task.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

func (q *Queue) workerLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		default:
		}

		task, ok := q.dequeue()
		if !ok {
			// Matches the aistore lru idiom of a short throttle sleep
			// between empty polls rather than a pure busy spin.
			select {
			case <-time.After(time.Millisecond):
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			}
			continue
		}
		q.run(ctx, task)
	}
}

// dequeue scans groups highest-priority-first, then each group's lanes in
// order, returning the first ready task it finds.
func (q *Queue) dequeue() (*Task, bool) {
	for _, g := range q.groups {
		for _, lane := range g.Lanes {
			if t, ok := lane.tryPop(); ok {
				return t, true
			}
		}
	}
	return nil, false
}

func (q *Queue) run(ctx context.Context, t *Task) {
	if t.Cancelled() {
		q.finish(t, Result{Err: herrors.New(herrors.Cancelled, "scheduler: task cancelled before running")})
		return
	}
	if t.expired(time.Now()) {
		q.finish(t, Result{Err: herrors.New(herrors.Cancelled, "scheduler: task deadline expired before running")})
		return
	}

	value, err := t.Run(ctx)
	// A locally retriable failure (herrors.Retriable) is run again, up to
	// maxRetries more times with a doubling backoff, before its result is
	// reported.
	const maxRetries = 3
	backoff := time.Millisecond
	for attempt := 0; attempt < maxRetries && herrors.Retriable(err) && !t.Cancelled() && ctx.Err() == nil; attempt++ {
		time.Sleep(backoff)
		backoff *= 2
		value, err = t.Run(ctx)
	}
	q.finish(t, Result{Value: value, Err: err})

	if err == nil && t.PeriodMs > 0 && !t.Cancelled() {
		period := time.Duration(t.PeriodMs) * time.Millisecond
		time.AfterFunc(period, func() {
			if t.Cancelled() {
				return
			}
			_ = q.Submit(t)
		})
	}
}

func (q *Queue) finish(t *Task, r Result) {
	if t.Done != nil {
		select {
		case t.Done <- r:
		default:
		}
	}
}

// ReportDepths writes every lane's current depth to the
// hermes_scheduler_lane_depth gauge. Callers typically invoke this on a
// short ticker; it is not wired to emplace/dequeue directly to keep those
// hot paths free of a gauge write per task.
func (q *Queue) ReportDepths() {
	if q.m == nil {
		return
	}
	for _, g := range q.groups {
		for i, lane := range g.Lanes {
			q.m.SchedulerLaneDepth.WithLabelValues(g.Priority.String(), strconv.Itoa(i)).Set(float64(lane.Depth()))
		}
	}
}
