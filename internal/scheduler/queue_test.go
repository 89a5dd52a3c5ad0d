package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreamware/hermes/internal/config"
	"github.com/dreamware/hermes/internal/herrors"
)

func testQueue() *Queue {
	return NewQueue(config.QueueManagerConfig{QueueDepth: 8, MaxLanes: 4}, nil)
}

func TestSubmitAndRunSingleTask(t *testing.T) {
	q := testQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartWorkers(ctx, 2)
	defer q.Stop()

	done := make(chan Result, 1)
	err := q.Submit(&Task{
		Priority: PriorityLowLatency,
		LaneHash: 1,
		Run:      func(ctx context.Context) (any, error) { return "ok", nil },
		Done:     done,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case r := <-done:
		if r.Err != nil || r.Value != "ok" {
			t.Errorf("unexpected result: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("task did not complete in time")
	}
}

func TestSameLaneHashPreservesOrder(t *testing.T) {
	q := testQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartWorkers(ctx, 1) // single worker: no cross-worker races to worry about
	defer q.Stop()

	var order []int
	results := make(chan Result, 10)
	for i := 0; i < 10; i++ {
		i := i
		err := q.Submit(&Task{
			Priority: PriorityLowLatency,
			LaneHash: 42, // identical hash forces same lane
			Run: func(ctx context.Context) (any, error) {
				order = append(order, i)
				return nil, nil
			},
			Done: results,
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		<-results
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected strict submission order for same lane hash, got %v", order)
		}
	}
}

func TestAdminPriorityRunsBeforeLongRunning(t *testing.T) {
	q := testQueue()

	// No workers started yet: both tasks sit queued, letting us assert
	// dequeue order deterministically.
	var longRunningRan, adminRan atomic.Bool
	if err := q.Submit(&Task{
		Priority: PriorityLongRunning,
		LaneHash: 1,
		Run:      func(ctx context.Context) (any, error) { longRunningRan.Store(true); return nil, nil },
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := q.Submit(&Task{
		Priority: PriorityAdmin,
		LaneHash: 1,
		Run:      func(ctx context.Context) (any, error) { adminRan.Store(true); return nil, nil },
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	task, ok := q.dequeue()
	if !ok {
		t.Fatal("expected a ready task")
	}
	if task.Priority != PriorityAdmin {
		t.Errorf("expected the admin task to dequeue first, got priority %v", task.Priority)
	}
}

func TestCancelledTaskNeverRuns(t *testing.T) {
	q := testQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartWorkers(ctx, 1)
	defer q.Stop()

	var ran atomic.Bool
	done := make(chan Result, 1)
	task := &Task{
		Priority: PriorityLowLatency,
		LaneHash: 1,
		Run:      func(ctx context.Context) (any, error) { ran.Store(true); return nil, nil },
		Done:     done,
	}
	task.Cancel()
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case r := <-done:
		if !herrors.Is(r.Err, herrors.Cancelled) {
			t.Errorf("expected Cancelled result, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled task did not resolve in time")
	}
	if ran.Load() {
		t.Error("cancelled task must not run")
	}
}

func TestExpiredDeadlineResolvesCancelledWithoutRunning(t *testing.T) {
	q := testQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartWorkers(ctx, 1)
	defer q.Stop()

	var ran atomic.Bool
	done := make(chan Result, 1)
	task := &Task{
		Priority: PriorityLowLatency,
		LaneHash: 1,
		Deadline: time.Now().Add(-time.Second),
		Run:      func(ctx context.Context) (any, error) { ran.Store(true); return nil, nil },
		Done:     done,
	}
	if err := q.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case r := <-done:
		if !herrors.Is(r.Err, herrors.Cancelled) {
			t.Errorf("expected Cancelled result for an expired deadline, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("expired task did not resolve in time")
	}
	if ran.Load() {
		t.Error("expired task must not run")
	}
}

func TestLaneEmplaceFailsAtCapacity(t *testing.T) {
	lane := newLane(2)
	if err := lane.emplace(&Task{}); err != nil {
		t.Fatalf("emplace 1 failed: %v", err)
	}
	if err := lane.emplace(&Task{}); err != nil {
		t.Fatalf("emplace 2 failed: %v", err)
	}
	if err := lane.emplace(&Task{}); !herrors.Is(err, herrors.NoSpace) {
		t.Errorf("expected NoSpace once the lane is full, got %v", err)
	}
}

func TestLaneResizeCarriesOverQueuedTasks(t *testing.T) {
	lane := newLane(2)
	first := &Task{LaneHash: 1}
	second := &Task{LaneHash: 2}
	_ = lane.emplace(first)
	_ = lane.emplace(second)

	lane.Resize(4)
	if lane.Depth() != 2 {
		t.Fatalf("Depth() after resize = %d, want 2", lane.Depth())
	}
	got, ok := lane.tryPop()
	if !ok || got != first {
		t.Errorf("expected resize to preserve FIFO order, got %+v", got)
	}
}

func TestPeriodicTaskResubmitsAfterCompletion(t *testing.T) {
	q := testQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.StartWorkers(ctx, 1)
	defer q.Stop()

	var runs atomic.Int64
	task, err := Periodic(q, PriorityLowLatency, 7, 10, func(ctx context.Context) (any, error) {
		runs.Add(1)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Periodic failed: %v", err)
	}
	defer task.Cancel()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("periodic task only ran %d times", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
