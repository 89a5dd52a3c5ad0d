package scheduler

import "context"

// Periodic submits run as a recurring task scheduled roughly every
// periodMs, used by BORG (spec.md §4.5) and any other background sweep
// that needs its own lane affinity and priority class. The returned Task
// can be cancelled to stop future resubmissions.
func Periodic(q *Queue, priority PriorityClass, laneHash uint32, periodMs uint32, run func(ctx context.Context) (any, error)) (*Task, error) {
	t := &Task{
		Priority: priority,
		LaneHash: laneHash,
		PeriodMs: periodMs,
		Run:      run,
	}
	if err := q.Submit(t); err != nil {
		return nil, err
	}
	return t, nil
}
