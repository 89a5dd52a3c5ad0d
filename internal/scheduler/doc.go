// Package scheduler implements Hermes's per-queue task runtime (spec.md
// §4.6): a priority-ordered set of lane groups, each holding several
// bounded FIFO lanes a task is routed to by hashing a stable key (usually
// a blob id), so every task touching the same blob runs in the order it
// was submitted relative to every other task touching that same blob.
//
// This is the largest component with no direct teacher analogue — the
// teacher's coordinator/node HTTP handlers run each request on its own
// goroutine with no lane concept at all — so its shape is grounded
// instead on the aistore xaction/lru idiom of a throttled background task
// that ticks, checks deadlines, and reports through atomic counters, and
// on a bounded-FIFO worker-pool pattern for the lane/queue structure
// itself.
package scheduler
