// Package borg implements Hermes's Buffer Organiser (BORG), a background
// task that periodically reclassifies blobs by score percentile and
// relocates the hottest ones toward faster targets and the coldest ones
// toward slower ones (spec.md §4.5). It runs as a scheduler.Periodic task
// at LongRunning priority so it never preempts client-facing reads and
// writes.
package borg
