// Package logging wraps zerolog into the component-tagged, leveled logger
// Hermes's daemon and background tasks use, grounded on the
// component-prefixed leveled logging convention aistore's lru package
// shows via glog.Infof("lru: ...") — Hermes names the component as a
// structured field instead of a string prefix since zerolog is a
// structured logger.
//
// The teacher logs with plain log.Printf/log.Fatalf; Hermes keeps that for
// the handful of daemon lifecycle messages in cmd/hermesd (matching
// teacher texture there) and uses this package for everything that needs a
// node id, task id, or lane attached.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin alias so callers don't need to import zerolog directly
// just to hold a reference.
type Logger = zerolog.Logger

// New creates a component-tagged logger writing to w (os.Stderr in
// production, a buffer in tests) with the given node id attached to every
// record.
func New(w io.Writer, component string, nodeID uint32) Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Uint32("node_id", nodeID).
		Logger()
}

// NewDefault is New(os.Stderr, component, nodeID), the constructor used
// throughout the daemon.
func NewDefault(component string, nodeID uint32) Logger {
	return New(os.Stderr, component, nodeID)
}

// WithTask returns a child logger with a task id and lane attached, for
// tagging log lines emitted while running a task. The scheduler does not
// call it.
func WithTask(l Logger, taskID string, lane int) Logger {
	return l.With().Str("task_id", taskID).Int("lane", lane).Logger()
}

// init keeps zerolog's global timestamp format human-readable in the rare
// case a dependency logs through the global logger instead of an injected
// one.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
