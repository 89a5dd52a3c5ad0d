package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewAttachesComponentAndNode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "target", 7)
	l.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"target"`) {
		t.Errorf("expected component field in log output, got %s", out)
	}
	if !strings.Contains(out, `"node_id":7`) {
		t.Errorf("expected node_id field in log output, got %s", out)
	}
}

func TestWithTaskAttachesTaskAndLane(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "scheduler", 1)
	l := WithTask(base, "task-42", 3)
	l.Info().Msg("running")

	out := buf.String()
	if !strings.Contains(out, `"task_id":"task-42"`) {
		t.Errorf("expected task_id field, got %s", out)
	}
	if !strings.Contains(out, `"lane":3`) {
		t.Errorf("expected lane field, got %s", out)
	}
}
