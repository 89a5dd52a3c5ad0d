package herrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(NotFound, "blob 1 missing")
	k, ok := KindOf(err)
	if !ok || k != NotFound {
		t.Fatalf("KindOf = (%v, %v), want (NotFound, true)", k, ok)
	}
}

func TestIsMatchesSentinel(t *testing.T) {
	err := New(NotFound, "blob 1 missing")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound) to be true")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("expected errors.Is(err, ErrConflict) to be false")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk read failed")
	wrapped := Wrap(Io, "target read", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected wrapped error to unwrap to cause")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Error("expected Unwrap to return cause")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if Wrap(Io, "msg", nil) != nil {
		t.Error("Wrap with nil cause should return nil")
	}
}

func TestRetriable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict always retriable", New(Conflict, "race"), true},
		{"rpc timeout not idempotent", New(RpcTimeout, "slow"), false},
		{"rpc timeout idempotent", New(RpcTimeout, "slow").WithIdempotent(), true},
		{"no space not retriable", New(NoSpace, "full"), false},
		{"plain error not retriable", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retriable(tt.err); got != tt.want {
				t.Errorf("Retriable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	if !Fatal(New(Io, "disk gone")) {
		t.Error("Io should be fatal")
	}
	if !Fatal(New(Shutdown, "draining")) {
		t.Error("Shutdown should be fatal")
	}
	if Fatal(New(NotFound, "missing")) {
		t.Error("NotFound should not be fatal")
	}
}
