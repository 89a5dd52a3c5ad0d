package bufferpool

import (
	"context"
	"testing"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/target"
)

func newLocalTarget(t *testing.T, name string) *target.Target {
	t.Helper()
	tgt, err := target.NewRAMTarget(ids.NewTargetID(1, name), 1<<20, 10000, 1, []int64{4096})
	if err != nil {
		t.Fatalf("NewRAMTarget failed: %v", err)
	}
	return tgt
}

func TestReserveRoutesToLocalTarget(t *testing.T) {
	tgt := newLocalTarget(t, "mem0")
	pool := New(1, nil, nil)
	pool.AddLocal(tgt)

	bufs, err := pool.Reserve(context.Background(), tgt.ID, 100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if len(bufs) == 0 {
		t.Fatal("expected at least one buffer")
	}
}

func TestReserveUnknownTargetIsNotFound(t *testing.T) {
	pool := New(1, nil, nil)
	_, err := pool.Reserve(context.Background(), ids.NewTargetID(9, "ghost"), 100)
	if !herrors.Is(err, herrors.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

type fakeRemote struct {
	called   bool
	response []target.BufferInfo
	err      error
}

func (f *fakeRemote) ReserveRemote(ctx context.Context, nodeID uint32, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error) {
	f.called = true
	return f.response, f.err
}

func TestReserveRoutesToRemoteReserver(t *testing.T) {
	remoteTarget := ids.NewTargetID(2, "mem-remote")
	remote := &fakeRemote{response: []target.BufferInfo{{TargetID: remoteTarget, Size: 4096}}}
	pool := New(1, remote, nil)
	pool.AddRemote(remoteTarget, 2)

	bufs, err := pool.Reserve(context.Background(), remoteTarget, 100)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !remote.called {
		t.Error("expected the remote reserver to be invoked")
	}
	if len(bufs) != 1 {
		t.Errorf("expected the remote's response to be returned, got %+v", bufs)
	}
}

func TestReserveRemoteWithoutReserverIsUnreachable(t *testing.T) {
	remoteTarget := ids.NewTargetID(2, "mem-remote")
	pool := New(1, nil, nil)
	pool.AddRemote(remoteTarget, 2)

	_, err := pool.Reserve(context.Background(), remoteTarget, 100)
	if !herrors.Is(err, herrors.RpcUnreachable) {
		t.Errorf("expected RpcUnreachable, got %v", err)
	}
}

func TestFreeRejectsNonLocalTarget(t *testing.T) {
	pool := New(1, nil, nil)
	err := pool.Free(target.BufferInfo{TargetID: ids.NewTargetID(2, "remote")})
	if !herrors.Is(err, herrors.InvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestCapacityReflectsReservation(t *testing.T) {
	tgt := newLocalTarget(t, "mem0")
	pool := New(1, nil, nil)
	pool.AddLocal(tgt)

	before := pool.Capacity()[0].Remaining
	if _, err := pool.Reserve(context.Background(), tgt.ID, 4096); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	after := pool.Capacity()[0].Remaining
	if after >= before {
		t.Errorf("expected Remaining to drop after Reserve: before=%d after=%d", before, after)
	}
}
