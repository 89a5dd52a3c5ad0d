package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"google.golang.org/grpc"

	"github.com/dreamware/hermes/internal/bufferpool"
	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/rpc/bulk"
	"github.com/dreamware/hermes/internal/target"
)

// Server hosts both the control plane (JSON-over-HTTP) and the bulk
// transfer plane (grpc streaming) for this node's locally-owned targets
// (spec.md §4.7).
type Server struct {
	pool *bufferpool.BufferPool

	httpSrv *http.Server
	grpcSrv *grpc.Server

	onShutdown func(ctx context.Context) error
}

// NewServer wires pool into both planes; onShutdown runs when a peer's
// control-RPC "stop" call arrives.
func NewServer(pool *bufferpool.BufferPool, onShutdown func(ctx context.Context) error) *Server {
	s := &Server{pool: pool, onShutdown: onShutdown}

	mux := http.NewServeMux()
	NewControlServer(s).Register(mux)
	s.httpSrv = &http.Server{Handler: mux}

	s.grpcSrv = grpc.NewServer()
	bulk.RegisterTransferServer(s.grpcSrv, s)

	return s
}

// Serve blocks, running the control HTTP listener on httpLn and the bulk
// grpc listener on grpcLn until either fails or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.httpSrv.Serve(httpLn) }()
	go func() { errCh <- s.grpcSrv.Serve(grpcLn) }()

	select {
	case <-ctx.Done():
		_ = s.Close(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close drains both listeners without running the onShutdown hook; used
// when the caller (not a peer's control-RPC) is the one tearing the
// server down.
func (s *Server) Close(ctx context.Context) error {
	s.grpcSrv.GracefulStop()
	return s.httpSrv.Shutdown(ctx)
}

// ReserveLocal satisfies ControlHandler: it reserves wantBytes on a target
// this node hosts.
func (s *Server) ReserveLocal(ctx context.Context, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error) {
	t, ok := s.pool.LocalTarget(targetID)
	if !ok {
		return nil, herrors.New(herrors.NotFound, "rpc: target not hosted on this node")
	}
	return t.Reserve(wantBytes)
}

// RegisterPeerTarget satisfies ControlHandler: it records that targetID is
// owned by ownerNodeID so this node's own pool can route to it.
func (s *Server) RegisterPeerTarget(id ids.TargetID, ownerNodeID uint32) {
	s.pool.AddRemote(id, ownerNodeID)
}

// PollTarget satisfies ControlHandler.
func (s *Server) PollTarget(id ids.TargetID) (target.Stats, error) {
	t, ok := s.pool.LocalTarget(id)
	if !ok {
		return target.Stats{}, herrors.New(herrors.NotFound, "rpc: target not hosted on this node")
	}
	return t.Snapshot(), nil
}

// Shutdown satisfies ControlHandler: a peer's "stop" control-RPC (issued by
// cmd/hermes-ctl) runs the caller-supplied hook (typically
// hermes.Service.Shutdown) and then drains this server's own listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.onShutdown != nil {
		if err := s.onShutdown(ctx); err != nil {
			return err
		}
	}
	go func() { _ = s.Close(context.Background()) }()
	return nil
}

// BulkWrite satisfies bulk.TransferServer: it applies each streamed Chunk
// directly to the local target it names.
func (s *Server) BulkWrite(stream bulk.BulkTransfer_BulkWriteServer) error {
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stream.SendAndClose(&bulk.Ack{Ok: true})
			}
			return err
		}
		buf := fromBufferRef(chunk.Buffer)
		t, ok := s.pool.LocalTarget(buf.TargetID)
		if !ok {
			return stream.SendAndClose(&bulk.Ack{Ok: false, Message: "target not hosted on this node"})
		}
		if err := t.Write(buf, chunk.Data, chunk.OffsetInBuffer); err != nil {
			return stream.SendAndClose(&bulk.Ack{Ok: false, Message: err.Error()})
		}
	}
}

// BulkRead satisfies bulk.TransferServer: it streams the requested byte
// range back to the caller in bulkChunkSize frames.
func (s *Server) BulkRead(req *bulk.ReadRequest, stream bulk.BulkTransfer_BulkReadServer) error {
	buf := fromBufferRef(req.Buffer)
	t, ok := s.pool.LocalTarget(buf.TargetID)
	if !ok {
		return toStatus(herrors.New(herrors.NotFound, "rpc: target not hosted on this node"))
	}

	out := make([]byte, req.Length)
	if err := t.Read(buf, out, req.OffsetInBuffer); err != nil {
		return toStatus(err)
	}
	for off := 0; off < len(out); off += bulkChunkSize {
		end := off + bulkChunkSize
		if end > len(out) {
			end = len(out)
		}
		chunk := &bulk.Chunk{
			Buffer:         req.Buffer,
			OffsetInBuffer: req.OffsetInBuffer + int64(off),
			Data:           out[off:end],
		}
		if err := stream.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}
