package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dreamware/hermes/internal/herrors"
	"github.com/dreamware/hermes/internal/ids"
	"github.com/dreamware/hermes/internal/rpc/bulk"
	"github.com/dreamware/hermes/internal/target"
)

// Client is the node-local view of every peer in the cluster: it satisfies
// bufferpool.RemoteReserver and blobio.RemoteIO, dialing each peer lazily
// and caching both its control HTTP client and its bulk grpc connection
// (spec.md §4.7).
type Client struct {
	dir *Directory

	mu      sync.Mutex
	control map[uint32]*ControlClient
	conns   map[uint32]*grpc.ClientConn
}

// NewClient builds a Client over dir, dialing peers on demand.
func NewClient(dir *Directory) *Client {
	return &Client{
		dir:     dir,
		control: make(map[uint32]*ControlClient),
		conns:   make(map[uint32]*grpc.ClientConn),
	}
}

func (c *Client) controlFor(nodeID uint32) (*ControlClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.control[nodeID]; ok {
		return cc, nil
	}
	addr, err := c.dir.Lookup(nodeID)
	if err != nil {
		return nil, err
	}
	cc := NewControlClient(nil, "http://"+addr)
	c.control[nodeID] = cc
	return cc, nil
}

func (c *Client) bulkFor(nodeID uint32) (bulk.TransferClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[nodeID]; ok {
		return bulk.NewTransferClient(conn), nil
	}
	addr, err := c.dir.Lookup(nodeID)
	if err != nil {
		return nil, err
	}
	// The directory holds the control address; the bulk listener is one
	// port above it.
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "rpc: malformed peer address", err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, herrors.Wrap(herrors.InvalidArgument, "rpc: malformed peer port", err)
	}
	bulkAddr := net.JoinHostPort(host, strconv.Itoa(portNum+1))
	conn, err := grpc.NewClient(bulkAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, herrors.Wrap(herrors.RpcUnreachable, "rpc: dialing bulk peer failed", err)
	}
	c.conns[nodeID] = conn
	return bulk.NewTransferClient(conn), nil
}

// ReserveRemote satisfies bufferpool.RemoteReserver.
func (c *Client) ReserveRemote(ctx context.Context, nodeID uint32, targetID ids.TargetID, wantBytes int64) ([]target.BufferInfo, error) {
	cc, err := c.controlFor(nodeID)
	if err != nil {
		return nil, err
	}
	return cc.ReserveRemote(ctx, targetID, wantBytes)
}

const bulkChunkSize = 1 << 18 // 256KiB per streamed frame

// WriteRemote satisfies blobio.RemoteIO: it streams data to the peer that
// owns buf.TargetID in bulkChunkSize frames and waits for its single Ack.
func (c *Client) WriteRemote(ctx context.Context, nodeID uint32, buf target.BufferInfo, data []byte, offInBuffer int64) error {
	bc, err := c.bulkFor(nodeID)
	if err != nil {
		return err
	}
	stream, err := bc.BulkWrite(ctx)
	if err != nil {
		return fromStatus(err)
	}

	ref := toBufferRef(buf)
	for off := 0; off < len(data); off += bulkChunkSize {
		end := off + bulkChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := &bulk.Chunk{
			Buffer:         ref,
			OffsetInBuffer: offInBuffer + int64(off),
			Data:           data[off:end],
		}
		if err := stream.Send(chunk); err != nil {
			return fromStatus(err)
		}
	}

	ack, err := stream.CloseAndRecv()
	if err != nil {
		return fromStatus(err)
	}
	if !ack.Ok {
		return herrors.New(herrors.RpcRemoteAbort, fmt.Sprintf("rpc: remote write rejected: %s", ack.Message))
	}
	return nil
}

// ReadRemote satisfies blobio.RemoteIO: it requests [offInBuffer,
// offInBuffer+len(out)) from the peer that owns buf.TargetID and copies
// the streamed chunks into out.
func (c *Client) ReadRemote(ctx context.Context, nodeID uint32, buf target.BufferInfo, out []byte, offInBuffer int64) error {
	bc, err := c.bulkFor(nodeID)
	if err != nil {
		return err
	}
	req := &bulk.ReadRequest{
		Buffer:         toBufferRef(buf),
		OffsetInBuffer: offInBuffer,
		Length:         int64(len(out)),
	}
	stream, err := bc.BulkRead(ctx, req)
	if err != nil {
		return fromStatus(err)
	}

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fromStatus(err)
		}
		start := chunk.OffsetInBuffer - offInBuffer
		if start < 0 || start >= int64(len(out)) {
			continue
		}
		end := start + int64(len(chunk.Data))
		if end > int64(len(out)) {
			end = int64(len(out))
		}
		copy(out[start:end], chunk.Data[:end-start])
	}
	return nil
}

// Close tears down every cached bulk connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func toBufferRef(buf target.BufferInfo) bulk.BufferRef {
	id := buf.TargetID
	return bulk.BufferRef{
		TargetNodeID:   id.NodeID,
		TargetHash:     id.Hash,
		TargetUnique:   id.Unique,
		SlabIndex:      buf.SlabIndex,
		OffsetInTarget: buf.OffsetInTarget,
		Size:           buf.Size,
	}
}

func fromBufferRef(ref bulk.BufferRef) target.BufferInfo {
	return target.BufferInfo{
		TargetID: ids.TargetID{
			NodeID: ref.TargetNodeID,
			Hash:   ref.TargetHash,
			Unique: ref.TargetUnique,
		},
		SlabIndex:      ref.SlabIndex,
		OffsetInTarget: ref.OffsetInTarget,
		Size:           ref.Size,
	}
}
