package bulk

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "hermes.rpc.bulk.BulkTransfer"

// TransferServer is implemented by whatever owns the local targets a peer
// wants to read from or write into.
type TransferServer interface {
	BulkWrite(BulkTransfer_BulkWriteServer) error
	BulkRead(*ReadRequest, BulkTransfer_BulkReadServer) error
}

// BulkTransfer_BulkWriteServer is the server side of a client-streaming
// BulkWrite call.
type BulkTransfer_BulkWriteServer interface {
	Recv() (*Chunk, error)
	SendAndClose(*Ack) error
	grpc.ServerStream
}

// BulkTransfer_BulkReadServer is the server side of a server-streaming
// BulkRead call.
type BulkTransfer_BulkReadServer interface {
	Send(*Chunk) error
	grpc.ServerStream
}

type bulkWriteServer struct{ grpc.ServerStream }

func (s *bulkWriteServer) Recv() (*Chunk, error) {
	c := new(Chunk)
	if err := s.ServerStream.RecvMsg(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *bulkWriteServer) SendAndClose(a *Ack) error {
	return s.ServerStream.SendMsg(a)
}

type bulkReadServer struct{ grpc.ServerStream }

func (s *bulkReadServer) Send(c *Chunk) error {
	return s.ServerStream.SendMsg(c)
}

func _BulkTransfer_BulkWrite_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(TransferServer).BulkWrite(&bulkWriteServer{stream})
}

func _BulkTransfer_BulkRead_Handler(srv any, stream grpc.ServerStream) error {
	req := new(ReadRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TransferServer).BulkRead(req, &bulkReadServer{stream})
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from bulk.proto (spec.md §4.7). RegisterTransferServer wires
// it onto a *grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TransferServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BulkWrite",
			Handler:       _BulkTransfer_BulkWrite_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "BulkRead",
			Handler:       _BulkTransfer_BulkRead_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "hermes/bulk.proto",
}

// RegisterTransferServer registers srv to handle BulkTransfer RPCs on s.
func RegisterTransferServer(s grpc.ServiceRegistrar, srv TransferServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// TransferClient is the client side of the BulkTransfer service.
type TransferClient interface {
	BulkWrite(ctx context.Context, opts ...grpc.CallOption) (BulkTransfer_BulkWriteClient, error)
	BulkRead(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (BulkTransfer_BulkReadClient, error)
}

// BulkTransfer_BulkWriteClient is the client side of a client-streaming
// BulkWrite call.
type BulkTransfer_BulkWriteClient interface {
	Send(*Chunk) error
	CloseAndRecv() (*Ack, error)
	grpc.ClientStream
}

// BulkTransfer_BulkReadClient is the client side of a server-streaming
// BulkRead call.
type BulkTransfer_BulkReadClient interface {
	Recv() (*Chunk, error)
	grpc.ClientStream
}

type transferClient struct {
	cc grpc.ClientConnInterface
}

// NewTransferClient wraps cc for BulkTransfer calls, forcing the
// package's JSON-framed codec as the content subtype.
func NewTransferClient(cc grpc.ClientConnInterface) TransferClient {
	return &transferClient{cc: cc}
}

func (c *transferClient) BulkWrite(ctx context.Context, opts ...grpc.CallOption) (BulkTransfer_BulkWriteClient, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+serviceName+"/BulkWrite", opts...)
	if err != nil {
		return nil, err
	}
	return &bulkWriteClient{stream}, nil
}

func (c *transferClient) BulkRead(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (BulkTransfer_BulkReadClient, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/"+serviceName+"/BulkRead", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &bulkReadClient{stream}, nil
}

type bulkWriteClient struct{ grpc.ClientStream }

func (c *bulkWriteClient) Send(chunk *Chunk) error {
	return c.ClientStream.SendMsg(chunk)
}

func (c *bulkWriteClient) CloseAndRecv() (*Ack, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	ack := new(Ack)
	if err := c.ClientStream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}

type bulkReadClient struct{ grpc.ClientStream }

func (c *bulkReadClient) Recv() (*Chunk, error) {
	chunk := new(Chunk)
	if err := c.ClientStream.RecvMsg(chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}
