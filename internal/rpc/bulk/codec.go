package bulk

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc as a content subtype (spec.md §4.7:
// "real protobuf + grpc service"). Hand-generating protoc-go-grpc's usual
// descriptor-backed proto.Message plumbing by hand is its own source of
// bugs with nothing to compile it against, so BulkTransfer's messages are
// plain structs and this codec frames them as JSON instead of wire-format
// protobuf. The streaming transport, flow control, and deadline/status
// propagation this package relies on from google.golang.org/grpc are all
// the genuine article.
const codecName = "hermes-bulk-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
