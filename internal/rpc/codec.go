// Package rpc defines the gRPC wire contract shared by every node:
// IndexService and HealthCheckService per spec.md §4.5/§6, plus a JSON
// codec so the service can carry the spec's documented
// "opaque bytes with the JSON payload for forward-compatibility" message
// shape without a protoc-generated .pb.go.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "bayard-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec using
// encoding/json, registered through grpc-go's public codec extension
// point (encoding.RegisterCodec) rather than relying on protobuf wire
// framing for every message.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

// CodecName is the name clients and servers must request via
// grpc.CallContentSubtype / grpc.ForceServerCodec to use this codec.
const CodecName = codecName
