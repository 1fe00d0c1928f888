// Package rdrbridge binds purcd Instances to one or more renderer
// processes over a bidi-streaming gRPC connection (spec §3 "Renderer
// connection binding", §4.8), grounded on the teacher's internal/grpc
// server (google.golang.org/grpc transport, graceful start/stop shape),
// retargeted from unary function invocation to a long-lived DOM-mutation
// / renderer-event stream.
//
// There is no protoc toolchain in this build environment, so the wire
// messages below are plain JSON-tagged structs carried by a custom grpc
// codec rather than protoc-generated proto.Message types — the service
// still rides real google.golang.org/grpc transport, framing and
// bidi-streaming, just with a JSON wire format in place of protobuf
// (documented in DESIGN.md).
package rdrbridge

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
