package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype every dcc peer negotiates:
// "application/grpc+json" on the wire instead of the usual
// "application/grpc+proto". There is no api/proto package to generate
// protobuf stubs from, so the Coordinator service is hand-written against
// plain Go structs and carried as JSON instead.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
