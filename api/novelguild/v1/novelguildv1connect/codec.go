// Package novelguildv1connect wires the novelguild.v1 services to connect
// handlers and clients.
package novelguildv1connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const codecName = "json"

// jsonCodec marshals plain Go messages with encoding/json. It replaces
// connect's protojson codec, which only accepts proto.Message values.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string {
	return codecName
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSON selects the JSON codec for a client or handler.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
