// Copyright (C) 2025 TRAC Authors.
// See LICENSE for copying information.

package metaapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is advertised as the gRPC content-subtype so clients must
// opt in explicitly (grpc.CallContentSubtype(jsonCodecName) /
// grpc.ForceServerCodec(jsonCodec{})); the standard "proto" subtype stays
// available for any client that does carry real protobuf messages.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec over encoding/json. It stands in for
// the protobuf wire codec generated code would normally use: the message
// types in messages.go are plain Go structs, not generated proto messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
