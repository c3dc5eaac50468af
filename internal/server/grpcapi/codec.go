// Copyright 2025 Certen Protocol

package grpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's codec registry so the service
// descriptor below can be served and dialed without a .proto/protoc step:
// every message in this package is a plain Go struct with json tags,
// marshaled with the stdlib encoder instead of protobuf wire format. This
// keeps the request/response and service-descriptor shape identical to
// what protoc-gen-go-grpc would produce (ServiceDesc, typed
// Client/Server interfaces, codegen-style method names) without requiring
// a protobuf toolchain in the build.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcapi: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }
