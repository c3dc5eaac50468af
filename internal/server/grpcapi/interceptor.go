// Copyright 2025 Certen Protocol
//
// Request-correlation interceptor. Assigns a UUID per inbound RPC purely
// for log correlation; it is distinct from the job key (proverdata.JobKey),
// which is a content fingerprint used for dedup, not a request identity.
// Grounded on pkg/server/bulk_handlers.go's `uuid.New()`-per-job pattern,
// repurposed here for one-per-call rather than one-per-export-job.

package grpcapi

import (
	"context"
	"log"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// LoggingUnaryInterceptor logs each unary call's method and a generated
// request ID, for correlating a call with its downstream pipeline logs.
func LoggingUnaryInterceptor(logger *log.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.New(log.Writer(), "[gRPC] ", log.LstdFlags)
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := uuid.New()
		logger.Printf("request %s: %s", requestID, info.FullMethod)
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Printf("request %s: %s failed: %v", requestID, info.FullMethod, err)
		}
		return resp, err
	}
}

// LoggingStreamInterceptor is the streaming-call equivalent of
// LoggingUnaryInterceptor, used for StreamCompletions.
func LoggingStreamInterceptor(logger *log.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = log.New(log.Writer(), "[gRPC] ", log.LstdFlags)
	}
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		requestID := uuid.New()
		logger.Printf("stream %s: %s opened", requestID, info.FullMethod)
		err := handler(srv, ss)
		if err != nil {
			logger.Printf("stream %s: %s closed: %v", requestID, info.FullMethod, err)
		}
		return err
	}
}
