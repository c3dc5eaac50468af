package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certen/ev-prover/internal/server/grpcapi"
)

type fakeServer struct {
	resp *grpcapi.StatusResponse
	err  error
}

func (f *fakeServer) Status(ctx context.Context, req *grpcapi.StatusRequest) (*grpcapi.StatusResponse, error) {
	return f.resp, f.err
}
func (f *fakeServer) Prove(ctx context.Context, req *grpcapi.ProveRequest) (*grpcapi.ProveResponse, error) {
	return nil, nil
}
func (f *fakeServer) Await(ctx context.Context, req *grpcapi.AwaitRequest) (*grpcapi.AwaitResponse, error) {
	return nil, nil
}
func (f *fakeServer) StreamCompletions(req *grpcapi.StreamCompletionsRequest, stream grpcapi.ProverService_StreamCompletionsServer) error {
	return nil
}

func TestHandleHealth_AllPipelinesHealthy(t *testing.T) {
	srv := &fakeServer{resp: &grpcapi.StatusResponse{
		Pipelines: []grpcapi.PipelineHealth{{Name: "block-exec", Healthy: true}},
	}}
	h := New(srv, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealth_UnhealthyPipelineReturns503(t *testing.T) {
	srv := &fakeServer{resp: &grpcapi.StatusResponse{
		Pipelines: []grpcapi.PipelineHealth{{Name: "range-aggregation", Healthy: false, LastError: "halted"}},
	}}
	h := New(srv, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleHealth_RejectsNonGet(t *testing.T) {
	h := New(&fakeServer{resp: &grpcapi.StatusResponse{}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
