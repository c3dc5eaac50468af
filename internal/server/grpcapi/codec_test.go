package grpcapi

import "testing"

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := jsonCodec{}
	original := &ProveRequest{Program: ProgramMessageInclusion, Payload: []byte("abc")}

	data, err := c.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got := new(ProveRequest)
	if err := c.Unmarshal(data, got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Program != original.Program || string(got.Payload) != string(original.Payload) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, original)
	}
}

func TestJSONCodec_Name(t *testing.T) {
	if (jsonCodec{}).Name() != "json" {
		t.Fatalf("expected codec name %q", "json")
	}
}
