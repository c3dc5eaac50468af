package witness

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/certen/ev-prover/internal/da"
	"github.com/certen/ev-prover/internal/proverdata"
)

func encodeHeights(heights ...uint64) []byte {
	buf := make([]byte, 8*len(heights))
	for i, h := range heights {
		binary.BigEndian.PutUint64(buf[i*8:(i+1)*8], h)
	}
	return buf
}

func TestDecodeRollupHeights_SingleBlobMultipleHeights(t *testing.T) {
	blobs := []da.Blob{
		{ShareIndex: 0, Data: encodeHeights(100, 101, 102)},
	}
	got, err := decodeRollupHeights(blobs)
	if err != nil {
		t.Fatalf("decodeRollupHeights: %v", err)
	}
	want := []proverdata.Height{100, 101, 102}
	if len(got) != len(want) {
		t.Fatalf("expected %d heights, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("height %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeRollupHeights_PreservesShareOrder(t *testing.T) {
	blobs := []da.Blob{
		{ShareIndex: 0, Data: encodeHeights(10)},
		{ShareIndex: 1, Data: encodeHeights(11, 12)},
	}
	got, err := decodeRollupHeights(blobs)
	if err != nil {
		t.Fatalf("decodeRollupHeights: %v", err)
	}
	want := []proverdata.Height{10, 11, 12}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeRollupHeights_MalformedBlobRejected(t *testing.T) {
	blobs := []da.Blob{
		{ShareIndex: 0, Data: []byte{0x01, 0x02, 0x03}},
	}
	_, err := decodeRollupHeights(blobs)
	if !errors.Is(err, ErrMalformedBlob) {
		t.Fatalf("expected ErrMalformedBlob, got %v", err)
	}
}

func TestDecodeRollupHeights_EmptyBlobsYieldsNoHeights(t *testing.T) {
	got, err := decodeRollupHeights(nil)
	if err != nil {
		t.Fatalf("decodeRollupHeights: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no heights, got %d", len(got))
	}
}
