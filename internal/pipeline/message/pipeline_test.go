package message

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeDispatchedMessages_AssignsSequentialNonces(t *testing.T) {
	logs := []types.Log{
		{Data: []byte("one")},
		{Data: []byte("two")},
		{Data: []byte("three")},
	}
	got := decodeDispatchedMessages(logs, 10, 12)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, m := range got {
		want := uint64(10 + i)
		if m.Nonce != want {
			t.Fatalf("message %d: got nonce %d want %d", i, m.Nonce, want)
		}
	}
}

func TestDecodeDispatchedMessages_ExcludesOutOfRange(t *testing.T) {
	logs := []types.Log{
		{Data: []byte("a")},
		{Data: []byte("b")},
	}
	got := decodeDispatchedMessages(logs, 0, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 in-range message, got %d", len(got))
	}
	if got[0].Nonce != 0 {
		t.Fatalf("expected nonce 0, got %d", got[0].Nonce)
	}
}
