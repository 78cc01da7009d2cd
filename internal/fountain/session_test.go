package fountain

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestSessionTableReassemblesAcrossBlocks(t *testing.T) {
	table, err := NewSessionTable(64)
	if err != nil {
		t.Fatalf("NewSessionTable: %v", err)
	}
	defer table.Close()

	payload := []byte(strings.Repeat("session reassembly payload ", 25))
	transferID := uint32(0x9988)
	blocks := Encode(transferID, payload)

	var out []byte
	var complete bool
	var received int
	for _, b := range blocks {
		out, received, complete = table.AddBlock(b)
		if complete {
			break
		}
	}
	if !complete {
		t.Fatal("session table did not complete the transfer")
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("reassembled payload mismatch")
	}
	if received <= 0 {
		t.Fatalf("received = %d, want > 0", received)
	}
	if table.Received(transferID) != 0 {
		t.Fatal("completed transfer should have been removed from the table")
	}
}

func TestSessionTableReceivedCountsDistinctBlocks(t *testing.T) {
	table, err := NewSessionTable(64)
	if err != nil {
		t.Fatalf("NewSessionTable: %v", err)
	}
	defer table.Close()

	payload := make([]byte, BlockPayloadSize*20)
	transferID := uint32(0x1234)
	blocks := Encode(transferID, payload)

	table.AddBlock(blocks[0])
	table.AddBlock(blocks[1])
	if got := table.Received(transferID); got != 2 {
		t.Fatalf("Received = %d, want 2", got)
	}
}

func TestPendingTableAddGetRemove(t *testing.T) {
	pt := NewPendingTable()
	transfer := &PendingTransfer{TransferID: 5, HashPrefix: [8]byte{9}}
	pt.Add(transfer)

	got, ok := pt.Get(5)
	if !ok || got != transfer {
		t.Fatal("Get did not return the added transfer")
	}

	pt.Remove(5)
	if _, ok := pt.Get(5); ok {
		t.Fatal("transfer still present after Remove")
	}
}

func TestCompletionHashIsStablePrefixOfSHA256(t *testing.T) {
	h1 := CompletionHash([]byte("hello"))
	h2 := CompletionHash([]byte("hello"))
	if h1 != h2 {
		t.Fatal("CompletionHash not deterministic")
	}
	if h1 == CompletionHash([]byte("hellp")) {
		t.Fatal("CompletionHash collided on differing input")
	}
}

func TestEmitCompleteACKSendsTwice(t *testing.T) {
	var sent [][]byte
	EmitCompleteACK(context.Background(), 42, 10, [8]byte{1}, func(b []byte) {
		sent = append(sent, b)
	})
	if len(sent) != 2 {
		t.Fatalf("EmitCompleteACK sent %d frames, want 2", len(sent))
	}
	if !bytes.Equal(sent[0], sent[1]) {
		t.Fatal("the two Complete ACK frames should be identical")
	}
}

func TestEmitCompleteACKRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sent int
	start := time.Now()
	EmitCompleteACK(ctx, 1, 1, [8]byte{}, func(b []byte) { sent++ })
	if time.Since(start) > completeACKSpacing {
		t.Fatal("EmitCompleteACK should return promptly once context is cancelled")
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 (only the immediate send before cancellation)", sent)
	}
}
