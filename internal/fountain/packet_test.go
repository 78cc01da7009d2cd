package fountain

import (
	"bytes"
	"testing"
)

func TestDataBlockRoundTrip(t *testing.T) {
	b := DataBlock{
		TransferID:  0xABCDEF & 0xFFFFFF,
		Seed:        1234,
		K:           7,
		TotalLength: 900,
		Payload:     bytes.Repeat([]byte{0x5A}, BlockPayloadSize),
	}
	wire := EncodeDataBlock(b)
	if len(wire) != DataBlockSize {
		t.Fatalf("encoded size = %d, want %d", len(wire), DataBlockSize)
	}
	got, err := DecodeDataBlock(wire)
	if err != nil {
		t.Fatalf("DecodeDataBlock: %v", err)
	}
	if got.TransferID != b.TransferID || got.Seed != b.Seed || got.K != b.K || got.TotalLength != b.TotalLength {
		t.Fatalf("round trip header mismatch: got %+v want %+v", got, b)
	}
	if !bytes.Equal(got.Payload, b.Payload) {
		t.Fatalf("round trip payload mismatch")
	}
}

func TestDecodeDataBlockRejectsBadMagic(t *testing.T) {
	wire := EncodeDataBlock(DataBlock{Payload: make([]byte, BlockPayloadSize)})
	wire[0] = 'X'
	if _, err := DecodeDataBlock(wire); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestACKRoundTrip(t *testing.T) {
	a := ACK{
		TransferID: 0x112233,
		Type:       TypeAckComplete,
		Received:   12,
		Needed:     0,
		HashPrefix: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	wire := EncodeACK(a)
	if len(wire) != ACKSize {
		t.Fatalf("ack size = %d, want %d", len(wire), ACKSize)
	}
	if !IsACK(wire) {
		t.Fatal("IsACK false for a valid ACK frame")
	}
	got, err := DecodeACK(wire)
	if err != nil {
		t.Fatalf("DecodeACK: %v", err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

func TestIsPacketAndIsACKDistinguishDataBlocks(t *testing.T) {
	data := EncodeDataBlock(DataBlock{Payload: make([]byte, BlockPayloadSize)})
	if !IsPacket(data) {
		t.Fatal("data block should be recognized as a fountain packet")
	}
	if IsACK(data) {
		t.Fatal("data block should not be misidentified as an ACK")
	}
}

func TestBlockSeedDeterministic(t *testing.T) {
	s1 := BlockSeed(42, 3)
	s2 := BlockSeed(42, 3)
	if s1 != s2 {
		t.Fatal("BlockSeed not deterministic")
	}
	if BlockSeed(42, 3) == BlockSeed(42, 4) {
		t.Fatal("BlockSeed collided across adjacent indices (unexpected but not impossible; investigate if seen)")
	}
}
