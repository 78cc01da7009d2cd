// Package transport implements the generic-CoT pipeline carried on the
// forwarder radio port: compress, frame as either a direct payload or a
// fountain-coded transfer depending on size, and the inverse on
// receive.
//
// Grounded on the teacher's builtin/meshtastic/sender.go
// sendEntityAsCoT/sendPackets (compress + fountain-encode + paced send)
// and receiver.go handleATAKForwarder (demux + reassemble + decompress),
// generalized from hydris's entity payloads to raw CoT XML.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
	"github.com/johntiver92-beep/meshtastic-apple/internal/fountain"
	"github.com/johntiver92-beep/meshtastic-apple/internal/radio"
	"github.com/johntiver92-beep/meshtastic-apple/internal/zlibcodec"
)

// interPacketDelay paces outbound fountain blocks so a burst doesn't
// flood the mesh's limited airtime, matching the teacher's sender.go
// sendPackets pacing.
const interPacketDelay = 100 * time.Millisecond

// Transport wires a radio driver, the fountain codec state and the
// directional event callback together for the forwarder port.
type Transport struct {
	driver   radio.Driver
	sessions *fountain.SessionTable
	pending  *fountain.PendingTable
	channel  uint32
	hopLimit uint32
	log      *slog.Logger
}

// New constructs a Transport over driver, using sessions/pending as the
// fountain receive/send state tables. channel and hopLimit are applied
// to every packet this Transport originates; replies (acks) are sent
// back on the same channel at the same hop limit.
func New(driver radio.Driver, sessions *fountain.SessionTable, pending *fountain.PendingTable, channel, hopLimit uint32, log *slog.Logger) *Transport {
	return &Transport{driver: driver, sessions: sessions, pending: pending, channel: channel, hopLimit: hopLimit, log: log}
}

// SendEvent compresses and transmits ev to dest, choosing between a
// direct single-packet send and fountain coding based on the compressed
// size against fountain.Threshold.
func (t *Transport) SendEvent(ctx context.Context, ev cot.Event, dest uint32) error {
	wire, err := cot.Marshal(ev)
	if err != nil {
		return fmt.Errorf("transport: marshal event: %w", err)
	}
	compressed, err := zlibcodec.Compress(wire)
	if err != nil {
		return fmt.Errorf("transport: compress: %w", err)
	}

	framed := append([]byte{fountain.TypeCoT}, compressed...)

	if len(framed) < fountain.Threshold {
		return t.driver.Send(ctx, dest, radio.PortForwarder, t.channel, t.hopLimit, framed)
	}
	return t.sendFountain(ctx, dest, framed)
}

func (t *Transport) sendFountain(ctx context.Context, dest uint32, payload []byte) error {
	transferID, err := fountain.NewTransferID()
	if err != nil {
		return fmt.Errorf("transport: generate transfer id: %w", err)
	}
	blocks := fountain.Encode(transferID, payload)

	t.pending.Add(&fountain.PendingTransfer{
		TransferID: transferID,
		Blocks:     blocks,
		HashPrefix: fountain.CompletionHash(payload),
		SentAt:     time.Now(),
	})

	for i, b := range blocks {
		if err := t.driver.Send(ctx, dest, radio.PortForwarder, t.channel, t.hopLimit, fountain.EncodeDataBlock(b)); err != nil {
			return fmt.Errorf("transport: send block %d/%d: %w", i, len(blocks), err)
		}
		if i < len(blocks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interPacketDelay):
			}
		}
	}
	return nil
}

// HandleInbound processes one received forwarder-port packet: ACKs
// update pending-transfer bookkeeping, fountain data blocks are fed to
// the session table and, once complete, decompressed and decoded; small
// payloads sent without fountain coding are decoded directly. onEvent
// is called with each successfully decoded CoT event.
func (t *Transport) HandleInbound(ctx context.Context, pkt radio.Packet, onEvent func(cot.Event)) {
	switch {
	case fountain.IsACK(pkt.Payload):
		t.handleACK(pkt.Payload)
	case fountain.IsPacket(pkt.Payload):
		t.handleDataBlock(ctx, pkt, onEvent)
	default:
		t.handleDirect(pkt.Payload, onEvent)
	}
}

func (t *Transport) handleACK(data []byte) {
	ack, err := fountain.DecodeACK(data)
	if err != nil {
		t.log.Warn("dropping malformed ack", "error", err)
		return
	}
	if ack.Type == fountain.TypeAckComplete {
		t.pending.Remove(ack.TransferID)
	}
	// TypeAckNeedMore is not acted on: no further blocks are sent, so a
	// transfer whose coded blocks do not admit a full peeling schedule
	// stays incomplete at the receiver.
}

func (t *Transport) handleDataBlock(ctx context.Context, pkt radio.Packet, onEvent func(cot.Event)) {
	block, err := fountain.DecodeDataBlock(pkt.Payload)
	if err != nil {
		t.log.Warn("dropping malformed data block", "error", err)
		return
	}

	payload, received, complete := t.sessions.AddBlock(block)
	if !complete {
		return
	}

	hash := fountain.CompletionHash(payload)
	go fountain.EmitCompleteACK(ctx, block.TransferID, received, hash, func(frame []byte) {
		if err := t.driver.Send(ctx, pkt.From, radio.PortForwarder, t.channel, t.hopLimit, frame); err != nil {
			t.log.Warn("failed to send complete ack", "error", err)
		}
	})

	t.decodeFramedPayload(payload, onEvent)
}

func (t *Transport) handleDirect(payload []byte, onEvent func(cot.Event)) {
	t.decodeFramedPayload(payload, onEvent)
}

func (t *Transport) decodeFramedPayload(framed []byte, onEvent func(cot.Event)) {
	if len(framed) == 0 {
		return
	}
	frameType, compressed := framed[0], framed[1:]
	if frameType != fountain.TypeCoT {
		t.log.Warn("dropping non-CoT forwarder payload", "type", frameType)
		return
	}

	wire := zlibcodec.DecompressOrRaw(compressed)
	ev, err := cot.Unmarshal(wire)
	if err != nil {
		t.log.Warn("dropping undecodable forwarder payload", "error", err)
		return
	}
	onEvent(ev)
}
