package fountain

import (
	"context"
	"time"
)

// EmitCompleteACK sends a Complete ACK twice, completeACKSpacing apart,
// addressed unicast to the sender, per spec.md §4.3 receiver behaviour:
// the first one may be lost on a half-duplex mesh link, so the receiver
// doesn't rely on exactly-once delivery.
//
// send is called synchronously from the caller's goroutine; it should
// return quickly (e.g. enqueue onto a radio write channel) since the
// second send is paced by a real timer, not best-effort scheduling.
func EmitCompleteACK(ctx context.Context, transferID uint32, received int, hash [8]byte, send func([]byte)) {
	ack := EncodeACK(ACK{
		TransferID: transferID,
		Type:       TypeAckComplete,
		Received:   uint16(received),
		Needed:     0,
		HashPrefix: hash,
	})

	send(ack)

	timer := time.NewTimer(completeACKSpacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		send(ack)
	case <-ctx.Done():
	}
}

// NeedMoreACK builds a need-more-blocks ACK reporting how many blocks
// have arrived and how many more the receiver expects to need.
func NeedMoreACK(transferID uint32, received, needed int) []byte {
	return EncodeACK(ACK{
		TransferID: transferID,
		Type:       TypeAckNeedMore,
		Received:   uint16(received),
		Needed:     uint16(needed),
	})
}
