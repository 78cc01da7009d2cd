package bridge

import (
	"github.com/johntiver92-beep/meshtastic-apple/internal/fountain"
	"github.com/johntiver92-beep/meshtastic-apple/internal/radio"
)

// TransportKind classifies an inbound mesh packet by how it must be
// decoded before it can be bridged.
type TransportKind int

const (
	// KindUnknown is an unrecognized port; the packet is dropped.
	KindUnknown TransportKind = iota
	// KindPluginRecord is a compact-binary PLI or chat record on the
	// plugin port.
	KindPluginRecord
	// KindForwarderACK is a fountain ACK frame on the forwarder port.
	KindForwarderACK
	// KindForwarderDataBlock is a fountain-coded data block on the
	// forwarder port.
	KindForwarderDataBlock
	// KindForwarderDirect is a small enough CoT payload sent without
	// fountain coding on the forwarder port.
	KindForwarderDirect
)

// Classify routes an inbound packet to the pipeline that can decode it,
// per spec.md §4.8's four-way transport routing table.
func Classify(pkt radio.Packet) TransportKind {
	switch pkt.Port {
	case radio.PortPlugin:
		return KindPluginRecord
	case radio.PortForwarder:
		switch {
		case fountain.IsACK(pkt.Payload):
			return KindForwarderACK
		case fountain.IsPacket(pkt.Payload):
			return KindForwarderDataBlock
		default:
			return KindForwarderDirect
		}
	default:
		return KindUnknown
	}
}
