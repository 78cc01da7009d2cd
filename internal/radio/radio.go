// Package radio defines the narrow interface the gateway uses to talk
// to a Meshtastic device, independent of how that device is attached
// (USB serial, TCP, BLE). The physical transport itself is outside this
// module's scope: spec.md treats the radio link as an external
// boundary, so this package only has to describe the contract a driver
// must satisfy and the port/addressing conventions both sides agree on.
//
// Grounded on the teacher's builtin/meshtastic/radio.go Radio type
// (Send/Recv shape, port-addressed packets), generalized from one
// concrete USB-serial implementation into an interface so the gateway
// core doesn't depend on a specific transport.
package radio

import "context"

// Port numbers used to route mesh packets to the right payload
// interpretation, per spec.md's transport classification.
const (
	// PortPlugin carries compact-binary PLI and chat records.
	PortPlugin = 72
	// PortForwarder carries generic CoT traffic (fountain-coded or
	// direct), per spec.md's forwarder-port pipeline.
	PortForwarder = 257
)

// BroadcastAddress is the mesh-wide broadcast destination.
const BroadcastAddress uint32 = 0xFFFFFFFF

// Packet is one mesh packet, already demultiplexed to its application
// port.
type Packet struct {
	From     uint32
	To       uint32
	Port     uint32
	Channel  uint32
	HopLimit uint32
	Payload  []byte
}

// Driver is the contract a Meshtastic transport implementation must
// satisfy: send a packet to a destination node on a port, and deliver
// received packets to a caller-supplied handler until ctx is canceled.
type Driver interface {
	// Send transmits payload to dest on port over channel, relayed at
	// most hopLimit times. dest may be BroadcastAddress.
	Send(ctx context.Context, dest, port, channel, hopLimit uint32, payload []byte) error

	// Listen blocks, invoking onPacket for every packet received on any
	// port, until ctx is canceled or an unrecoverable transport error
	// occurs.
	Listen(ctx context.Context, onPacket func(Packet)) error

	// NodeID reports this device's own mesh node id, used to recognize
	// loopback/self-originated traffic.
	NodeID() uint32

	// Close releases the underlying transport.
	Close() error
}
