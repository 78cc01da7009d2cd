package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// TCPDriver is the Driver implementation gatewayctl ships out of the
// box: it frames Packet values over a plain TCP connection to a
// companion process (or test harness) that owns the actual radio
// hardware. Real USB/BLE Meshtastic hardware is expected to sit behind
// its own Driver implementation speaking the device's native
// serial/BLE protocol; this module only has to agree on Packet, not on
// how a given deployment gets bytes to the physical radio.
//
// Framing, grounded on the teacher's builtin/meshtastic/radio.go
// Send/Recv (fixed two-byte sync marker + big-endian length prefix),
// generalized to Packet instead of meshpb.ToRadio/FromRadio, since the
// teacher's wire format is tied to a private protobuf schema this
// module doesn't have.
type TCPDriver struct {
	conn   net.Conn
	nodeID uint32

	writeMu sync.Mutex
}

const (
	tcpSync1      = 0xA5
	tcpSync2      = 0x5A
	tcpHeaderSize = 4 // sync1, sync2, length high, length low
	tcpMaxFrame   = 1 << 16
)

// DialTCP connects to addr and performs no handshake beyond the
// framing itself; nodeID is this gateway's own mesh identity, used to
// recognize loopback traffic the same way NodeID() does for callers.
func DialTCP(addr string, nodeID uint32) (*TCPDriver, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("radio: dial %s: %w", addr, err)
	}
	return &TCPDriver{conn: conn, nodeID: nodeID}, nil
}

// NodeID returns the configured local node id.
func (d *TCPDriver) NodeID() uint32 { return d.nodeID }

// Send frames and writes one packet.
func (d *TCPDriver) Send(_ context.Context, dest, port, channel, hopLimit uint32, payload []byte) error {
	return d.send(dest, port, channel, hopLimit, payload)
}

func (d *TCPDriver) send(dest, port, channel, hopLimit uint32, payload []byte) error {
	body := make([]byte, 4+4+4+4+4+len(payload))
	binary.BigEndian.PutUint32(body[0:4], d.nodeID)
	binary.BigEndian.PutUint32(body[4:8], dest)
	binary.BigEndian.PutUint32(body[8:12], port)
	binary.BigEndian.PutUint32(body[12:16], channel)
	binary.BigEndian.PutUint32(body[16:20], hopLimit)
	copy(body[20:], payload)

	if len(body) > tcpMaxFrame {
		return fmt.Errorf("radio: frame too large: %d bytes", len(body))
	}

	frame := make([]byte, tcpHeaderSize+len(body))
	frame[0] = tcpSync1
	frame[1] = tcpSync2
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(body)))
	copy(frame[tcpHeaderSize:], body)

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.conn.Write(frame)
	return err
}

// Listen reads frames until ctx is canceled or the connection fails.
func (d *TCPDriver) Listen(ctx context.Context, onPacket func(Packet)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = d.conn.Close()
		case <-done:
		}
	}()

	marker := make([]byte, 1)
	for {
		if _, err := io.ReadFull(d.conn, marker); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("radio: read sync: %w", err)
		}
		if marker[0] != tcpSync1 {
			continue
		}
		if _, err := io.ReadFull(d.conn, marker); err != nil {
			return fmt.Errorf("radio: read sync: %w", err)
		}
		if marker[0] != tcpSync2 {
			continue
		}

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(d.conn, lenBuf); err != nil {
			return fmt.Errorf("radio: read length: %w", err)
		}
		n := int(binary.BigEndian.Uint16(lenBuf))
		if n < 20 {
			continue
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(d.conn, body); err != nil {
			return fmt.Errorf("radio: read body: %w", err)
		}

		pkt := Packet{
			From:     binary.BigEndian.Uint32(body[0:4]),
			To:       binary.BigEndian.Uint32(body[4:8]),
			Port:     binary.BigEndian.Uint32(body[8:12]),
			Channel:  binary.BigEndian.Uint32(body[12:16]),
			HopLimit: binary.BigEndian.Uint32(body[16:20]),
			Payload:  body[20:],
		}
		onPacket(pkt)
	}
}

// Close closes the underlying TCP connection.
func (d *TCPDriver) Close() error {
	return d.conn.Close()
}
