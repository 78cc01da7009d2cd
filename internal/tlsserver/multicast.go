package tlsserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
)

// DefaultMulticastAddress is the SA multicast group/port ATAK listens
// on for CoT without a stream connection.
const DefaultMulticastAddress = "239.2.3.1:6969"

// MulticastBroadcaster writes every outbound CoT event to a UDP
// multicast group, alongside (never instead of) the mTLS listener.
//
// Grounded on the teacher's builtin/tak/controller.go
// runMulticastBroadcaster dial/write idiom.
type MulticastBroadcaster struct {
	addr string
	log  *slog.Logger
}

// NewMulticastBroadcaster constructs a broadcaster targeting addr.
func NewMulticastBroadcaster(addr string, log *slog.Logger) *MulticastBroadcaster {
	return &MulticastBroadcaster{addr: addr, log: log}
}

// Run dials the multicast group and forwards every event read from
// events until ctx is canceled.
func (b *MulticastBroadcaster) Run(ctx context.Context, events <-chan cot.Event) error {
	multicastAddr, err := net.ResolveUDPAddr("udp", b.addr)
	if err != nil {
		return fmt.Errorf("tlsserver: resolve multicast address: %w", err)
	}
	localAddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("tlsserver: resolve local address: %w", err)
	}
	conn, err := net.DialUDP("udp", localAddr, multicastAddr)
	if err != nil {
		return fmt.Errorf("tlsserver: dial multicast: %w", err)
	}
	defer conn.Close()

	b.log.Info("multicast broadcaster started", "local", conn.LocalAddr(), "group", b.addr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			wire, err := cot.Marshal(ev)
			if err != nil {
				b.log.Warn("marshal failed, dropping from multicast", "error", err)
				continue
			}
			if _, err := conn.Write(wire); err != nil {
				b.log.Warn("multicast write failed", "error", err)
			}
		}
	}
}
