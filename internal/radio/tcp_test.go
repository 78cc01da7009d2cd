package radio

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPDriverSendRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sender := &TCPDriver{conn: client, nodeID: 0x11111111}

	received := make(chan Packet, 1)
	go func() {
		receiver := &TCPDriver{conn: server, nodeID: 0x22222222}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = receiver.Listen(ctx, func(p Packet) { received <- p })
	}()

	if err := sender.Send(context.Background(), BroadcastAddress, PortPlugin, 0, 3, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case pkt := <-received:
		if pkt.From != 0x11111111 || pkt.To != BroadcastAddress || pkt.Port != PortPlugin {
			t.Fatalf("unexpected packet: %+v", pkt)
		}
		if string(pkt.Payload) != "hello" {
			t.Fatalf("payload = %q, want hello", pkt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestTCPDriverListenStopsOnContextCancel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	receiver := &TCPDriver{conn: server, nodeID: 1}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- receiver.Listen(ctx, func(Packet) {}) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Listen to return an error after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}
}
