// Package core wires every gateway component together: the mTLS TAK
// listener, the Meshtastic radio driver, the fountain/forwarder
// transport, the CoT<->compact bridge and the certificate store.
//
// Grounded on the teacher's builtin/cmd.go Register/StartAll
// restart-with-backoff supervision idiom (itself tied to hydris's
// private bufconn/grpc plumbing, which this module does not carry
// over) and builtin/meshtastic/bridge.go runInstance's config/radio
// wiring style, generalized to spec.md's single self-contained Core
// design (§9 Design Notes) instead of hydris's multi-controller entity
// engine.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/johntiver92-beep/meshtastic-apple/internal/bridge"
	"github.com/johntiver92-beep/meshtastic-apple/internal/certstore"
	"github.com/johntiver92-beep/meshtastic-apple/internal/compact"
	"github.com/johntiver92-beep/meshtastic-apple/internal/config"
	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
	"github.com/johntiver92-beep/meshtastic-apple/internal/fountain"
	"github.com/johntiver92-beep/meshtastic-apple/internal/logging"
	"github.com/johntiver92-beep/meshtastic-apple/internal/metrics"
	"github.com/johntiver92-beep/meshtastic-apple/internal/radio"
	"github.com/johntiver92-beep/meshtastic-apple/internal/tlsserver"
	"github.com/johntiver92-beep/meshtastic-apple/internal/transport"
)

// Core owns every long-lived component and the single-writer state
// (directory, fountain tables) they share.
type Core struct {
	cfg       *config.Config
	certs     *certstore.Store
	driver    radio.Driver
	dir       *bridge.Directory
	sessions  *fountain.SessionTable
	pending   *fountain.PendingTable
	transport *transport.Transport
	server    *tlsserver.Server
	metrics   *metrics.Metrics
	channel   uint32
	hopLimit  uint32
	log       *slog.Logger
}

// New wires every component from cfg and driver. reg receives the
// Prometheus collectors.
func New(cfg *config.Config, driver radio.Driver, reg prometheus.Registerer) (*Core, error) {
	certs, err := certstore.Open(cfg.CertDir)
	if err != nil {
		return nil, fmt.Errorf("core: open cert store: %w", err)
	}

	sessions, err := fountain.NewSessionTable(256)
	if err != nil {
		return nil, fmt.Errorf("core: new session table: %w", err)
	}

	m := metrics.New(reg)
	dir := bridge.NewDirectory()
	pending := fountain.NewPendingTable()
	log := logging.For("core")

	channel, hopLimit := uint32(cfg.DefaultChannel), uint32(cfg.HopLimit)
	tr := transport.New(driver, sessions, pending, channel, hopLimit, logging.For("transport"))

	c := &Core{
		cfg:       cfg,
		certs:     certs,
		driver:    driver,
		dir:       dir,
		sessions:  sessions,
		pending:   pending,
		transport: tr,
		metrics:   m,
		channel:   channel,
		hopLimit:  hopLimit,
		log:       log,
	}

	c.server = tlsserver.New(certs, c.handleTAKEvent, logging.For("tlsserver"))
	return c, nil
}

// EnableMulticast turns on UDP multicast relay of every outbound CoT
// event, returning the channel a MulticastBroadcaster should consume.
// Must be called before Run.
func (c *Core) EnableMulticast(buffer int) <-chan cot.Event {
	return c.server.EnableMulticast(buffer)
}

// Run starts the TLS listener and the radio receive loop, restarting
// the radio loop with backoff if it exits early (a detached USB radio
// shouldn't take the whole gateway down), until ctx is canceled.
//
// Grounded on builtin/cmd.go's restart-with-backoff pattern, reimplemented
// locally since that file's Register/StartAll machinery is tied to a
// private bufconn/grpc registry this module does not use.
func (c *Core) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.server.Run(ctx)
	})

	g.Go(func() error {
		return supervise(ctx, c.log, "radio-listen", func() error {
			return c.driver.Listen(ctx, c.handleMeshPacket)
		})
	})

	return g.Wait()
}

// supervise runs fn, restarting it with exponential backoff (capped at
// 30s) whenever it returns a non-nil error and ctx is still live.
func supervise(ctx context.Context, log *slog.Logger, name string, fn func() error) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := fn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		log.Warn("component exited, restarting", "component", name, "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// handleTAKEvent is invoked by the TLS server for every non-protocol-control
// event a TAK client sends, translating it to the mesh-side wire format
// and transmitting it.
func (c *Core) handleTAKEvent(conn *tlsserver.Conn, ev cot.Event) {
	ctx := context.Background()

	if ev.Detail.Chat != nil {
		c.handleOutboundChat(ctx, ev)
		return
	}

	if pli, ok := bridge.CoTToPLI(ev, deviceUIDForEvent(ev)); ok {
		wire, err := compact.EncodePLI(pli)
		if err == nil {
			_ = c.driver.Send(ctx, radio.BroadcastAddress, radio.PortPlugin, c.channel, c.hopLimit, wire)
			c.metrics.EventsBridgedTotal.WithLabelValues("outbound").Inc()
			return
		}
	}

	if err := c.transport.SendEvent(ctx, ev, radio.BroadcastAddress); err != nil {
		c.log.Warn("failed to forward event to mesh", "error", err)
		c.metrics.EventsDroppedTotal.WithLabelValues("send-error").Inc()
		return
	}
	c.metrics.EventsBridgedTotal.WithLabelValues("outbound").Inc()
}

func (c *Core) handleOutboundChat(ctx context.Context, ev cot.Event) {
	if rr, ok := bridge.ParseReadReceipt(receiptText(ev)); ok {
		c.log.Debug("intercepted read receipt, not forwarding", "delivered", rr.Delivered, "msg_id", rr.MessageID)
		return
	}

	chat, ok := bridge.CoTToChat(ev, c.dir)
	if !ok {
		c.metrics.EventsDroppedTotal.WithLabelValues("unrecognized-chat").Inc()
		return
	}
	wire, err := compact.EncodeChat(chat)
	if err != nil {
		c.metrics.EventsDroppedTotal.WithLabelValues("encode-error").Inc()
		return
	}
	if err := c.driver.Send(ctx, radio.BroadcastAddress, radio.PortPlugin, c.channel, c.hopLimit, wire); err != nil {
		c.log.Warn("failed to send chat to mesh", "error", err)
		return
	}
	c.metrics.EventsBridgedTotal.WithLabelValues("outbound").Inc()
}

func receiptText(ev cot.Event) string {
	if ev.Detail.Remarks == nil {
		return ""
	}
	return ev.Detail.Remarks.Text
}

func deviceUIDForEvent(ev cot.Event) string {
	return ev.UID
}

// handleMeshPacket is invoked by the radio driver for every received
// mesh packet, translating plugin-port compact records and
// forwarder-port CoT traffic into CoT events broadcast to TAK clients.
func (c *Core) handleMeshPacket(pkt radio.Packet) {
	switch bridge.Classify(pkt) {
	case bridge.KindPluginRecord:
		c.handlePluginRecord(pkt)
	case bridge.KindForwarderACK, bridge.KindForwarderDataBlock, bridge.KindForwarderDirect:
		c.transport.HandleInbound(context.Background(), pkt, func(ev cot.Event) {
			c.server.Broadcast(ev, "")
			c.metrics.EventsBridgedTotal.WithLabelValues("inbound").Inc()
		})
	default:
		c.metrics.EventsDroppedTotal.WithLabelValues("unknown-port").Inc()
	}
}

func (c *Core) handlePluginRecord(pkt radio.Packet) {
	rt, err := compact.RecordTypeOf(pkt.Payload)
	if err != nil {
		c.metrics.EventsDroppedTotal.WithLabelValues("empty-record").Inc()
		return
	}

	switch rt {
	case compact.TypePLI:
		pli, err := compact.DecodePLI(pkt.Payload)
		if err != nil {
			c.metrics.EventsDroppedTotal.WithLabelValues("malformed-pli").Inc()
			return
		}
		c.dir.Learn(pli.Callsign, pli.DeviceUID)
		ev := bridge.PLIToCoT(pli, c.dir)
		c.server.Broadcast(ev, "")
		c.metrics.EventsBridgedTotal.WithLabelValues("inbound").Inc()
	case compact.TypeChat:
		chat, err := compact.DecodeChat(pkt.Payload)
		if err != nil {
			c.metrics.EventsDroppedTotal.WithLabelValues("malformed-chat").Inc()
			return
		}
		ev := bridge.ChatToCoT(chat, c.dir)
		c.server.Broadcast(ev, "")
		c.metrics.EventsBridgedTotal.WithLabelValues("inbound").Inc()
	case compact.TypeStatus:
		status, err := compact.DecodeStatus(pkt.Payload)
		if err != nil {
			c.metrics.EventsDroppedTotal.WithLabelValues("malformed-status").Inc()
			return
		}
		c.dir.Learn(status.Callsign, status.DeviceUID)
		ev := bridge.StatusToCoT(status, c.dir)
		c.server.Broadcast(ev, "")
		c.metrics.EventsBridgedTotal.WithLabelValues("inbound").Inc()
	default:
		c.metrics.EventsDroppedTotal.WithLabelValues("unknown-record-type").Inc()
	}
}

// Close releases every owned resource.
func (c *Core) Close() error {
	c.sessions.Close()
	return c.certs.Close()
}
