// Package tlsserver implements the mTLS-only, localhost-bound TAK
// protocol listener ATAK clients connect to: certificate-based mutual
// auth, TakProtocolSupport negotiation, periodic keepalives, and a
// broadcast fan-out to every ready connection.
//
// Grounded on the teacher's builtin/tak/controller.go handleClient/Run
// accept-loop-with-retry pattern, generalized from its simple
// ping/pong string matching to the full connection state machine and
// client-certificate trust model spec.md requires.
package tlsserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johntiver92-beep/meshtastic-apple/internal/cot"
)

// ListenAddress is the fixed localhost-only bind address; the gateway
// never exposes this port beyond the local machine.
const ListenAddress = "127.0.0.1:8089"

// KeepaliveInterval is how often a t-x-d-d ping is sent on each
// connection to detect half-open sockets.
const KeepaliveInterval = 30 * time.Second

// State is a connection's position in its setup/ready/teardown lifecycle.
type State int

const (
	StateSetup State = iota
	StatePreparing
	StateReady
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CertAnchors supplies the server's active identity and client trust
// anchors; certstore.Store satisfies this.
type CertAnchors interface {
	ActiveServerIdentity() (tls.Certificate, error)
	ClientCAAnchors() *x509.CertPool
}

// EventHandler is invoked for every complete CoT event a connection
// receives, after protocol-control events have been filtered out.
type EventHandler func(conn *Conn, ev cot.Event)

// Server accepts mTLS connections and fans out CoT events to every
// ready connection.
type Server struct {
	anchors CertAnchors
	onEvent EventHandler
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn

	listener  net.Listener
	multicast chan cot.Event
}

// New constructs a Server. onEvent is called from each connection's own
// goroutine, so it must be safe for concurrent use.
func New(anchors CertAnchors, onEvent EventHandler, log *slog.Logger) *Server {
	return &Server{
		anchors: anchors,
		onEvent: onEvent,
		log:     log,
		conns:   make(map[string]*Conn),
	}
}

// Conn is one accepted TAK client connection.
type Conn struct {
	id    string
	raw   net.Conn
	state State
	mu    sync.Mutex
}

// ID returns the connection's internal identifier, used in log lines
// and metrics labels.
func (c *Conn) ID() string { return c.id }

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// writeEvent marshals and writes a CoT event to this connection. Errors
// are left to the caller to decide whether they are fatal.
func (c *Conn) writeEvent(ev cot.Event) error {
	wire, err := cot.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = c.raw.Write(wire)
	return err
}

// Run starts accepting connections on ListenAddress until ctx is
// canceled. It rejects every client certificate when no client CA
// anchors are configured, per spec.md's "no client CA -> reject all"
// invariant.
func (s *Server) Run(ctx context.Context) error {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetConfigForClient: func(*tls.ClientHelloInfo) (*tls.Config, error) {
			cert, err := s.anchors.ActiveServerIdentity()
			if err != nil {
				return nil, fmt.Errorf("tlsserver: no active server identity: %w", err)
			}
			pool := s.anchors.ClientCAAnchors()
			if pool == nil {
				return nil, errors.New("tlsserver: no client CA configured, rejecting all clients")
			}
			return &tls.Config{
				MinVersion:   tls.VersionTLS12,
				Certificates: []tls.Certificate{cert},
				ClientAuth:   tls.RequireAndVerifyClientCert,
				ClientCAs:    pool,
			}, nil
		},
	}

	ln, err := tls.Listen("tcp", ListenAddress, cfg)
	if err != nil {
		return fmt.Errorf("tlsserver: listen: %w", err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed, retrying", "error", err)
			continue
		}
		conn := &Conn{id: uuid.NewString(), raw: raw, state: StateSetup}
		s.register(conn)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) register(c *Conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// Broadcast sends ev to every ready connection except except (pass ""
// to exclude none).
func (s *Server) Broadcast(ev cot.Event, except string) {
	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for id, c := range s.conns {
		if id == except || c.State() != StateReady {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.writeEvent(ev); err != nil {
			s.log.Warn("broadcast write failed", "conn", c.id, "error", err)
		}
	}

	if s.multicast != nil {
		select {
		case s.multicast <- ev:
		default:
			s.log.Warn("multicast channel full, dropping event")
		}
	}
}

// EnableMulticast returns a channel fed with every event Broadcast
// sends, for a MulticastBroadcaster to relay over UDP. Must be called
// before Run starts accepting traffic.
func (s *Server) EnableMulticast(buffer int) <-chan cot.Event {
	s.multicast = make(chan cot.Event, buffer)
	return s.multicast
}

func (s *Server) handleConn(ctx context.Context, c *Conn) {
	defer s.unregister(c)
	defer c.raw.Close()

	c.setState(StatePreparing)
	log := s.log.With("conn", c.id, "remote", c.raw.RemoteAddr())
	log.Info("client connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.keepaliveLoop(connCtx, c)

	c.setState(StateReady)
	support := cot.Event{
		Type: "t-x-takp-v",
		UID:  c.id,
		Detail: cot.Detail{
			TakProtocolSupport: &cot.TakProtocolSupport{Version: "0"},
		},
	}
	if err := c.writeEvent(support); err != nil {
		c.setState(StateFailed)
		log.Info("connection closed", "error", err)
		return
	}

	reader := cot.NewReader(c.raw)
	for {
		raw, err := reader.Next()
		if err != nil {
			c.setState(StateFailed)
			if !errors.Is(err, context.Canceled) {
				log.Info("connection closed", "error", err)
			}
			return
		}

		ev, err := cot.Unmarshal(raw)
		if err != nil {
			log.Warn("dropping malformed event", "error", err)
			continue
		}

		if isProtocolControl(ev) {
			s.handleProtocolControl(c, ev)
			continue
		}

		if s.onEvent != nil {
			s.onEvent(c, ev)
		}
	}
}

func (s *Server) keepaliveLoop(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() != StateReady {
				return
			}
			ping := cot.Event{Type: "t-x-d-d", UID: "takPong"}
			if err := c.writeEvent(ping); err != nil {
				return
			}
		}
	}
}

// isProtocolControl reports whether ev is a TakProtocolSupport
// negotiation message (t-x-takp-*) that the server consumes itself
// rather than forwarding to the bridge.
func isProtocolControl(ev cot.Event) bool {
	switch ev.Type {
	case "t-x-takp-v", "t-x-takp-q", "t-x-takp-r", "t-x-d-d":
		return true
	default:
		return false
	}
}

func (s *Server) handleProtocolControl(c *Conn, ev cot.Event) {
	switch ev.Type {
	case "t-x-takp-q":
		// Client queries supported protocol versions; respond that we
		// only ever speak XML protocol version 0.
		resp := cot.Event{
			Type: "t-x-takp-r",
			UID:  c.id,
			Detail: cot.Detail{
				TakResponse: &cot.TakResponse{Status: true},
			},
		}
		_ = c.writeEvent(resp)
	case "t-x-takp-v", "t-x-d-d":
		// Version announce / keepalive pong: nothing to do but note
		// liveness, already implicit in having received any event.
	}
}
