// Package certstore is the facade the gateway uses to obtain its active
// TLS server identity and client-CA trust anchors, and to export
// onboarding bundles for new ATAK clients. It hot-reloads whenever the
// underlying key material changes on disk.
//
// Grounded on the teacher's TLS usage in builtin/tak/controller.go
// (which loads a static cert at startup) generalized to the watched,
// swappable identity spec.md requires, plus the PEM-bundle parsing
// style of _examples/facebook-time/calnex/cert/cert.go (Bundle/Fetch/Parse)
// and the self-signed cert generation style of
// _examples/rustyguts-bken/server/tls.go for the test fixtures below.
package certstore

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/pkcs12"
)

// Kind classifies a certstore error so callers can distinguish "no
// trust configured" (reject all clients) from an actual I/O failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotConfigured
	KindIO
	KindParse
)

// Error wraps an underlying error with a Kind so callers can branch on
// certstore.Kind without string-matching messages.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("certstore: %s", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// identity is the immutable snapshot of loaded key material, swapped
// atomically on reload.
type identity struct {
	server   tls.Certificate
	serverOK bool
	clientCA *x509.CertPool
}

// Store watches a directory for server.crt/server.key and ca.crt,
// exposing the current identity and anchors, and reloading whenever
// fsnotify reports a change.
type Store struct {
	dir     string
	current atomic.Pointer[identity]
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Open loads the initial identity from dir and starts a background
// watcher that reloads on any write/create/rename event in dir.
func Open(dir string) (*Store, error) {
	s := &Store{dir: dir, done: make(chan struct{})}
	if err := s.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, wrapErr(KindIO, err)
	}
	s.watcher = w

	go s.watchLoop()
	return s, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				_ = s.reload()
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) reload() error {
	next := &identity{}

	certPath := filepath.Join(s.dir, "server.crt")
	keyPath := filepath.Join(s.dir, "server.key")
	if _, err := os.Stat(certPath); err == nil {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return wrapErr(KindParse, fmt.Errorf("load server identity: %w", err))
		}
		next.server = cert
		next.serverOK = true
	}

	caPath := filepath.Join(s.dir, "ca.crt")
	if data, err := os.ReadFile(caPath); err == nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return wrapErr(KindParse, fmt.Errorf("no valid certificates in %s", caPath))
		}
		next.clientCA = pool
	}

	s.current.Store(next)
	return nil
}

// ActiveServerIdentity returns the current TLS server certificate. It
// returns a KindNotConfigured error if no server.crt/server.key pair
// has been loaded.
func (s *Store) ActiveServerIdentity() (tls.Certificate, error) {
	id := s.current.Load()
	if id == nil || !id.serverOK {
		return tls.Certificate{}, wrapErr(KindNotConfigured, errors.New("no server identity configured"))
	}
	return id.server, nil
}

// ClientCAAnchors returns the current client-CA trust pool, or nil if
// none is configured, in which case the TLS server must reject every
// client certificate per spec.md's "no client CA => reject all" rule.
func (s *Store) ClientCAAnchors() *x509.CertPool {
	id := s.current.Load()
	if id == nil {
		return nil
	}
	return id.clientCA
}

// ExportServerP12 bundles the active server identity into a PKCS#12
// file protected by password, for onboarding a new TAK client.
func ExportServerP12(cert tls.Certificate, password string) ([]byte, error) {
	if len(cert.Certificate) == 0 {
		return nil, wrapErr(KindNotConfigured, errors.New("no certificate to export"))
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, wrapErr(KindParse, err)
	}
	var caCerts []*x509.Certificate
	for _, der := range cert.Certificate[1:] {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, wrapErr(KindParse, err)
		}
		caCerts = append(caCerts, c)
	}
	data, err := pkcs12.Modern.Encode(rand.Reader, cert.PrivateKey, leaf, caCerts, password)
	if err != nil {
		return nil, wrapErr(KindIO, err)
	}
	return data, nil
}

// Close stops the background watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
