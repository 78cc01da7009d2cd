package fountain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// receiveExpiry is how long an in-progress receive state survives
// without completing before it is discarded, per spec.md §4.3.
const receiveExpiry = 60 * time.Second

// ACK-pair spacing: the receiver fires its Complete ACK twice, 50ms
// apart, to guard against the first one being lost on a lossy link.
const completeACKSpacing = 50 * time.Millisecond

// receiveState tracks one in-flight transfer's decoder plus the wall
// time it was created, so expiry is computed from creation rather than
// last-touch (otter's own TTL is a capacity backstop, not the source of
// truth for the 60s rule).
type receiveState struct {
	decoder   *Decoder
	createdAt time.Time
}

// SessionTable holds receive state for in-flight fountain transfers,
// keyed by transfer id. Safe for concurrent use from the single
// coordinator goroutine and any worker goroutines that hand it packets.
//
// Grounded on the teacher's ftnReassembler (builtin/meshtastic/fountain.go),
// generalized to use an otter TTL cache as the backing store per
// SPEC_FULL.md's domain-stack wiring instead of a map with a manual
// sweep goroutine.
type SessionTable struct {
	mu    sync.Mutex
	cache otter.Cache[uint32, *receiveState]
}

// NewSessionTable builds a session table capped at capacity in-flight
// transfers, each backstopped by a generous otter TTL well beyond the
// 60s rule enforced explicitly in code.
func NewSessionTable(capacity int) (*SessionTable, error) {
	cache, err := otter.MustBuilder[uint32, *receiveState](capacity).
		WithTTL(5 * time.Minute).
		Build()
	if err != nil {
		return nil, err
	}
	return &SessionTable{cache: cache}, nil
}

// AddBlock routes a received data block to the session for its transfer
// id, creating one if this is the first block seen for that transfer.
// It returns the reassembled payload, the number of distinct blocks
// seen for the transfer, and true once the transfer completes, after
// garbage-collecting any session that has expired.
func (t *SessionTable) AddBlock(block DataBlock) (payload []byte, received int, complete bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked()

	st, ok := t.cache.Get(block.TransferID)
	if !ok {
		st = &receiveState{
			decoder:   NewDecoder(int(block.K), int(block.TotalLength)),
			createdAt: time.Now(),
		}
		t.cache.Set(block.TransferID, st)
	}

	out, done := st.decoder.AddBlock(block.TransferID, block)
	received = st.decoder.BlocksReceived()
	if done {
		t.cache.Delete(block.TransferID)
	}
	return out, received, done
}

// Received reports how many distinct blocks a transfer has seen so far,
// used to populate a need-more-blocks ACK.
func (t *SessionTable) Received(transferID uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.cache.Get(transferID)
	if !ok {
		return 0
	}
	return st.decoder.BlocksReceived()
}

// expireLocked drops any session older than receiveExpiry. Called on
// every packet arrival per spec.md's "garbage-collected on any packet
// arrival" rule; t.mu must already be held.
func (t *SessionTable) expireLocked() {
	now := time.Now()
	var stale []uint32
	t.cache.Range(func(transferID uint32, st *receiveState) bool {
		if now.Sub(st.createdAt) > receiveExpiry {
			stale = append(stale, transferID)
		}
		return true
	})
	for _, id := range stale {
		t.cache.Delete(id)
	}
}

// Close releases the session table's background resources.
func (t *SessionTable) Close() {
	t.cache.Close()
}

// CompletionHash computes the SHA-256 prefix(8) of a reassembled payload
// carried in a Complete ACK so the sender can verify the receiver
// reconstructed the identical bytes.
func CompletionHash(payload []byte) [8]byte {
	sum := sha256.Sum256(payload)
	var prefix [8]byte
	copy(prefix[:], sum[:8])
	return prefix
}

// NewTransferID draws a fresh 24-bit transfer id from a cryptographic
// random source combined with the current wall clock, per spec.md's
// (random_u24 XOR (unix_epoch_secs & 0xFFFF)) & 0xFFFFFF derivation.
func NewTransferID() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:3]); err != nil {
		return 0, err
	}
	randomU24 := binary.BigEndian.Uint32(buf[:]) >> 8
	return GenerateTransferID(randomU24, time.Now().Unix()), nil
}

// PendingTransfer is send-side bookkeeping for a transfer awaiting
// acknowledgement: the blocks already sent and the hash the receiver
// should report back on completion.
type PendingTransfer struct {
	TransferID uint32
	Blocks     []DataBlock
	HashPrefix [8]byte
	SentAt     time.Time
}

// PendingTable tracks outbound transfers until their Complete ACK
// arrives or they are abandoned. Owned single-writer by the coordinator,
// same as the teacher's sender-side bookkeeping; the mutex only guards
// against ACK-handling goroutines reading concurrently.
type PendingTable struct {
	mu    sync.Mutex
	table map[uint32]*PendingTransfer
}

// NewPendingTable constructs an empty pending-transfer table.
func NewPendingTable() *PendingTable {
	return &PendingTable{table: make(map[uint32]*PendingTransfer)}
}

// Add registers a newly sent transfer.
func (p *PendingTable) Add(pt *PendingTransfer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table[pt.TransferID] = pt
}

// Get looks up a pending transfer by id.
func (p *PendingTable) Get(transferID uint32) (*PendingTransfer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt, ok := p.table[transferID]
	return pt, ok
}

// Remove drops a transfer once it completes or is abandoned.
func (p *PendingTable) Remove(transferID uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.table, transferID)
}
