// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/tangleware/autopeerd/identity"
)

// Metrics tracks per-peer verification statistics.  Values are copied out of
// the active list under its lock, so a Metrics value never aliases live
// list state.
type Metrics struct {
	// VerifiedCount is the number of successful verifications since the
	// peer was added (or re-added after an entry node eviction).
	VerifiedCount uint32

	// LastVerifRequest is the time the last verification request from this
	// peer was received.
	LastVerifRequest time.Time

	// LastVerifResponse is the time the last valid verification response
	// from this peer was received.
	LastVerifResponse time.Time

	// LastNewPeers is the number of previously unknown peers the last
	// discovery response from this peer contained.
	LastNewPeers int
}

// activeEntry pairs a peer with its metrics inside the active list.
type activeEntry struct {
	peer    *Peer
	metrics Metrics
}

// ActiveList is a bounded, insertion-ordered collection of peers that are
// currently participating in verification and discovery.  The most recently
// verified peer is kept at the front, which is what re-verification
// scheduling and random sampling fairness rely on.
//
// All methods are safe for concurrent access.  Mutating methods return plain
// values rather than references into the list so no lock is ever held by a
// caller.
type ActiveList struct {
	mtx      sync.RWMutex
	capacity int
	entries  []*activeEntry
}

// NewActiveList returns an empty active list with the given capacity.
func NewActiveList(capacity int) *ActiveList {
	return &ActiveList{
		capacity: capacity,
		entries:  make([]*activeEntry, 0, capacity),
	}
}

// index returns the position of the given identity or -1.  It must be called
// with the lock held.
func (l *ActiveList) index(id identity.PeerID) int {
	for i, e := range l.entries {
		if e.peer.id == id {
			return i
		}
	}
	return -1
}

// Len returns the number of peers in the list.
func (l *ActiveList) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.entries)
}

// IsFull returns whether the list is at capacity.  Callers must check this
// before Insert and redirect the peer to the replacement list when full.
func (l *ActiveList) IsFull() bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.entries) >= l.capacity
}

// Contains returns whether a peer with the given identity is in the list.
func (l *ActiveList) Contains(id identity.PeerID) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.index(id) != -1
}

// Insert adds a peer to the back of the list with zeroed metrics.  It
// returns false when a peer with the same identity is already present.
//
// Inserting into a full list is a violation of the caller's capacity check
// contract and panics.
func (l *ActiveList) Insert(p *Peer) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.index(p.id) != -1 {
		return false
	}
	if len(l.entries) >= l.capacity {
		panic(fmt.Sprintf("insert into full active list (capacity %d)",
			l.capacity))
	}
	l.entries = append(l.entries, &activeEntry{peer: p})
	return true
}

// InsertIfRoom atomically checks capacity and adds the peer to the back of
// the list with zeroed metrics.  It returns false when the peer is already
// present or the list is full.
func (l *ActiveList) InsertIfRoom(p *Peer) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.index(p.id) != -1 || len(l.entries) >= l.capacity {
		return false
	}
	l.entries = append(l.entries, &activeEntry{peer: p})
	return true
}

// Reinsert zeroes the metrics of the peer with the given identity and moves
// it to the back of the list.  The effect is identical to removing the peer
// and immediately inserting it again, which is the pinning behavior applied
// to entry nodes on eviction.
func (l *ActiveList) Reinsert(id identity.PeerID) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return false
	}
	e := l.entries[i]
	e.metrics = Metrics{}
	copy(l.entries[i:], l.entries[i+1:])
	l.entries[len(l.entries)-1] = e
	return true
}

// Remove removes the peer with the given identity and returns it together
// with its metrics at the time of removal.
func (l *ActiveList) Remove(id identity.PeerID) (*Peer, Metrics, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return nil, Metrics{}, false
	}
	e := l.entries[i]
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return e.peer, e.metrics, true
}

// Peer returns the peer with the given identity.
func (l *ActiveList) Peer(id identity.PeerID) (*Peer, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	i := l.index(id)
	if i == -1 {
		return nil, false
	}
	return l.entries[i].peer, true
}

// Metrics returns a copy of the metrics of the peer with the given identity.
func (l *ActiveList) Metrics(id identity.PeerID) (Metrics, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	i := l.index(id)
	if i == -1 {
		return Metrics{}, false
	}
	return l.entries[i].metrics, true
}

// Verified returns whether the peer with the given identity has at least one
// successful verification.
func (l *ActiveList) Verified(id identity.PeerID) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	i := l.index(id)
	return i != -1 && l.entries[i].metrics.VerifiedCount > 0
}

// MarkVerified increments the peer's verified count, records the response
// time, and moves the peer to the front of the list.  It returns the new
// verified count.
func (l *ActiveList) MarkVerified(id identity.PeerID) (uint32, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return 0, false
	}
	e := l.entries[i]
	e.metrics.VerifiedCount++
	e.metrics.LastVerifResponse = time.Now()

	// Move to front: most recently verified first.
	copy(l.entries[1:], l.entries[:i])
	l.entries[0] = e
	return e.metrics.VerifiedCount, true
}

// TouchRequest records the time a verification request was received from
// the peer.
func (l *ActiveList) TouchRequest(id identity.PeerID) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return false
	}
	l.entries[i].metrics.LastVerifRequest = time.Now()
	return true
}

// SetLastNewPeers records how many previously unknown peers the last
// discovery response from the peer contained.
func (l *ActiveList) SetLastNewPeers(id identity.PeerID, n int) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return false
	}
	l.entries[i].metrics.LastNewPeers = n
	return true
}

// Back returns the peer at the back of the list, which is the least recently
// verified peer and therefore the next re-verification target.
func (l *ActiveList) Back() (*Peer, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	if len(l.entries) == 0 {
		return nil, false
	}
	return l.entries[len(l.entries)-1].peer, true
}

// Peers returns all peers in list order (most recently verified first).
func (l *ActiveList) Peers() []*Peer {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	peers := make([]*Peer, len(l.entries))
	for i, e := range l.entries {
		peers[i] = e.peer
	}
	return peers
}

// VerifiedPeers returns all peers with a verified count of at least the
// given minimum, in list order.
func (l *ActiveList) VerifiedPeers(minVerified uint32) []*Peer {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	peers := make([]*Peer, 0, len(l.entries))
	for _, e := range l.entries {
		if e.metrics.VerifiedCount >= minVerified {
			peers = append(peers, e.peer)
		}
	}
	return peers
}
