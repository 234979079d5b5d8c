// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"sync"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/tangleware/autopeerd/identity"
)

// ReplacementList is a bounded pool of peers that did not fit into the
// active list.  When an active peer is evicted, a replacement is promoted
// uniformly at random so no insertion-order bias leaks into which peer gets
// the freed slot.
//
// All methods are safe for concurrent access.
type ReplacementList struct {
	mtx      sync.RWMutex
	capacity int
	peers    []*Peer
}

// NewReplacementList returns an empty replacement list with the given
// capacity.
func NewReplacementList(capacity int) *ReplacementList {
	return &ReplacementList{
		capacity: capacity,
		peers:    make([]*Peer, 0, capacity),
	}
}

// index returns the position of the given identity or -1.  It must be called
// with the lock held.
func (l *ReplacementList) index(id identity.PeerID) int {
	for i, p := range l.peers {
		if p.id == id {
			return i
		}
	}
	return -1
}

// Len returns the number of peers in the list.
func (l *ReplacementList) Len() int {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return len(l.peers)
}

// Contains returns whether a peer with the given identity is in the list.
func (l *ReplacementList) Contains(id identity.PeerID) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.index(id) != -1
}

// Insert adds a peer to the list.  It returns false when the peer is
// already present or the list is full.
func (l *ReplacementList) Insert(p *Peer) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.index(p.id) != -1 || len(l.peers) >= l.capacity {
		return false
	}
	l.peers = append(l.peers, p)
	return true
}

// Peer returns the peer with the given identity.
func (l *ReplacementList) Peer(id identity.PeerID) (*Peer, bool) {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	i := l.index(id)
	if i == -1 {
		return nil, false
	}
	return l.peers[i], true
}

// Remove removes the peer with the given identity and returns it.
func (l *ReplacementList) Remove(id identity.PeerID) (*Peer, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	i := l.index(id)
	if i == -1 {
		return nil, false
	}
	return l.removeAt(i), true
}

// removeAt removes and returns the peer at the given index.  It must be
// called with the lock held and a valid index.
func (l *ReplacementList) removeAt(i int) *Peer {
	p := l.peers[i]
	l.peers = append(l.peers[:i], l.peers[i+1:]...)
	return p
}

// PopRandom removes and returns a uniformly random peer, used to backfill
// the active list after an eviction.
func (l *ReplacementList) PopRandom() (*Peer, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if len(l.peers) == 0 {
		return nil, false
	}
	return l.removeAt(rand.IntN(len(l.peers))), true
}

// Peers returns a copy of the current peer slice.
func (l *ReplacementList) Peers() []*Peer {
	l.mtx.RLock()
	defer l.mtx.RUnlock()

	peers := make([]*Peer, len(l.peers))
	copy(peers, l.peers)
	return peers
}
