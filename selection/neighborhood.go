// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package selection

import (
	"sort"
	"sync"

	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/salt"
)

// Neighbor pairs a peer with its salt-biased distance.  Distances are
// derived values: they are recomputed from the current salts whenever the
// salts rotate, never stored independently of a neighborhood.
type Neighbor struct {
	Peer     *peer.Peer
	Distance uint32
}

// Neighborhood is a fixed-capacity collection of neighbors kept sorted by
// ascending distance.  Two instances exist per node: the inbound
// neighborhood ranked by the private salt and the outbound neighborhood
// ranked by the public salt.
//
// All methods are safe for concurrent access.
type Neighborhood struct {
	mtx       sync.RWMutex
	capacity  int
	neighbors []Neighbor
}

// NewNeighborhood returns an empty neighborhood with the given capacity.
func NewNeighborhood(capacity int) *Neighborhood {
	return &Neighborhood{
		capacity:  capacity,
		neighbors: make([]Neighbor, 0, capacity),
	}
}

// index returns the position of the given identity or -1.  It must be
// called with the lock held.
func (n *Neighborhood) index(id identity.PeerID) int {
	for i := range n.neighbors {
		if n.neighbors[i].Peer.ID() == id {
			return i
		}
	}
	return -1
}

// Len returns the number of neighbors.
func (n *Neighborhood) Len() int {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return len(n.neighbors)
}

// IsFull returns whether the neighborhood is at capacity.
func (n *Neighborhood) IsFull() bool {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return len(n.neighbors) >= n.capacity
}

// Contains returns whether a neighbor with the given identity is present.
func (n *Neighborhood) Contains(id identity.PeerID) bool {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return n.index(id) != -1
}

// Select decides whether a candidate may join the neighborhood.  It returns
// (nil, true) when there is free capacity, (farthest, true) when the
// neighborhood is full but the candidate is strictly closer than the current
// farthest member, which the caller must then drop before inserting, and
// (nil, false) when the candidate is not admissible.
func (n *Neighborhood) Select(candidate Neighbor) (evict *peer.Peer, ok bool) {
	n.mtx.RLock()
	defer n.mtx.RUnlock()

	if n.index(candidate.Peer.ID()) != -1 {
		return nil, false
	}
	if len(n.neighbors) < n.capacity {
		return nil, true
	}
	farthest := n.neighbors[len(n.neighbors)-1]
	if candidate.Distance < farthest.Distance {
		return farthest.Peer, true
	}
	return nil, false
}

// Insert adds a neighbor, keeping the ascending distance order.  It returns
// false when the identity is already present or the neighborhood is full;
// callers make room first based on Select.
func (n *Neighborhood) Insert(nb Neighbor) bool {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	if n.index(nb.Peer.ID()) != -1 || len(n.neighbors) >= n.capacity {
		return false
	}
	i := sort.Search(len(n.neighbors), func(i int) bool {
		return n.neighbors[i].Distance > nb.Distance
	})
	n.neighbors = append(n.neighbors, Neighbor{})
	copy(n.neighbors[i+1:], n.neighbors[i:])
	n.neighbors[i] = nb
	return true
}

// Remove removes the neighbor with the given identity and returns its peer.
func (n *Neighborhood) Remove(id identity.PeerID) (*peer.Peer, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	i := n.index(id)
	if i == -1 {
		return nil, false
	}
	p := n.neighbors[i].Peer
	n.neighbors = append(n.neighbors[:i], n.neighbors[i+1:]...)
	return p, true
}

// Clear removes all neighbors and returns their peers.
func (n *Neighborhood) Clear() []*peer.Peer {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	peers := make([]*peer.Peer, len(n.neighbors))
	for i := range n.neighbors {
		peers[i] = n.neighbors[i].Peer
	}
	n.neighbors = n.neighbors[:0]
	return peers
}

// Peers returns the neighbor peers in ascending distance order.
func (n *Neighborhood) Peers() []*peer.Peer {
	n.mtx.RLock()
	defer n.mtx.RUnlock()

	peers := make([]*peer.Peer, len(n.neighbors))
	for i := range n.neighbors {
		peers[i] = n.neighbors[i].Peer
	}
	return peers
}

// Neighbors returns a copy of the current neighbor slice in ascending
// distance order.
func (n *Neighborhood) Neighbors() []Neighbor {
	n.mtx.RLock()
	defer n.mtx.RUnlock()

	neighbors := make([]Neighbor, len(n.neighbors))
	copy(neighbors, n.neighbors)
	return neighbors
}

// UpdateDistances recomputes every neighbor's distance under a fresh salt
// and restores the ascending order.  Used by the soft salt rotation policy
// that keeps existing neighbors across a salt update.
func (n *Neighborhood) UpdateDistances(local identity.PeerID, s *salt.Salt) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	for i := range n.neighbors {
		n.neighbors[i].Distance = salt.Distance(local,
			n.neighbors[i].Peer.ID(), s)
	}
	sort.SliceStable(n.neighbors, func(i, j int) bool {
		return n.neighbors[i].Distance < n.neighbors[j].Distance
	})
}
