// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package selection

import (
	"time"

	"github.com/decred/dcrd/container/lru"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
)

// NeighborValidator decides whether a peer is acceptable as a neighbor.
// Implementations must be safe for concurrent access.
type NeighborValidator interface {
	IsValid(p *peer.Peer) bool
}

// ServiceValidator accepts peers that advertise the peering service.  It is
// the validator the daemon wires in by default.
type ServiceValidator struct{}

// IsValid returns whether the peer advertises the peering service.
func (ServiceValidator) IsValid(p *peer.Peer) bool {
	return p.HasService(peer.ServicePeering)
}

// NeighborFilter suppresses peering attempts towards peers that were
// recently declined or dropped and peers failing the pluggable acceptance
// policy.  The suppression set expires entries on its own, so a filtered
// peer becomes eligible again after a fresh salt cycle without explicit
// bookkeeping.
//
// All methods are safe for concurrent access.
type NeighborFilter struct {
	blocked   *lru.Set[identity.PeerID]
	validator NeighborValidator
}

// maxFilteredPeers bounds the suppression set.  It only guards allocation;
// entries normally leave through their TTL.
const maxFilteredPeers = 1000

// NewNeighborFilter returns a filter whose suppression entries expire after
// the given TTL.  The validator may be nil, in which case only the
// suppression set applies.
func NewNeighborFilter(validator NeighborValidator, ttl time.Duration) *NeighborFilter {
	return &NeighborFilter{
		blocked:   lru.NewSetWithDefaultTTL[identity.PeerID](maxFilteredPeers, ttl),
		validator: validator,
	}
}

// Block suppresses future peering attempts towards the given identity until
// the entry expires or the filter is reset.
func (f *NeighborFilter) Block(id identity.PeerID) {
	f.blocked.Put(id)
}

// Accepts returns whether the given peer may be offered or granted a
// neighbor slot.
func (f *NeighborFilter) Accepts(p *peer.Peer) bool {
	if f.blocked.Contains(p.ID()) {
		return false
	}
	return f.validator == nil || f.validator.IsValid(p)
}

// Reset drops all suppression entries, used when a salt rotation invalidates
// every previous peering decision.
func (f *NeighborFilter) Reset() {
	f.blocked.Clear()
}
