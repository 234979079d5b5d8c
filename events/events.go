// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package events defines the notifications the discovery and peering
// managers publish to downstream observers such as the gossip layer's peer
// management and metrics collection.
package events

import (
	"time"

	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
)

// Event is implemented by all autopeering notifications.
type Event interface {
	event()
}

// PeerDiscovered is published when a peer passes its first verification and
// becomes usable for peering.
type PeerDiscovered struct {
	ID identity.PeerID
}

// PeerDeleted is published when a verified peer is evicted from the active
// list.
type PeerDeleted struct {
	ID identity.PeerID
}

// IncomingPeering is published when a remote peering request was accepted
// into the inbound neighborhood.
type IncomingPeering struct {
	Peer     *peer.Peer
	Distance uint32
}

// OutgoingPeering is published when a local peering request completed.
// Status reports whether the remote granted the slot and the relationship
// was added to the outbound neighborhood.
type OutgoingPeering struct {
	Peer     *peer.Peer
	Distance uint32
	Status   bool
}

// PeeringDropped is published when a neighbor relationship was terminated.
type PeeringDropped struct {
	ID identity.PeerID
}

// SaltUpdated is published when the local private and public salts were
// rotated.
type SaltUpdated struct {
	PublicExpiry  time.Time
	PrivateExpiry time.Time
}

func (PeerDiscovered) event()   {}
func (PeerDeleted) event()      {}
func (IncomingPeering) event()  {}
func (OutgoingPeering) event()  {}
func (PeeringDropped) event()   {}
func (SaltUpdated) event()      {}
