// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import "github.com/tangleware/autopeerd/identity"

// Lists bundles the three peer collections that back the discovery and
// peering managers.  The lists are individually locked; cross-list
// operations acquire and release one lock at a time, never holding two at
// once, so no lock ordering constraint can be violated.
type Lists struct {
	Active       *ActiveList
	Replacements *ReplacementList
	Entries      *EntrySet
}

// NewLists creates the three peer collections with the given capacities.
func NewLists(activeCap, replacementCap int) *Lists {
	return &Lists{
		Active:       NewActiveList(activeCap),
		Replacements: NewReplacementList(replacementCap),
		Entries:      NewEntrySet(),
	}
}

// Known returns whether a peer with the given identity is present in either
// the active or replacement list.
func (l *Lists) Known(id identity.PeerID) bool {
	return l.Active.Contains(id) || l.Replacements.Contains(id)
}

// Add places a new peer in the active list, or in the replacement list when
// the active list is full.  It returns true when the peer was stored in
// either list.
func (l *Lists) Add(p *Peer) bool {
	if l.Known(p.id) {
		return false
	}
	if l.Active.InsertIfRoom(p) {
		return true
	}
	return l.Replacements.Insert(p)
}

// EvictActive removes a peer from the active list, applying the pinning and
// backfill policy:
//
//   - An entry node is never permanently removed: it is re-inserted
//     immediately with zeroed metrics.
//   - Otherwise, when the replacement list is non-empty, a uniformly random
//     replacement peer is promoted into the freed slot.
//
// It returns the removed peer, whether the removal of a verified non-entry
// peer warrants a PeerDeleted event, and the promoted replacement, if any.
func (l *Lists) EvictActive(id identity.PeerID) (removed *Peer, deleted bool, promoted *Peer) {
	// Entry nodes are pinned: reset metrics and move to the back instead of
	// removing, which is equivalent to an immediate re-insert.
	if l.Entries.Contains(id) {
		if p, ok := l.Active.Peer(id); ok && l.Active.Reinsert(id) {
			return p, false, nil
		}
		return nil, false, nil
	}

	removed, metrics, ok := l.Active.Remove(id)
	if !ok {
		return nil, false, nil
	}
	deleted = metrics.VerifiedCount > 0

	if promoted, ok = l.Replacements.PopRandom(); ok {
		l.Active.InsertIfRoom(promoted)
	}
	return removed, deleted, promoted
}
