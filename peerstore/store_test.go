// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerstore

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
)

// testPeer returns a deterministic peer for testing derived from the given
// seed byte.
func testPeer(seed byte) *peer.Peer {
	pubKey := make([]byte, identity.PublicKeySize)
	pubKey[0] = 0x02
	pubKey[1] = seed
	return peer.NewPeer(pubKey, net.IPv4(10, 0, 0, seed), 14626, peer.ServiceMap{
		peer.ServicePeering: {Network: "udp", Port: 14626},
	})
}

// idSet builds a lookup set of peer identities.
func idSet(peers []*peer.Peer) map[identity.PeerID]bool {
	set := make(map[identity.PeerID]bool, len(peers))
	for _, p := range peers {
		set[p.ID()] = true
	}
	return set
}

// TestStoreRoundTrip ensures flushed peers are restored equivalently and
// the two lists remain independent.
func TestStoreRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	active := []*peer.Peer{testPeer(1), testPeer(2), testPeer(3)}
	replacements := []*peer.Peer{testPeer(4)}

	if err := store.FlushActive(active); err != nil {
		t.Fatalf("FlushActive: %v", err)
	}
	if err := store.FlushReplacements(replacements); err != nil {
		t.Fatalf("FlushReplacements: %v", err)
	}

	gotActive, err := store.FetchAllActive()
	if err != nil {
		t.Fatalf("FetchAllActive: %v", err)
	}
	if len(gotActive) != len(active) {
		t.Fatalf("restored %d active peers, want %d", len(gotActive),
			len(active))
	}
	want := idSet(active)
	for _, p := range gotActive {
		if !want[p.ID()] {
			t.Fatalf("unexpected restored peer %v", p)
		}
		if !p.HasService(peer.ServicePeering) {
			t.Fatalf("restored peer %v lost its peering service", p)
		}
	}

	gotRepl, err := store.FetchAllReplacements()
	if err != nil {
		t.Fatalf("FetchAllReplacements: %v", err)
	}
	if len(gotRepl) != 1 || gotRepl[0].ID() != replacements[0].ID() {
		t.Fatalf("restored replacements = %v, want %v", gotRepl, replacements)
	}
}

// TestFlushReplacesPrevious ensures a flush removes records from earlier
// flushes rather than accumulating them.
func TestFlushReplacesPrevious(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.FlushActive([]*peer.Peer{testPeer(1), testPeer(2)}); err != nil {
		t.Fatalf("FlushActive: %v", err)
	}
	if err := store.FlushActive([]*peer.Peer{testPeer(3)}); err != nil {
		t.Fatalf("FlushActive: %v", err)
	}

	got, err := store.FetchAllActive()
	if err != nil {
		t.Fatalf("FetchAllActive: %v", err)
	}
	if len(got) != 1 || got[0].ID() != testPeer(3).ID() {
		t.Fatalf("restored %v, want only peer 3", got)
	}
}

// TestFetchEmpty ensures fetching from a fresh store returns no peers and
// no error.
func TestFetchEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "peers.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	got, err := store.FetchAllActive()
	if err != nil {
		t.Fatalf("FetchAllActive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("fresh store returned %d peers", len(got))
	}
}
