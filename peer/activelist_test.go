// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"net"
	"testing"

	"github.com/tangleware/autopeerd/identity"
)

// testPeer returns a deterministic peer for testing derived from the given
// seed byte.
func testPeer(seed byte) *Peer {
	pubKey := make([]byte, identity.PublicKeySize)
	pubKey[0] = 0x02
	pubKey[1] = seed
	return NewPeer(pubKey, net.IPv4(10, 0, 0, seed), 14626, ServiceMap{
		ServicePeering: {Network: "udp", Port: 14626},
	})
}

// TestActiveListCapacity ensures the list never exceeds its capacity, never
// holds duplicate identities, and panics on an insert that skipped the
// capacity check.
func TestActiveListCapacity(t *testing.T) {
	const capacity = 4
	l := NewActiveList(capacity)

	for i := byte(0); i < capacity; i++ {
		if !l.Insert(testPeer(i)) {
			t.Fatalf("insert %d failed", i)
		}
	}
	if !l.IsFull() {
		t.Fatal("list not full after inserting to capacity")
	}
	if l.Len() != capacity {
		t.Fatalf("len = %d, want %d", l.Len(), capacity)
	}

	// Duplicate identity is rejected without panicking even when full.
	if l.Insert(testPeer(0)) {
		t.Fatal("duplicate insert succeeded")
	}

	// InsertIfRoom reports no room instead of panicking.
	if l.InsertIfRoom(testPeer(100)) {
		t.Fatal("InsertIfRoom succeeded on a full list")
	}

	// A plain insert into a full list is a contract violation.
	defer func() {
		if recover() == nil {
			t.Fatal("insert into full list did not panic")
		}
	}()
	l.Insert(testPeer(101))
}

// TestActiveListMarkVerified ensures verification updates move the peer to
// the front and increment its count.
func TestActiveListMarkVerified(t *testing.T) {
	l := NewActiveList(8)
	a, b, c := testPeer(1), testPeer(2), testPeer(3)
	l.Insert(a)
	l.Insert(b)
	l.Insert(c)

	count, ok := l.MarkVerified(c.ID())
	if !ok || count != 1 {
		t.Fatalf("MarkVerified = %d, %v; want 1, true", count, ok)
	}
	if peers := l.Peers(); peers[0].ID() != c.ID() {
		t.Fatalf("front = %v, want %v", peers[0], c)
	}
	if back, _ := l.Back(); back.ID() != b.ID() {
		t.Fatalf("back = %v, want %v", back, b)
	}

	count, _ = l.MarkVerified(c.ID())
	if count != 2 {
		t.Fatalf("second MarkVerified = %d, want 2", count)
	}
	if !l.Verified(c.ID()) {
		t.Fatal("peer not reported verified")
	}
	if l.Verified(a.ID()) {
		t.Fatal("unverified peer reported verified")
	}

	if _, ok := l.MarkVerified(testPeer(99).ID()); ok {
		t.Fatal("MarkVerified succeeded for unknown peer")
	}
}

// TestActiveListReinsert ensures Reinsert zeroes metrics and moves the peer
// to the back.
func TestActiveListReinsert(t *testing.T) {
	l := NewActiveList(8)
	a, b := testPeer(1), testPeer(2)
	l.Insert(a)
	l.Insert(b)
	l.MarkVerified(a.ID())

	if !l.Reinsert(a.ID()) {
		t.Fatal("Reinsert failed for known peer")
	}
	m, _ := l.Metrics(a.ID())
	if m.VerifiedCount != 0 {
		t.Fatalf("verified count = %d after Reinsert, want 0", m.VerifiedCount)
	}
	if back, _ := l.Back(); back.ID() != a.ID() {
		t.Fatalf("back = %v, want %v", back, a)
	}
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
}

// TestActiveListVerifiedPeers ensures filtering by minimum verified count.
func TestActiveListVerifiedPeers(t *testing.T) {
	l := NewActiveList(8)
	a, b, c := testPeer(1), testPeer(2), testPeer(3)
	l.Insert(a)
	l.Insert(b)
	l.Insert(c)
	l.MarkVerified(b.ID())

	verified := l.VerifiedPeers(1)
	if len(verified) != 1 || verified[0].ID() != b.ID() {
		t.Fatalf("VerifiedPeers(1) = %v, want [%v]", verified, b)
	}
	if got := len(l.VerifiedPeers(0)); got != 3 {
		t.Fatalf("VerifiedPeers(0) returned %d peers, want 3", got)
	}
}
