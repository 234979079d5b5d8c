// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import "testing"

// TestListsAdd ensures new peers land in the active list until it is full
// and overflow into the replacement list afterwards.
func TestListsAdd(t *testing.T) {
	l := NewLists(2, 2)

	a, b, c, d, e := testPeer(1), testPeer(2), testPeer(3), testPeer(4), testPeer(5)
	for _, p := range []*Peer{a, b} {
		if !l.Add(p) {
			t.Fatalf("add %v failed", p)
		}
	}
	if !l.Active.Contains(a.ID()) || !l.Active.Contains(b.ID()) {
		t.Fatal("peers missing from active list")
	}

	// Active full: overflow to replacements.
	if !l.Add(c) || !l.Replacements.Contains(c.ID()) {
		t.Fatal("overflow peer not stored in replacement list")
	}
	if !l.Add(d) {
		t.Fatal("second overflow add failed")
	}

	// Both lists full: add is rejected.
	if l.Add(e) {
		t.Fatal("add succeeded with both lists full")
	}

	// Known peers are not re-added.
	if l.Add(a) {
		t.Fatal("re-add of known active peer succeeded")
	}
	if l.Add(c) {
		t.Fatal("re-add of known replacement peer succeeded")
	}
}

// TestEvictActiveBackfill ensures evicting a verified non-entry peer emits a
// deletion and promotes exactly one replacement, leaving the active list
// size unchanged.
func TestEvictActiveBackfill(t *testing.T) {
	l := NewLists(2, 2)
	a, b, r := testPeer(1), testPeer(2), testPeer(3)
	l.Add(a)
	l.Add(b)
	l.Active.MarkVerified(a.ID())
	l.Active.MarkVerified(b.ID())
	l.Add(r) // goes to replacements

	removed, deleted, promoted := l.EvictActive(a.ID())
	if removed == nil || removed.ID() != a.ID() {
		t.Fatalf("removed = %v, want %v", removed, a)
	}
	if !deleted {
		t.Fatal("eviction of verified peer did not report deletion")
	}
	if promoted == nil || promoted.ID() != r.ID() {
		t.Fatalf("promoted = %v, want %v", promoted, r)
	}
	if l.Active.Len() != 2 {
		t.Fatalf("active len = %d after backfill, want 2", l.Active.Len())
	}
	if l.Replacements.Len() != 0 {
		t.Fatalf("replacement len = %d after backfill, want 0",
			l.Replacements.Len())
	}
	if !l.Active.Contains(r.ID()) {
		t.Fatal("promoted peer missing from active list")
	}
}

// TestEvictActiveUnverified ensures evicting an unverified peer does not
// report a deletion event.
func TestEvictActiveUnverified(t *testing.T) {
	l := NewLists(2, 2)
	a := testPeer(1)
	l.Add(a)

	removed, deleted, _ := l.EvictActive(a.ID())
	if removed == nil {
		t.Fatal("eviction failed")
	}
	if deleted {
		t.Fatal("eviction of unverified peer reported deletion")
	}
}

// TestEvictActiveEntryPinning ensures an entry node is never permanently
// removed: eviction resets its metrics and keeps it in the active list, and
// no replacement is consumed.
func TestEvictActiveEntryPinning(t *testing.T) {
	l := NewLists(2, 2)
	entry, r := testPeer(1), testPeer(2)
	l.Add(entry)
	l.Entries.Add(entry.ID())
	l.Active.MarkVerified(entry.ID())
	l.Replacements.Insert(r)

	removed, deleted, promoted := l.EvictActive(entry.ID())
	if removed == nil || removed.ID() != entry.ID() {
		t.Fatalf("removed = %v, want %v", removed, entry)
	}
	if deleted {
		t.Fatal("entry node eviction reported deletion")
	}
	if promoted != nil {
		t.Fatal("entry node eviction consumed a replacement")
	}
	if !l.Active.Contains(entry.ID()) {
		t.Fatal("entry node missing from active list after eviction")
	}
	m, _ := l.Active.Metrics(entry.ID())
	if m.VerifiedCount != 0 {
		t.Fatalf("entry node verified count = %d, want 0", m.VerifiedCount)
	}
	if l.Replacements.Len() != 1 {
		t.Fatal("replacement list changed by entry node eviction")
	}
}

// TestEvictActiveUnknown ensures evicting an unknown identity is a no-op.
func TestEvictActiveUnknown(t *testing.T) {
	l := NewLists(2, 2)
	if removed, deleted, promoted := l.EvictActive(testPeer(9).ID()); removed != nil ||
		deleted || promoted != nil {
		t.Fatal("eviction of unknown peer mutated state")
	}
}

// TestPopRandomDrainsAll ensures PopRandom eventually returns every peer
// exactly once.
func TestPopRandomDrainsAll(t *testing.T) {
	l := NewReplacementList(4)
	want := make(map[string]bool)
	for i := byte(1); i <= 4; i++ {
		p := testPeer(i)
		l.Insert(p)
		want[p.ID().String()] = false
	}

	for i := 0; i < 4; i++ {
		p, ok := l.PopRandom()
		if !ok {
			t.Fatalf("PopRandom failed with %d peers remaining", 4-i)
		}
		key := p.ID().String()
		seen, known := want[key]
		if !known {
			t.Fatalf("PopRandom returned unknown peer %v", p)
		}
		if seen {
			t.Fatalf("PopRandom returned %v twice", p)
		}
		want[key] = true
	}
	if _, ok := l.PopRandom(); ok {
		t.Fatal("PopRandom succeeded on empty list")
	}
}
