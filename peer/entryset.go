// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"sync"

	"github.com/tangleware/autopeerd/identity"
)

// EntrySet tracks the identities of configured entry (bootstrap) nodes.
// Membership pins a peer against permanent removal from the active list.
//
// All methods are safe for concurrent access.
type EntrySet struct {
	mtx sync.RWMutex
	ids map[identity.PeerID]struct{}
}

// NewEntrySet returns an empty entry node set.
func NewEntrySet() *EntrySet {
	return &EntrySet{ids: make(map[identity.PeerID]struct{})}
}

// Add marks the given identity as an entry node.
func (s *EntrySet) Add(id identity.PeerID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.ids[id] = struct{}{}
}

// Contains returns whether the given identity is an entry node.
func (s *EntrySet) Contains(id identity.PeerID) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of entry nodes.
func (s *EntrySet) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.ids)
}
