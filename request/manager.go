// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package request tracks in-flight request/response correlation for the
// autopeering protocol.  A pending request is keyed by the remote peer
// identity together with the request kind, holds the content hash of the
// sent datagram, and is consumed exactly once: either by a response whose
// echoed hash matches, or by the sender's bounded wait timing out.
package request

import (
	"sync"
	"time"

	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/wire"
)

// Kind distinguishes the outstanding request types.  At most one request of
// a given kind per peer may be pending at a time; registering a new one
// replaces the previous entry.
type Kind uint8

// The request kinds tracked by the manager.
const (
	KindVerification Kind = iota
	KindDiscovery
	KindPeering
)

// String returns the kind as a human-readable string.
func (k Kind) String() string {
	switch k {
	case KindVerification:
		return "verification"
	case KindDiscovery:
		return "discovery"
	case KindPeering:
		return "peering"
	}
	return "unknown"
}

// Value is the stored state of a pending request.
type Value struct {
	// Hash is the content hash of the request datagram.  A response is only
	// valid when it echoes this hash.
	Hash [wire.HashSize]byte

	// SentAt is the time the request was registered.
	SentAt time.Time

	// Response, when non-nil, receives the raw response datagram.  The
	// channel must be buffered; the manager's users send to it without
	// blocking.
	Response chan<- []byte
}

// key identifies a pending request.
type key struct {
	id   identity.PeerID
	kind Kind
}

// Manager is the concurrency safe pending-request table.
type Manager struct {
	mtx      sync.Mutex
	requests map[key]Value
}

// NewManager returns an empty request manager.
func NewManager() *Manager {
	return &Manager{requests: make(map[key]Value)}
}

// Register stores a pending request for the given peer and kind, replacing
// any previous entry of the same key.
func (m *Manager) Register(id identity.PeerID, kind Kind, hash [wire.HashSize]byte, response chan<- []byte) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.requests[key{id, kind}] = Value{
		Hash:     hash,
		SentAt:   time.Now(),
		Response: response,
	}
}

// Take atomically removes and returns the pending request for the given
// peer and kind.  This is the single point of request/response correlation:
// once taken, a replayed response finds nothing and is rejected.
func (m *Manager) Take(id identity.PeerID, kind Kind) (Value, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	k := key{id, kind}
	val, ok := m.requests[k]
	if ok {
		delete(m.requests, k)
	}
	return val, ok
}

// Remove deletes the pending request for the given peer and kind, used by
// senders to clean up after their bounded response wait times out.
func (m *Manager) Remove(id identity.PeerID, kind Kind) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	k := key{id, kind}
	_, ok := m.requests[k]
	delete(m.requests, k)
	return ok
}

// Len returns the number of pending requests.
func (m *Manager) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.requests)
}
