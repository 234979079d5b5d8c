// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package salt implements the expiring random salts and the salt-biased
// distance metric that drive neighbor selection.  Salts rotate on a fixed
// interval so the distance ranking between any two nodes cannot be
// precomputed or held static by an adversary.
package salt

import (
	"fmt"
	"time"

	"github.com/decred/dcrd/crypto/rand"
)

// ByteSize is the number of random bytes in a salt.
const ByteSize = 20

// Salt is a short-lived random value mixed into the distance computation.
// It is immutable after creation and therefore safe for concurrent access.
type Salt struct {
	bytes          [ByteSize]byte
	expirationTime time.Time
}

// NewSalt returns a fresh random salt that expires after the given lifetime.
func NewSalt(lifetime time.Duration) *Salt {
	s := &Salt{expirationTime: time.Now().Add(lifetime)}
	rand.Read(s.bytes[:])
	return s
}

// FromBytes reconstructs a salt received from a remote peer.
func FromBytes(b []byte, expirationTime time.Time) (*Salt, error) {
	if len(b) != ByteSize {
		return nil, fmt.Errorf("malformed salt: length %d, expected %d",
			len(b), ByteSize)
	}
	s := &Salt{expirationTime: expirationTime}
	copy(s.bytes[:], b)
	return s, nil
}

// Bytes returns the raw salt bytes as a new slice.
func (s *Salt) Bytes() []byte {
	b := make([]byte, ByteSize)
	copy(b, s.bytes[:])
	return b
}

// ExpirationTime returns the time at which the salt expires.
func (s *Salt) ExpirationTime() time.Time {
	return s.expirationTime
}

// Expired returns whether the salt expiration time has passed.
func (s *Salt) Expired() bool {
	return time.Now().After(s.expirationTime)
}
