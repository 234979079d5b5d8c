// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package salt

import (
	"encoding/binary"

	"github.com/decred/dcrd/crypto/blake256"
	"github.com/tangleware/autopeerd/identity"
)

// MaxDistance is the largest possible distance value.
const MaxDistance = ^uint32(0)

// Distance returns the salt-biased distance between two peer identities.
//
// The distance is the XOR of the leading 32 bits of BLAKE-256(id || salt)
// for each identity.  Since both identities are hashed with the same salt,
// the metric is symmetric, and rotating the salt yields an unrelated ranking
// for the same pair of identities.  The value is used purely for relative
// ordering of candidates.
func Distance(a, b identity.PeerID, s *Salt) uint32 {
	return saltedPrefix(a, s) ^ saltedPrefix(b, s)
}

// saltedPrefix hashes the identity together with the salt and reduces the
// digest to its leading 32 bits.
func saltedPrefix(id identity.PeerID, s *Salt) uint32 {
	var buf [identity.IDSize + ByteSize]byte
	copy(buf[:identity.IDSize], id[:])
	copy(buf[identity.IDSize:], s.bytes[:])
	digest := blake256.Sum256(buf[:])
	return binary.BigEndian.Uint32(digest[:4])
}
