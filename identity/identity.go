// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package identity provides the canonical node identity used throughout the
// autopeering subsystem.  A peer identity is derived from the BLAKE-256 hash
// of a serialized compressed secp256k1 public key, so identities are cheap to
// compare and impossible to choose freely without grinding keys.
package identity

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/decred/base58"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// IDSize is the number of bytes in a peer identity.
const IDSize = blake256.Size

// PublicKeySize is the number of bytes in a serialized compressed secp256k1
// public key.
const PublicKeySize = 33

// PeerID uniquely identifies a peer on the network.  It is the BLAKE-256
// hash of the peer's serialized compressed public key and is directly usable
// as a map key.
type PeerID [IDSize]byte

// NewID derives the peer identity for the given serialized public key.
func NewID(publicKey []byte) PeerID {
	return PeerID(blake256.Sum256(publicKey))
}

// Bytes returns the raw bytes of the identity as a new slice.
func (id PeerID) Bytes() []byte {
	b := make([]byte, IDSize)
	copy(b, id[:])
	return b
}

// String returns the base58 encoding of the identity.
func (id PeerID) String() string {
	return base58.Encode(id[:])
}

// ShortString returns a shortened base58 encoding of the identity suitable
// for log output.
func (id PeerID) ShortString() string {
	const shortLen = 8
	s := base58.Encode(id[:])
	if len(s) <= shortLen {
		return s
	}
	return s[:shortLen]
}

// IDFromString parses a full base58-encoded peer identity.
func IDFromString(s string) (PeerID, error) {
	var id PeerID
	decoded := base58.Decode(s)
	if len(decoded) != IDSize {
		return id, fmt.Errorf("malformed peer id %q: decoded length %d, "+
			"expected %d", s, len(decoded), IDSize)
	}
	copy(id[:], decoded)
	return id, nil
}

// LocalIdentity is the private identity of the local node.  It bundles the
// signing keypair with the derived peer identity and is safe for concurrent
// access since all fields are immutable after creation.
type LocalIdentity struct {
	privKey   *secp256k1.PrivateKey
	publicKey []byte
	id        PeerID
}

// NewLocalIdentity generates a fresh random local identity.
func NewLocalIdentity() (*LocalIdentity, error) {
	privKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return fromPrivateKey(privKey), nil
}

// LocalIdentityFromKey constructs a local identity from a serialized 32-byte
// secp256k1 private key.
func LocalIdentityFromKey(keyBytes []byte) (*LocalIdentity, error) {
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("malformed private key: length %d, "+
			"expected 32", len(keyBytes))
	}
	return fromPrivateKey(secp256k1.PrivKeyFromBytes(keyBytes)), nil
}

func fromPrivateKey(privKey *secp256k1.PrivateKey) *LocalIdentity {
	publicKey := privKey.PubKey().SerializeCompressed()
	return &LocalIdentity{
		privKey:   privKey,
		publicKey: publicKey,
		id:        NewID(publicKey),
	}
}

// ID returns the peer identity derived from the local public key.
func (l *LocalIdentity) ID() PeerID {
	return l.id
}

// PublicKey returns the serialized compressed public key.
func (l *LocalIdentity) PublicKey() []byte {
	b := make([]byte, len(l.publicKey))
	copy(b, l.publicKey)
	return b
}

// Sign produces a DER-encoded ECDSA signature over the BLAKE-256 hash of the
// given message.
func (l *LocalIdentity) Sign(msg []byte) []byte {
	hash := blake256.Sum256(msg)
	return ecdsa.Sign(l.privKey, hash[:]).Serialize()
}

// LoadOrCreate loads the local identity key from the given file, generating
// and persisting a new one when the file does not exist.  The key file holds
// the hex-encoded 32-byte private key.
func LoadOrCreate(path string) (*LocalIdentity, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		keyBytes, err := hex.DecodeString(string(bytes.TrimSpace(data)))
		if err != nil {
			return nil, fmt.Errorf("malformed identity key file %s: %w",
				path, err)
		}
		return LocalIdentityFromKey(keyBytes)

	case os.IsNotExist(err):
		local, err := NewLocalIdentity()
		if err != nil {
			return nil, err
		}
		encoded := hex.EncodeToString(local.privKey.Serialize()) + "\n"
		if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
			return nil, err
		}
		return local, nil

	default:
		return nil, err
	}
}
