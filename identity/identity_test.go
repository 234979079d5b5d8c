// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// TestIDDerivation ensures peer identities are deterministic functions of the
// public key and differ for different keys.
func TestIDDerivation(t *testing.T) {
	a, err := NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	b, err := NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}

	if NewID(a.PublicKey()) != a.ID() {
		t.Fatal("identity does not match derivation from public key")
	}
	if a.ID() == b.ID() {
		t.Fatal("distinct keys produced the same identity")
	}
}

// TestIDStringRoundTrip ensures the base58 string form parses back to the
// same identity.
func TestIDStringRoundTrip(t *testing.T) {
	local, err := NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	id := local.ID()

	parsed, err := IDFromString(id.String())
	if err != nil {
		t.Fatalf("IDFromString: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: got %v, want %v", parsed, id)
	}

	if _, err := IDFromString("notbase58!!!"); err == nil {
		t.Fatal("expected error for malformed identity string")
	}
}

// TestSign ensures signing is deterministic for the same message and key.
func TestSign(t *testing.T) {
	local, err := NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}

	msg := []byte("verification request payload")
	sig1 := local.Sign(msg)
	sig2 := local.Sign(msg)
	if len(sig1) == 0 {
		t.Fatal("empty signature")
	}
	if !bytes.Equal(sig1, sig2) {
		t.Fatal("signatures over the same message differ")
	}
}

// TestLoadOrCreate ensures a generated key file is reloaded to the same
// identity.
func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.key")

	created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (create): %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("key file was not written: %v", err)
	}

	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate (load): %v", err)
	}
	if loaded.ID() != created.ID() {
		t.Fatalf("reloaded identity mismatch: got %v, want %v",
			loaded.ID(), created.ID())
	}
}
