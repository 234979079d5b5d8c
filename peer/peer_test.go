// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"net"
	"reflect"
	"testing"

	"github.com/tangleware/autopeerd/identity"
)

// TestSetServicesOnce ensures the service map can only be set once.
func TestSetServicesOnce(t *testing.T) {
	pubKey := make([]byte, identity.PublicKeySize)
	pubKey[0] = 0x02
	p := NewPeer(pubKey, net.IPv4(10, 0, 0, 1), 14626, nil)

	if p.Services() != nil {
		t.Fatal("fresh unverified peer has services")
	}
	if p.HasService(ServicePeering) {
		t.Fatal("fresh unverified peer advertises peering")
	}
	if _, err := p.PeeringAddr(); err == nil {
		t.Fatal("PeeringAddr succeeded without a peering service")
	}

	first := ServiceMap{ServicePeering: {Network: "udp", Port: 14626}}
	p.SetServices(first)
	if !p.HasService(ServicePeering) {
		t.Fatal("peering service missing after SetServices")
	}

	// A second set is ignored.
	p.SetServices(ServiceMap{ServicePeering: {Network: "udp", Port: 9}})
	addr, err := p.PeeringAddr()
	if err != nil {
		t.Fatalf("PeeringAddr: %v", err)
	}
	if addr.Port != 14626 {
		t.Fatalf("peering port = %d, want 14626", addr.Port)
	}
}

// TestPeerRecordConversion ensures converting a peer to its wire record and
// back preserves identity and services.
func TestPeerRecordConversion(t *testing.T) {
	orig := testPeer(7)
	rebuilt := FromRecord(orig.Record())

	if rebuilt.ID() != orig.ID() {
		t.Fatalf("identity mismatch: got %v, want %v", rebuilt.ID(), orig.ID())
	}
	if !rebuilt.IP().Equal(orig.IP()) {
		t.Fatalf("ip mismatch: got %v, want %v", rebuilt.IP(), orig.IP())
	}
	if rebuilt.Port() != orig.Port() {
		t.Fatalf("port mismatch: got %d, want %d", rebuilt.Port(), orig.Port())
	}
	if !reflect.DeepEqual(rebuilt.Services(), orig.Services()) {
		t.Fatalf("services mismatch: got %v, want %v", rebuilt.Services(),
			orig.Services())
	}
}

// TestServiceRecordsOrdering ensures the peering service is always first in
// the wire form.
func TestServiceRecordsOrdering(t *testing.T) {
	s := ServiceMap{
		ServiceGossip:  {Network: "tcp", Port: 15600},
		ServicePeering: {Network: "udp", Port: 14626},
	}
	records := s.Records()
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if records[0].Key != ServicePeering {
		t.Fatalf("first record = %q, want %q", records[0].Key, ServicePeering)
	}
}
