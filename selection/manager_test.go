// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package selection

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tangleware/autopeerd/events"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/request"
	"github.com/tangleware/autopeerd/salt"
	"github.com/tangleware/autopeerd/transport"
	"github.com/tangleware/autopeerd/wire"
)

// sentMsg is one message recorded by the recording sender.
type sentMsg struct {
	raw []byte
	to  *net.UDPAddr
}

// recordingSender implements transport.Sender and records every message for
// later inspection instead of sending it anywhere.
type recordingSender struct {
	mtx   sync.Mutex
	local *net.UDPAddr
	sent  []sentMsg
}

func (s *recordingSender) Send(msg []byte, to *net.UDPAddr) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	raw := make([]byte, len(msg))
	copy(raw, msg)
	s.sent = append(s.sent, sentMsg{raw: raw, to: to})
	return nil
}

func (s *recordingSender) LocalAddr() *net.UDPAddr {
	return s.local
}

// takeSent returns all recorded messages and clears the record.
func (s *recordingSender) takeSent() []sentMsg {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	sent := s.sent
	s.sent = nil
	return sent
}

// testManager returns a peering manager backed by a recording sender and a
// buffered event channel.  The manager is not started; tests drive the
// handlers directly.
func testManager(t *testing.T, dropOnUpdate bool) (*Manager, *recordingSender, chan events.Event) {
	t.Helper()

	local, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	sender := &recordingSender{
		local: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 14626},
	}
	evs := make(chan events.Event, 16)
	m, err := New(&Config{
		Local:           local,
		Lists:           peer.NewLists(16, 8),
		Requests:        request.NewManager(),
		Transport:       sender,
		Events:          evs,
		InboundCap:      2,
		OutboundCap:     2,
		DropOnUpdate:    dropOnUpdate,
		ResponseTimeout: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, sender, evs
}

// addPeer places a peer created from the given identity into the manager's
// active list, optionally marking it verified.
func addPeer(m *Manager, remote *identity.LocalIdentity, from *net.UDPAddr, verified bool) *peer.Peer {
	p := peer.NewPeer(remote.PublicKey(), from.IP, uint16(from.Port),
		peer.ServiceMap{
			peer.ServicePeering: {Network: "udp", Port: uint16(from.Port)},
		})
	m.cfg.Lists.Add(p)
	if verified {
		m.cfg.Lists.Active.MarkVerified(p.ID())
	}
	return p
}

// packetFrom marshals a message and wraps it in an inbound packet from the
// given remote identity and source address.
func packetFrom(t *testing.T, remote *identity.LocalIdentity, msg wire.Message, from *net.UDPAddr) *transport.Packet {
	t.Helper()

	raw, err := wire.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return &transport.Packet{
		Bytes:        raw,
		SenderPubKey: remote.PublicKey(),
		SenderID:     remote.ID(),
		From:         from,
	}
}

// peeringRequest returns a fresh peering request carrying a valid salt.
func peeringRequest(lifetime time.Duration) *wire.PeeringRequest {
	s := salt.NewSalt(lifetime)
	return &wire.PeeringRequest{
		Timestamp:  time.Now().Unix(),
		SaltBytes:  s.Bytes(),
		SaltExpiry: s.ExpirationTime().Unix(),
	}
}

// drainEvents returns all currently buffered events.
func drainEvents(evs chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-evs:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// lastResponseStatus unmarshals the most recent sent message as a peering
// response and returns its status.
func lastResponseStatus(t *testing.T, sent []sentMsg) bool {
	t.Helper()

	if len(sent) == 0 {
		t.Fatal("no message was sent")
	}
	msg, err := wire.Unmarshal(sent[len(sent)-1].raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	resp, ok := msg.(*wire.PeeringResponse)
	if !ok {
		t.Fatalf("last sent message is %v, want peering response", msg.Type())
	}
	return resp.Status
}

// TestPeeringRequestUnverified ensures a peering request from an unverified
// peer is denied without touching the inbound neighborhood.
func TestPeeringRequestUnverified(t *testing.T) {
	m, sender, _ := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 14626}
	addPeer(m, remote, from, false)

	m.handlePacket(packetFrom(t, remote, peeringRequest(time.Hour), from))

	if lastResponseStatus(t, sender.takeSent()) {
		t.Fatal("unverified peer was granted a neighbor slot")
	}
	if m.inbound.Len() != 0 {
		t.Fatal("inbound neighborhood mutated by a denied request")
	}
}

// TestPeeringRequestAccept ensures a valid peering request from a verified
// peer is granted, inserted into the inbound neighborhood, and published.
func TestPeeringRequestAccept(t *testing.T) {
	m, sender, evs := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 14626}
	addPeer(m, remote, from, true)

	pkt := packetFrom(t, remote, peeringRequest(time.Hour), from)
	m.handlePacket(pkt)

	sent := sender.takeSent()
	if !lastResponseStatus(t, sent) {
		t.Fatal("valid peering request was denied")
	}
	msg, _ := wire.Unmarshal(sent[len(sent)-1].raw)
	if msg.(*wire.PeeringResponse).RequestHash != wire.MessageHash(pkt.Bytes) {
		t.Fatal("peering response does not echo the request hash")
	}
	if !m.inbound.Contains(remote.ID()) {
		t.Fatal("granted peer missing from the inbound neighborhood")
	}

	var incoming int
	for _, ev := range drainEvents(evs) {
		if in, ok := ev.(events.IncomingPeering); ok &&
			in.Peer.ID() == remote.ID() {
			incoming++
		}
	}
	if incoming != 1 {
		t.Fatalf("IncomingPeering emitted %d times, want 1", incoming)
	}
}

// TestPeeringRequestExpiredSalt ensures a peering request offering an
// expired salt is dropped without any response.
func TestPeeringRequestExpiredSalt(t *testing.T) {
	m, sender, _ := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 14626}
	addPeer(m, remote, from, true)

	req := peeringRequest(time.Hour)
	req.SaltExpiry = time.Now().Add(-time.Minute).Unix()
	m.handlePacket(packetFrom(t, remote, req, from))

	if sent := sender.takeSent(); len(sent) != 0 {
		t.Fatalf("sent %d messages for an expired salt, want 0", len(sent))
	}
	if m.inbound.Len() != 0 {
		t.Fatal("inbound neighborhood mutated by an invalid request")
	}
}

// TestPeeringResponseGranted ensures a correlated granting response inserts
// the responder into the outbound neighborhood and publishes the result.
func TestPeeringResponseGranted(t *testing.T) {
	m, _, evs := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 4), Port: 14626}
	addPeer(m, remote, from, true)

	rawReq := []byte("outbound peering request bytes")
	m.cfg.Requests.Register(remote.ID(), request.KindPeering,
		wire.MessageHash(rawReq), nil)

	resp := &wire.PeeringResponse{
		RequestHash: wire.MessageHash(rawReq),
		Status:      true,
	}
	m.handlePacket(packetFrom(t, remote, resp, from))

	if !m.outbound.Contains(remote.ID()) {
		t.Fatal("granted peer missing from the outbound neighborhood")
	}
	var granted int
	for _, ev := range drainEvents(evs) {
		if out, ok := ev.(events.OutgoingPeering); ok && out.Status &&
			out.Peer.ID() == remote.ID() {
			granted++
		}
	}
	if granted != 1 {
		t.Fatalf("OutgoingPeering(true) emitted %d times, want 1", granted)
	}

	// Replaying the response finds no pending request.
	m.outbound.Remove(remote.ID())
	m.handlePacket(packetFrom(t, remote, resp, from))
	if m.outbound.Contains(remote.ID()) {
		t.Fatal("replayed peering response was processed")
	}
}

// TestPeeringResponseSimultaneous ensures a granting response from a peer
// that already holds an inbound slot tears the duplicate direction down
// instead of double-peering.
func TestPeeringResponseSimultaneous(t *testing.T) {
	m, sender, evs := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 14626}
	p := addPeer(m, remote, from, true)
	m.inbound.Insert(Neighbor{Peer: p, Distance: 7})

	rawReq := []byte("simultaneous peering request bytes")
	m.cfg.Requests.Register(remote.ID(), request.KindPeering,
		wire.MessageHash(rawReq), nil)
	resp := &wire.PeeringResponse{
		RequestHash: wire.MessageHash(rawReq),
		Status:      true,
	}
	m.handlePacket(packetFrom(t, remote, resp, from))

	if m.outbound.Contains(remote.ID()) {
		t.Fatal("duplicate direction inserted into the outbound neighborhood")
	}
	if m.inbound.Contains(remote.ID()) {
		t.Fatal("inbound slot survived the duplicate-direction teardown")
	}

	sent := sender.takeSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1 drop request", len(sent))
	}
	if mt, _ := wire.PeekType(sent[0].raw); mt != wire.MTDropRequest {
		t.Fatalf("sent message is %v, want drop request", mt)
	}

	var outgoingFalse int
	for _, ev := range drainEvents(evs) {
		if out, ok := ev.(events.OutgoingPeering); ok && !out.Status {
			outgoingFalse++
		}
	}
	if outgoingFalse != 1 {
		t.Fatalf("OutgoingPeering(false) emitted %d times, want 1",
			outgoingFalse)
	}
}

// TestPeeringResponseDenied ensures a denial suppresses the peer in the
// filter and leaves the outbound neighborhood unchanged.
func TestPeeringResponseDenied(t *testing.T) {
	m, _, _ := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 6), Port: 14626}
	p := addPeer(m, remote, from, true)

	rawReq := []byte("denied peering request bytes")
	m.cfg.Requests.Register(remote.ID(), request.KindPeering,
		wire.MessageHash(rawReq), nil)
	resp := &wire.PeeringResponse{
		RequestHash: wire.MessageHash(rawReq),
		Status:      false,
	}
	m.handlePacket(packetFrom(t, remote, resp, from))

	if m.outbound.Len() != 0 {
		t.Fatal("denied peering mutated the outbound neighborhood")
	}
	if m.filter.Accepts(p) {
		t.Fatal("denying peer was not suppressed in the filter")
	}
}

// TestDropRequest ensures a drop removes the sender from both directions,
// suppresses it in the filter, and acknowledges drops of outbound neighbors.
func TestDropRequest(t *testing.T) {
	m, sender, evs := testManager(t, false)
	remote, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 14626}
	p := addPeer(m, remote, from, true)
	m.outbound.Insert(Neighbor{Peer: p, Distance: 9})

	drop := &wire.DropRequest{Timestamp: time.Now().Unix()}
	m.handlePacket(packetFrom(t, remote, drop, from))

	if m.outbound.Contains(remote.ID()) {
		t.Fatal("dropped peer still in the outbound neighborhood")
	}
	if m.filter.Accepts(p) {
		t.Fatal("dropped outbound neighbor was not suppressed in the filter")
	}
	sent := sender.takeSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1 drop acknowledgment", len(sent))
	}
	if mt, _ := wire.PeekType(sent[0].raw); mt != wire.MTDropRequest {
		t.Fatalf("acknowledgment is %v, want drop request", mt)
	}

	var dropped int
	for _, ev := range drainEvents(evs) {
		if d, ok := ev.(events.PeeringDropped); ok && d.ID == remote.ID() {
			dropped++
		}
	}
	if dropped != 1 {
		t.Fatalf("PeeringDropped emitted %d times, want 1", dropped)
	}

	// A drop for a peer that only held an inbound slot is not acknowledged.
	remote2, err := identity.NewLocalIdentity()
	if err != nil {
		t.Fatalf("NewLocalIdentity: %v", err)
	}
	from2 := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 8), Port: 14626}
	p2 := addPeer(m, remote2, from2, true)
	m.inbound.Insert(Neighbor{Peer: p2, Distance: 3})

	m.handlePacket(packetFrom(t, remote2, drop, from2))
	if m.inbound.Contains(remote2.ID()) {
		t.Fatal("dropped peer still in the inbound neighborhood")
	}
	if sent := sender.takeSent(); len(sent) != 0 {
		t.Fatalf("inbound-only drop sent %d messages, want 0", len(sent))
	}
}

// TestSaltRotationDropOnUpdate ensures the hard rotation policy empties both
// neighborhoods, notifies each neighbor with a drop request, resets the
// filter, and publishes exactly one SaltUpdated event.
func TestSaltRotationDropOnUpdate(t *testing.T) {
	m, sender, evs := testManager(t, true)

	in := testPeer(41)
	out := testPeer(42)
	m.inbound.Insert(Neighbor{Peer: in, Distance: 5})
	m.outbound.Insert(Neighbor{Peer: out, Distance: 6})
	m.filter.Block(testPeer(43).ID())

	oldPublic := m.PublicSalt()
	m.updateSalts()

	if m.inbound.Len() != 0 || m.outbound.Len() != 0 {
		t.Fatal("neighborhoods not cleared by the hard rotation policy")
	}
	sent := sender.takeSent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2 drop requests", len(sent))
	}
	for _, s := range sent {
		if mt, _ := wire.PeekType(s.raw); mt != wire.MTDropRequest {
			t.Fatalf("sent message is %v, want drop request", mt)
		}
	}
	if !m.filter.Accepts(testPeer(43)) {
		t.Fatal("filter not reset by the rotation")
	}
	if m.PublicSalt() == oldPublic {
		t.Fatal("public salt not rotated")
	}

	var saltUpdated int
	for _, ev := range drainEvents(evs) {
		if _, ok := ev.(events.SaltUpdated); ok {
			saltUpdated++
		}
	}
	if saltUpdated != 1 {
		t.Fatalf("SaltUpdated emitted %d times, want 1", saltUpdated)
	}
}

// TestSaltRotationSoft ensures the soft rotation policy keeps all neighbors
// and recomputes their distances under the new salts.
func TestSaltRotationSoft(t *testing.T) {
	m, sender, evs := testManager(t, false)

	in := testPeer(51)
	out := testPeer(52)
	m.inbound.Insert(Neighbor{Peer: in, Distance: 12345})
	m.outbound.Insert(Neighbor{Peer: out, Distance: 54321})

	m.updateSalts()

	if !m.inbound.Contains(in.ID()) || !m.outbound.Contains(out.ID()) {
		t.Fatal("soft rotation removed a neighbor")
	}
	if sent := sender.takeSent(); len(sent) != 0 {
		t.Fatalf("soft rotation sent %d messages, want 0", len(sent))
	}
	wantIn := salt.Distance(m.cfg.Local.ID(), in.ID(), m.PrivateSalt())
	if m.inbound.Neighbors()[0].Distance != wantIn {
		t.Fatal("inbound distance not recomputed under the new private salt")
	}
	wantOut := salt.Distance(m.cfg.Local.ID(), out.ID(), m.PublicSalt())
	if m.outbound.Neighbors()[0].Distance != wantOut {
		t.Fatal("outbound distance not recomputed under the new public salt")
	}

	var saltUpdated int
	for _, ev := range drainEvents(evs) {
		if _, ok := ev.(events.SaltUpdated); ok {
			saltUpdated++
		}
	}
	if saltUpdated != 1 {
		t.Fatalf("SaltUpdated emitted %d times, want 1", saltUpdated)
	}
}

// TestNextCandidate ensures the outbound candidate ranking prefers the
// closest verified peer under the public salt and excludes current neighbors
// and filtered peers.
func TestNextCandidate(t *testing.T) {
	m, _, _ := testManager(t, false)

	peers := make([]*peer.Peer, 0, 6)
	for seed := byte(61); seed <= 66; seed++ {
		p := testPeer(seed)
		m.cfg.Lists.Add(p)
		m.cfg.Lists.Active.MarkVerified(p.ID())
		peers = append(peers, p)
	}

	// Exclude one peer per mechanism: neighbor membership and the filter.
	m.outbound.Insert(Neighbor{Peer: peers[0], Distance: 0})
	m.filter.Block(peers[1].ID())

	candidate, dist, ok := m.nextCandidate()
	if !ok {
		t.Fatal("no candidate despite eligible verified peers")
	}
	if candidate.ID() == peers[0].ID() || candidate.ID() == peers[1].ID() {
		t.Fatal("excluded peer returned as candidate")
	}
	if dist != salt.Distance(m.cfg.Local.ID(), candidate.ID(), m.PublicSalt()) {
		t.Fatal("candidate distance does not match the public-salt metric")
	}
	for _, p := range peers[2:] {
		d := salt.Distance(m.cfg.Local.ID(), p.ID(), m.PublicSalt())
		if d < dist {
			t.Fatalf("candidate distance %d is not minimal (peer %v has %d)",
				dist, p, d)
		}
	}
}
