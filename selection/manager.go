// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package selection implements the neighbor selection half of the
// autopeering protocol: negotiating inbound and outbound neighbor slots with
// verified peers ranked by the salt-biased distance metric, and rotating the
// local salts that bias the ranking.
package selection

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tangleware/autopeerd/events"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/request"
	"github.com/tangleware/autopeerd/salt"
	"github.com/tangleware/autopeerd/transport"
	"github.com/tangleware/autopeerd/wire"
)

const (
	// defaultInboundCap and defaultOutboundCap are the neighbor slot counts
	// per direction.
	defaultInboundCap  = 4
	defaultOutboundCap = 4

	// defaultSaltLifetime is how long the local salts remain valid.
	defaultSaltLifetime = 2 * time.Hour

	// saltRotationMargin is subtracted from the salt lifetime to rotate
	// before the previous salts can expire while in use.
	saltRotationMargin = 5 * time.Minute

	// defaultRequestExpiry is the freshness window applied to inbound
	// request timestamps.
	defaultRequestExpiry = 20 * time.Second

	// defaultResponseTimeout is the bounded wait applied to correlated
	// responses before the request is abandoned.
	defaultResponseTimeout = 500 * time.Millisecond

	// defaultUpdateInterval is how often the outbound neighborhood is
	// filled from the candidate ranking.
	defaultUpdateInterval = time.Second

	// packetQueueSize is the buffer size of the inbound packet queue.
	packetQueueSize = 64
)

// Config holds the configuration options related to the peering manager.
type Config struct {
	// Local is the local node's identity.  Both distance biases are
	// computed against it.
	Local *identity.LocalIdentity

	// Lists is the shared peer collection state.  Only verified active
	// peers take part in peering.
	Lists *peer.Lists

	// Requests is the shared pending-request correlation table.
	Requests *request.Manager

	// Transport sends marshaled messages to remote peers.
	Transport transport.Sender

	// Events receives peering lifecycle notifications.
	Events chan<- events.Event

	// Validator is the pluggable neighbor acceptance policy.  It may be
	// nil, in which case every verified peer is acceptable.
	Validator NeighborValidator

	// InboundCap and OutboundCap override the neighbor slot counts.
	InboundCap  int
	OutboundCap int

	// SaltLifetime overrides how long the local salts remain valid.
	SaltLifetime time.Duration

	// DropOnUpdate selects the hard salt rotation policy: drop every
	// neighbor and reset the filter instead of recomputing distances in
	// place.
	DropOnUpdate bool

	// RequestExpiry overrides the inbound timestamp freshness window.
	RequestExpiry time.Duration

	// ResponseTimeout overrides the bounded response wait.
	ResponseTimeout time.Duration

	// UpdateInterval overrides the outbound update scheduler interval.
	UpdateInterval time.Duration
}

// Manager runs the peering state machine and owns the local salts, both
// neighborhoods, and the neighbor filter.
type Manager struct {
	started  int32
	shutdown int32

	cfg      Config
	inbound  *Neighborhood
	outbound *Neighborhood
	filter   *NeighborFilter

	saltMtx     sync.RWMutex
	privateSalt *salt.Salt
	publicSalt  *salt.Salt

	packets chan *transport.Packet
	wg      sync.WaitGroup
	quit    chan struct{}
}

// New returns a new peering manager based on the given configuration.
func New(cfg *Config) (*Manager, error) {
	switch {
	case cfg.Local == nil:
		return nil, fmt.Errorf("peering manager requires a local identity")
	case cfg.Lists == nil:
		return nil, fmt.Errorf("peering manager requires peer lists")
	case cfg.Requests == nil:
		return nil, fmt.Errorf("peering manager requires a request manager")
	case cfg.Transport == nil:
		return nil, fmt.Errorf("peering manager requires a transport")
	case cfg.Events == nil:
		return nil, fmt.Errorf("peering manager requires an event channel")
	}

	m := Manager{
		cfg:     *cfg,
		packets: make(chan *transport.Packet, packetQueueSize),
		quit:    make(chan struct{}),
	}
	if m.cfg.InboundCap <= 0 {
		m.cfg.InboundCap = defaultInboundCap
	}
	if m.cfg.OutboundCap <= 0 {
		m.cfg.OutboundCap = defaultOutboundCap
	}
	if m.cfg.SaltLifetime <= 0 {
		m.cfg.SaltLifetime = defaultSaltLifetime
	}
	if m.cfg.RequestExpiry <= 0 {
		m.cfg.RequestExpiry = defaultRequestExpiry
	}
	if m.cfg.ResponseTimeout <= 0 {
		m.cfg.ResponseTimeout = defaultResponseTimeout
	}
	if m.cfg.UpdateInterval <= 0 {
		m.cfg.UpdateInterval = defaultUpdateInterval
	}

	m.inbound = NewNeighborhood(m.cfg.InboundCap)
	m.outbound = NewNeighborhood(m.cfg.OutboundCap)
	m.filter = NewNeighborFilter(m.cfg.Validator, m.cfg.SaltLifetime)
	m.privateSalt = salt.NewSalt(m.cfg.SaltLifetime)
	m.publicSalt = salt.NewSalt(m.cfg.SaltLifetime)
	return &m, nil
}

// Start launches the packet handler and the periodic schedulers.
func (m *Manager) Start() {
	// Already started?
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}

	log.Trace("Starting peering manager")
	m.wg.Add(2)
	go m.packetHandler()
	go m.scheduler()
}

// Stop gracefully shuts down the manager by stopping all asynchronous
// handlers and waiting for them to finish.
func (m *Manager) Stop() {
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		log.Warnf("Peering manager is already in the process of shutting " +
			"down")
		return
	}

	log.Trace("Peering manager shutting down")
	close(m.quit)
	m.wg.Wait()
}

// QueuePacket hands an inbound peering or drop packet to the manager.  A
// full queue drops the packet, same as the network would.
func (m *Manager) QueuePacket(pkt *transport.Packet) {
	select {
	case m.packets <- pkt:
	default:
		log.Debugf("Peering packet queue full, dropping packet from %v",
			pkt.SenderID.ShortString())
	}
}

// PrivateSalt returns the salt biasing inbound neighbor distances.
func (m *Manager) PrivateSalt() *salt.Salt {
	m.saltMtx.RLock()
	defer m.saltMtx.RUnlock()
	return m.privateSalt
}

// PublicSalt returns the salt biasing outbound neighbor distances.
func (m *Manager) PublicSalt() *salt.Salt {
	m.saltMtx.RLock()
	defer m.saltMtx.RUnlock()
	return m.publicSalt
}

// Neighbors returns the current inbound and outbound neighbor peers in
// ascending distance order.
func (m *Manager) Neighbors() (inbound, outbound []*peer.Peer) {
	return m.inbound.Peers(), m.outbound.Peers()
}

// notify publishes an event unless the manager is shutting down.
func (m *Manager) notify(ev events.Event) {
	select {
	case m.cfg.Events <- ev:
	case <-m.quit:
	}
}

// expired returns whether a request timestamp is older than the freshness
// window.
func (m *Manager) expired(ts int64) bool {
	return time.Since(time.Unix(ts, 0)) > m.cfg.RequestExpiry
}

// packetHandler processes inbound packets strictly in arrival order.  It
// must be run as a goroutine.
func (m *Manager) packetHandler() {
out:
	for {
		select {
		case pkt := <-m.packets:
			m.handlePacket(pkt)

		case <-m.quit:
			break out
		}
	}

	m.wg.Done()
	log.Trace("Peering packet handler done")
}

// scheduler runs the outbound update and salt rotation tasks.  It must be
// run as a goroutine.
func (m *Manager) scheduler() {
	rotation := m.cfg.SaltLifetime - saltRotationMargin
	if rotation <= 0 {
		rotation = m.cfg.SaltLifetime / 2
	}
	saltTicker := time.NewTicker(rotation)
	defer saltTicker.Stop()
	updateTicker := time.NewTicker(m.cfg.UpdateInterval)
	defer updateTicker.Stop()

out:
	for {
		select {
		case <-updateTicker.C:
			m.updateOutbound()

		case <-saltTicker.C:
			m.updateSalts()

		case <-m.quit:
			break out
		}
	}

	m.wg.Done()
	log.Trace("Peering scheduler done")
}

// handlePacket decodes an inbound datagram and dispatches it on message
// type.
func (m *Manager) handlePacket(pkt *transport.Packet) {
	msg, err := wire.Unmarshal(pkt.Bytes)
	if err != nil {
		log.Debugf("Dropping malformed packet from %v (%v): %v",
			pkt.SenderID.ShortString(), pkt.From, err)
		return
	}

	switch msg := msg.(type) {
	case *wire.PeeringRequest:
		m.handlePeeringRequest(pkt, msg)
	case *wire.PeeringResponse:
		m.handlePeeringResponse(pkt, msg)
	case *wire.DropRequest:
		m.handleDropRequest(pkt, msg)
	default:
		log.Debugf("Dropping unexpected %v message from %v", msg.Type(),
			pkt.SenderID.ShortString())
	}
}

// validatePeeringRequest applies the inbound peering request checks that
// cause a silent drop: timestamp freshness and offered salt validity.
func (m *Manager) validatePeeringRequest(msg *wire.PeeringRequest) error {
	if m.expired(msg.Timestamp) {
		desc := fmt.Sprintf("request timestamp %d outside freshness window",
			msg.Timestamp)
		return validationError(ErrExpiredRequest, desc)
	}
	remoteSalt, err := salt.FromBytes(msg.SaltBytes,
		time.Unix(msg.SaltExpiry, 0))
	if err != nil {
		return validationError(ErrExpiredSalt, err.Error())
	}
	if remoteSalt.Expired() {
		return validationError(ErrExpiredSalt, "offered salt is expired")
	}
	return nil
}

// handlePeeringRequest decides whether the sender gets an inbound neighbor
// slot and always answers with the decision.  An unverified sender is denied
// rather than dropped so it learns the attempt was futile.  The distance is
// biased by the local private salt, which only this node knows ahead of
// time, so remote nodes cannot position themselves for a guaranteed slot.
func (m *Manager) handlePeeringRequest(pkt *transport.Packet, msg *wire.PeeringRequest) {
	if err := m.validatePeeringRequest(msg); err != nil {
		log.Debugf("Rejecting peering request from %v: %v",
			pkt.SenderID.ShortString(), err)
		return
	}

	var status bool
	if m.cfg.Lists.Active.Verified(pkt.SenderID) {
		if p, ok := m.cfg.Lists.Active.Peer(pkt.SenderID); ok && m.filter.Accepts(p) {
			dist := salt.Distance(m.cfg.Local.ID(), pkt.SenderID,
				m.PrivateSalt())
			candidate := Neighbor{Peer: p, Distance: dist}
			if evict, ok := m.inbound.Select(candidate); ok {
				if evict != nil {
					m.dropNeighbor(m.inbound, evict.ID())
				}
				m.inbound.Insert(candidate)
				m.filter.Block(p.ID())
				status = true
				log.Infof("Peered with %v (inbound, distance %d)", p, dist)
				m.notify(events.IncomingPeering{Peer: p, Distance: dist})
			}
		}
	} else {
		log.Debugf("Denying peering request from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrPeerNotVerified, "sender has no successful "+
				"verification"))
	}

	resp := &wire.PeeringResponse{
		RequestHash: wire.MessageHash(pkt.Bytes),
		Status:      status,
	}
	raw, err := wire.Marshal(resp)
	if err != nil {
		log.Errorf("Failed to marshal peering response: %v", err)
		return
	}
	if err := m.cfg.Transport.Send(raw, pkt.From); err != nil {
		log.Debugf("Failed to send peering response to %v: %v", pkt.From, err)
	}
}

// handlePeeringResponse finalizes an outbound peering attempt.  A granted
// slot is inserted into the outbound neighborhood unless both sides proposed
// simultaneously, in which case the relationship is torn down again to keep
// a single direction per pair.
func (m *Manager) handlePeeringResponse(pkt *transport.Packet, msg *wire.PeeringResponse) {
	val, ok := m.cfg.Requests.Take(pkt.SenderID, request.KindPeering)
	if !ok {
		log.Debugf("Rejecting peering response from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrNoPendingRequest, "no pending peering "+
				"request"))
		return
	}
	if msg.RequestHash != val.Hash {
		log.Debugf("Rejecting peering response from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrHashMismatch, "response echoes an unknown "+
				"request hash"))
		return
	}

	if val.Response != nil {
		select {
		case val.Response <- pkt.Bytes:
		default:
		}
	}

	p, ok := m.cfg.Lists.Active.Peer(pkt.SenderID)
	if !ok {
		log.Debugf("Dropping peering response from %v: sender no longer "+
			"active", pkt.SenderID.ShortString())
		return
	}
	dist := salt.Distance(m.cfg.Local.ID(), pkt.SenderID, m.PublicSalt())

	if !msg.Status {
		// Remember the rejection so the candidate ranking skips this peer
		// until the filter entry expires.
		m.filter.Block(pkt.SenderID)
		m.notify(events.OutgoingPeering{Peer: p, Distance: dist,
			Status: false})
		return
	}

	// Both sides proposed at the same time.  Keep the inbound relationship
	// and tear the duplicate direction down again.
	if m.inbound.Contains(pkt.SenderID) {
		m.notify(events.OutgoingPeering{Peer: p, Distance: dist,
			Status: false})
		m.dropNeighbor(m.inbound, pkt.SenderID)
		return
	}

	evict, ok := m.outbound.Select(Neighbor{Peer: p, Distance: dist})
	if !ok {
		// The slot situation changed while the request was in flight.
		m.sendDropRequest(p)
		m.notify(events.OutgoingPeering{Peer: p, Distance: dist,
			Status: false})
		return
	}
	if evict != nil {
		m.dropNeighbor(m.outbound, evict.ID())
	}
	m.outbound.Insert(Neighbor{Peer: p, Distance: dist})
	log.Infof("Peered with %v (outbound, distance %d)", p, dist)
	m.notify(events.OutgoingPeering{Peer: p, Distance: dist, Status: true})
}

// handleDropRequest terminates the neighbor relationship with the sender.
// A drop that removed an outbound neighbor is acknowledged with an echoed
// drop so the remote forgets the reverse direction too.
func (m *Manager) handleDropRequest(pkt *transport.Packet, msg *wire.DropRequest) {
	if m.expired(msg.Timestamp) {
		log.Debugf("Rejecting drop request from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrExpiredRequest, "request timestamp outside "+
				"freshness window"))
		return
	}

	_, removedIn := m.inbound.Remove(pkt.SenderID)
	_, removedOut := m.outbound.Remove(pkt.SenderID)
	if removedOut {
		m.filter.Block(pkt.SenderID)
		m.sendDropTo(pkt.From)
	}
	if removedIn || removedOut {
		log.Infof("Dropped neighbor %v on request", pkt.SenderID.ShortString())
		m.notify(events.PeeringDropped{ID: pkt.SenderID})
	}
}

// dropNeighbor removes a neighbor from the given neighborhood, tells the
// remote, and publishes the termination.
func (m *Manager) dropNeighbor(hood *Neighborhood, id identity.PeerID) {
	p, ok := hood.Remove(id)
	if !ok {
		return
	}
	m.sendDropRequest(p)
	m.notify(events.PeeringDropped{ID: id})
}

// sendDropRequest tells the given peer the neighbor relationship ended.
func (m *Manager) sendDropRequest(p *peer.Peer) {
	m.sendDropTo(p.Addr())
}

// sendDropTo sends a drop request to the given address.
func (m *Manager) sendDropTo(to *net.UDPAddr) {
	msg := &wire.DropRequest{Timestamp: time.Now().Unix()}
	raw, err := wire.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal drop request: %v", err)
		return
	}
	if err := m.cfg.Transport.Send(raw, to); err != nil {
		log.Debugf("Failed to send drop request to %v: %v", to, err)
	}
}

// updateSalts rotates both local salts.  Depending on the configured policy
// the rotation either drops every neighbor, since all previous distances are
// void, or recomputes the distances in place.
func (m *Manager) updateSalts() {
	private := salt.NewSalt(m.cfg.SaltLifetime)
	public := salt.NewSalt(m.cfg.SaltLifetime)
	m.saltMtx.Lock()
	m.privateSalt = private
	m.publicSalt = public
	m.saltMtx.Unlock()

	if m.cfg.DropOnUpdate {
		for _, p := range m.inbound.Clear() {
			m.sendDropRequest(p)
			m.notify(events.PeeringDropped{ID: p.ID()})
		}
		for _, p := range m.outbound.Clear() {
			m.sendDropRequest(p)
			m.notify(events.PeeringDropped{ID: p.ID()})
		}
		m.filter.Reset()
	} else {
		m.inbound.UpdateDistances(m.cfg.Local.ID(), private)
		m.outbound.UpdateDistances(m.cfg.Local.ID(), public)
	}

	log.Debugf("Rotated local salts, valid until %v",
		public.ExpirationTime())
	m.notify(events.SaltUpdated{
		PublicExpiry:  public.ExpirationTime(),
		PrivateExpiry: private.ExpirationTime(),
	})
}

// nextCandidate returns the verified peer with the smallest public-salt
// distance that is not already a neighbor, passes the filter, and would be
// admitted by the outbound neighborhood.
func (m *Manager) nextCandidate() (*peer.Peer, uint32, bool) {
	verified := m.cfg.Lists.Active.VerifiedPeers(1)
	public := m.PublicSalt()
	localID := m.cfg.Local.ID()

	type scored struct {
		p    *peer.Peer
		dist uint32
	}
	candidates := make([]scored, 0, len(verified))
	for _, p := range verified {
		id := p.ID()
		if m.inbound.Contains(id) || m.outbound.Contains(id) {
			continue
		}
		if !m.filter.Accepts(p) {
			continue
		}
		candidates = append(candidates, scored{
			p:    p,
			dist: salt.Distance(localID, id, public),
		})
	}
	if len(candidates) == 0 {
		return nil, 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})

	best := candidates[0]
	if _, ok := m.outbound.Select(Neighbor{Peer: best.p, Distance: best.dist}); !ok {
		return nil, 0, false
	}
	return best.p, best.dist, true
}

// updateOutbound proposes a peering to the best outbound candidate, if any,
// and paces itself by waiting for the correlated response.  The structural
// changes happen in handlePeeringResponse on the packet handler.
func (m *Manager) updateOutbound() {
	p, dist, ok := m.nextCandidate()
	if !ok {
		return
	}
	log.Debugf("Requesting peering with %v (distance %d)", p, dist)

	public := m.PublicSalt()
	msg := &wire.PeeringRequest{
		Timestamp:  time.Now().Unix(),
		SaltBytes:  public.Bytes(),
		SaltExpiry: public.ExpirationTime().Unix(),
	}
	raw, err := wire.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal peering request: %v", err)
		return
	}

	response := make(chan []byte, 1)
	m.cfg.Requests.Register(p.ID(), request.KindPeering,
		wire.MessageHash(raw), response)
	if err := m.cfg.Transport.Send(raw, p.Addr()); err != nil {
		log.Debugf("Failed to send peering request to %v: %v", p, err)
		m.cfg.Requests.Remove(p.ID(), request.KindPeering)
		return
	}

	timer := time.NewTimer(m.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-response:
	case <-timer.C:
		m.cfg.Requests.Remove(p.ID(), request.KindPeering)
	case <-m.quit:
	}
}
