// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package discover implements the peer discovery half of the autopeering
// protocol: liveness verification of known peers and exchange of verified
// peer samples with them.
//
// The manager consumes verification and discovery packets from a queue fed
// by the server's demultiplexer, maintains the shared active and replacement
// lists, and runs the periodic re-verification and query schedulers.
package discover

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/tangleware/autopeerd/events"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/request"
	"github.com/tangleware/autopeerd/transport"
	"github.com/tangleware/autopeerd/wire"
)

const (
	// defaultRequestExpiry is the freshness window applied to inbound
	// request timestamps.
	defaultRequestExpiry = 20 * time.Second

	// defaultResponseTimeout is the bounded wait applied to correlated
	// responses before the request is abandoned.
	defaultResponseTimeout = 500 * time.Millisecond

	// defaultReverifyInterval is how often the least recently verified
	// active peer is re-verified.
	defaultReverifyInterval = 10 * time.Second

	// defaultQueryInterval is how often a random verified peer is asked
	// for new peers.
	defaultQueryInterval = time.Minute

	// maxPeersInResponse is the maximum number of peer records returned in
	// a discovery response.
	maxPeersInResponse = 6

	// minVerifiedInResponse is the minimum verified count a peer needs to
	// be included in a discovery response.
	minVerifiedInResponse = 1

	// packetQueueSize is the buffer size of the inbound packet queue.
	// Packets beyond it are dropped, matching the lossy UDP semantics
	// upstream.
	packetQueueSize = 64

	// commandQueueSize is the buffer size of the manual command queue.
	commandQueueSize = 8
)

// Config holds the configuration options related to the discovery manager.
type Config struct {
	// Local is the local node's identity, used as the self exclusion in
	// peer handling.
	Local *identity.LocalIdentity

	// Lists is the shared peer collection state.  It is shared with the
	// peering manager and the daemon.
	Lists *peer.Lists

	// Requests is the shared pending-request correlation table.
	Requests *request.Manager

	// Transport sends marshaled messages to remote peers.
	Transport transport.Sender

	// Services is the local service map advertised in verification
	// responses.  It must contain the peering service.
	Services peer.ServiceMap

	// Version is the autopeering protocol version to accept and send.
	Version uint32

	// NetworkID isolates disjoint deployments that share the protocol.
	NetworkID uint32

	// Events receives notifications for discovered and deleted peers.
	Events chan<- events.Event

	// RequestExpiry overrides the inbound timestamp freshness window.
	RequestExpiry time.Duration

	// ResponseTimeout overrides the bounded response wait.
	ResponseTimeout time.Duration

	// ReverifyInterval overrides the re-verification scheduler interval.
	ReverifyInterval time.Duration

	// QueryInterval overrides the discovery query scheduler interval.
	QueryInterval time.Duration
}

// command is a manual trigger submitted through the public API.
type command struct {
	kind request.Kind
	id   identity.PeerID
}

// Manager runs the verification and discovery state machines.
type Manager struct {
	started  int32
	shutdown int32

	cfg      Config
	packets  chan *transport.Packet
	commands chan command
	wg       sync.WaitGroup
	quit     chan struct{}
}

// New returns a new discovery manager based on the given configuration.
func New(cfg *Config) (*Manager, error) {
	switch {
	case cfg.Local == nil:
		return nil, fmt.Errorf("discovery manager requires a local identity")
	case cfg.Lists == nil:
		return nil, fmt.Errorf("discovery manager requires peer lists")
	case cfg.Requests == nil:
		return nil, fmt.Errorf("discovery manager requires a request manager")
	case cfg.Transport == nil:
		return nil, fmt.Errorf("discovery manager requires a transport")
	case cfg.Events == nil:
		return nil, fmt.Errorf("discovery manager requires an event channel")
	}
	if _, ok := cfg.Services[peer.ServicePeering]; !ok {
		return nil, fmt.Errorf("local service map must advertise the %q "+
			"service", peer.ServicePeering)
	}

	m := Manager{
		cfg:      *cfg,
		packets:  make(chan *transport.Packet, packetQueueSize),
		commands: make(chan command, commandQueueSize),
		quit:     make(chan struct{}),
	}
	if m.cfg.RequestExpiry <= 0 {
		m.cfg.RequestExpiry = defaultRequestExpiry
	}
	if m.cfg.ResponseTimeout <= 0 {
		m.cfg.ResponseTimeout = defaultResponseTimeout
	}
	if m.cfg.ReverifyInterval <= 0 {
		m.cfg.ReverifyInterval = defaultReverifyInterval
	}
	if m.cfg.QueryInterval <= 0 {
		m.cfg.QueryInterval = defaultQueryInterval
	}
	return &m, nil
}

// Start launches the packet handler and the periodic schedulers.
func (m *Manager) Start() {
	// Already started?
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}

	log.Trace("Starting discovery manager")
	m.wg.Add(2)
	go m.packetHandler()
	go m.scheduler()
}

// Stop gracefully shuts down the manager by stopping all asynchronous
// handlers and waiting for them to finish.
func (m *Manager) Stop() {
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		log.Warnf("Discovery manager is already in the process of shutting " +
			"down")
		return
	}

	log.Trace("Discovery manager shutting down")
	close(m.quit)
	m.wg.Wait()
}

// QueuePacket hands an inbound verification or discovery packet to the
// manager.  A full queue drops the packet, same as the network would.
func (m *Manager) QueuePacket(pkt *transport.Packet) {
	select {
	case m.packets <- pkt:
	default:
		log.Debugf("Discovery packet queue full, dropping packet from %v",
			pkt.SenderID.ShortString())
	}
}

// VerifyPeer manually triggers a verification of the given active peer.  It
// returns false when the peer is unknown or the manager is shutting down.
func (m *Manager) VerifyPeer(id identity.PeerID) bool {
	if _, ok := m.cfg.Lists.Active.Peer(id); !ok {
		return false
	}
	select {
	case m.commands <- command{kind: request.KindVerification, id: id}:
		return true
	case <-m.quit:
		return false
	}
}

// QueryPeer manually triggers a discovery query to the given active peer.
// It returns false when the peer is unknown or the manager is shutting down.
func (m *Manager) QueryPeer(id identity.PeerID) bool {
	if _, ok := m.cfg.Lists.Active.Peer(id); !ok {
		return false
	}
	select {
	case m.commands <- command{kind: request.KindDiscovery, id: id}:
		return true
	case <-m.quit:
		return false
	}
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

// packetHandler processes inbound packets and manual commands strictly in
// arrival order.  It must be run as a goroutine.
func (m *Manager) packetHandler() {
out:
	for {
		select {
		case pkt := <-m.packets:
			m.handlePacket(pkt)

		case cmd := <-m.commands:
			m.handleCommand(cmd)

		case <-m.quit:
			break out
		}
	}

	m.wg.Done()
	log.Trace("Discovery packet handler done")
}

// scheduler runs the periodic re-verification and query tasks.  It must be
// run as a goroutine.
func (m *Manager) scheduler() {
	reverifyTicker := time.NewTicker(m.cfg.ReverifyInterval)
	defer reverifyTicker.Stop()
	queryTicker := time.NewTicker(m.cfg.QueryInterval)
	defer queryTicker.Stop()

out:
	for {
		select {
		case <-reverifyTicker.C:
			m.reverifyNext()

		case <-queryTicker.C:
			m.queryRandom()

		case <-m.quit:
			break out
		}
	}

	m.wg.Done()
	log.Trace("Discovery scheduler done")
}

// handleCommand serves a manual verify or query trigger.  The bounded
// response wait runs on its own goroutine so command handling never stalls
// packet processing.
func (m *Manager) handleCommand(cmd command) {
	p, ok := m.cfg.Lists.Active.Peer(cmd.id)
	if !ok {
		log.Debugf("Ignoring %v command for unknown peer %v", cmd.kind,
			cmd.id.ShortString())
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		switch cmd.kind {
		case request.KindVerification:
			if !m.verifyPeer(p) {
				m.evictPeer(p.ID())
			}
		case request.KindDiscovery:
			m.queryPeer(p)
		}
	}()
}

// handlePacket decodes an inbound datagram and dispatches it on message
// type.  Malformed packets are dropped; one bad peer message never affects
// the processing of others.
func (m *Manager) handlePacket(pkt *transport.Packet) {
	msg, err := wire.Unmarshal(pkt.Bytes)
	if err != nil {
		log.Debugf("Dropping malformed packet from %v (%v): %v",
			pkt.SenderID.ShortString(), pkt.From, err)
		return
	}

	switch msg := msg.(type) {
	case *wire.VerificationRequest:
		m.handleVerificationRequest(pkt, msg)
	case *wire.VerificationResponse:
		m.handleVerificationResponse(pkt, msg)
	case *wire.DiscoveryRequest:
		m.handleDiscoveryRequest(pkt, msg)
	case *wire.DiscoveryResponse:
		m.handleDiscoveryResponse(pkt, msg)
	default:
		log.Debugf("Dropping unexpected %v message from %v", msg.Type(),
			pkt.SenderID.ShortString())
	}
}

// validateVerificationRequest applies the inbound verification request
// checks: protocol version, network id, and timestamp freshness.
func (m *Manager) validateVerificationRequest(msg *wire.VerificationRequest) error {
	if msg.Version != m.cfg.Version {
		desc := fmt.Sprintf("protocol version %d, expected %d", msg.Version,
			m.cfg.Version)
		return validationError(ErrVersionMismatch, desc)
	}
	if msg.NetworkID != m.cfg.NetworkID {
		desc := fmt.Sprintf("network id %d, expected %d", msg.NetworkID,
			m.cfg.NetworkID)
		return validationError(ErrNetworkMismatch, desc)
	}
	if m.expired(msg.Timestamp) {
		desc := fmt.Sprintf("request timestamp %d outside freshness window",
			msg.Timestamp)
		return validationError(ErrExpiredRequest, desc)
	}
	return nil
}

// handleVerificationRequest answers a liveness probe and bootstraps mutual
// verification: a valid request is always answered, the sender is added to
// the peer lists when unknown, and an unverified sender is probed right
// back.
func (m *Manager) handleVerificationRequest(pkt *transport.Packet, msg *wire.VerificationRequest) {
	if err := m.validateVerificationRequest(msg); err != nil {
		log.Debugf("Rejecting verification request from %v: %v",
			pkt.SenderID.ShortString(), err)
		return
	}

	resp := &wire.VerificationResponse{
		RequestHash: wire.MessageHash(pkt.Bytes),
		Services:    m.cfg.Services.Records(),
		DstIP:       pkt.From.IP,
	}
	raw, err := wire.Marshal(resp)
	if err != nil {
		log.Errorf("Failed to marshal verification response: %v", err)
		return
	}
	if err := m.cfg.Transport.Send(raw, pkt.From); err != nil {
		log.Debugf("Failed to send verification response to %v: %v",
			pkt.From, err)
		return
	}

	lists := m.cfg.Lists
	switch {
	case lists.Active.Contains(pkt.SenderID):
		lists.Active.TouchRequest(pkt.SenderID)
		if !lists.Active.Verified(pkt.SenderID) {
			if p, ok := lists.Active.Peer(pkt.SenderID); ok {
				m.sendVerificationRequest(p, nil)
			}
		}

	case lists.Replacements.Contains(pkt.SenderID):
		// Known but benched: re-probe so it is verified by the time a
		// backfill promotes it.
		if p, ok := lists.Replacements.Peer(pkt.SenderID); ok {
			m.sendVerificationRequest(p, nil)
		}

	default:
		p := peer.NewPeer(pkt.SenderPubKey, pkt.From.IP,
			uint16(pkt.From.Port), nil)
		if lists.Add(p) {
			log.Debugf("Added new peer %v from inbound verification request",
				p)
			m.sendVerificationRequest(p, nil)
		}
	}
}

// validateVerificationResponse correlates a response against the pending
// request table and checks the advertised services.  The pending entry is
// consumed on lookup, so a replayed response finds nothing.
func (m *Manager) validateVerificationResponse(pkt *transport.Packet, msg *wire.VerificationResponse) (peer.ServiceMap, request.Value, error) {
	val, ok := m.cfg.Requests.Take(pkt.SenderID, request.KindVerification)
	if !ok {
		return nil, val, validationError(ErrNoPendingRequest,
			"no pending verification request")
	}
	if msg.RequestHash != val.Hash {
		return nil, val, validationError(ErrHashMismatch,
			"response echoes an unknown request hash")
	}

	services := peer.ServicesFromRecords(msg.Services)
	ep, ok := services[peer.ServicePeering]
	if !ok {
		desc := fmt.Sprintf("response advertises no %q service",
			peer.ServicePeering)
		return nil, val, validationError(ErrMissingService, desc)
	}
	if int(ep.Port) != pkt.From.Port {
		desc := fmt.Sprintf("advertised peering port %d does not match "+
			"source port %d", ep.Port, pkt.From.Port)
		return nil, val, validationError(ErrPortMismatch, desc)
	}
	return services, val, nil
}

// handleVerificationResponse marks the sender verified, publishes its first
// discovery, and forwards the raw response to any waiting caller.
func (m *Manager) handleVerificationResponse(pkt *transport.Packet, msg *wire.VerificationResponse) {
	services, val, err := m.validateVerificationResponse(pkt, msg)
	if err != nil {
		log.Debugf("Rejecting verification response from %v: %v",
			pkt.SenderID.ShortString(), err)
		return
	}

	// Most recently verified peers move to the front of the active list.
	count, ok := m.cfg.Lists.Active.MarkVerified(pkt.SenderID)
	if ok && count == 1 {
		if p, found := m.cfg.Lists.Active.Peer(pkt.SenderID); found {
			p.SetServices(services)
			log.Infof("Discovered peer %v", p)
			m.notify(events.PeerDiscovered{ID: pkt.SenderID})
		}
	}

	if val.Response != nil {
		select {
		case val.Response <- pkt.Bytes:
		default:
		}
	}
}

// handleDiscoveryRequest answers with a random sample of verified peers.
func (m *Manager) handleDiscoveryRequest(pkt *transport.Packet, msg *wire.DiscoveryRequest) {
	if m.expired(msg.Timestamp) {
		log.Debugf("Rejecting discovery request from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrExpiredRequest, "request timestamp outside "+
				"freshness window"))
		return
	}

	resp := &wire.DiscoveryResponse{
		RequestHash: wire.MessageHash(pkt.Bytes),
		Peers:       m.randomPeerRecords(pkt.SenderID),
	}
	raw, err := wire.Marshal(resp)
	if err != nil {
		log.Errorf("Failed to marshal discovery response: %v", err)
		return
	}
	if err := m.cfg.Transport.Send(raw, pkt.From); err != nil {
		log.Debugf("Failed to send discovery response to %v: %v", pkt.From,
			err)
	}
}

// randomPeerRecords samples up to maxPeersInResponse verified peers
// excluding the requester.  Sampling a random permutation rather than a
// prefix avoids leaking the active list ordering to peers.
func (m *Manager) randomPeerRecords(exclude identity.PeerID) []wire.PeerRecord {
	peers := m.cfg.Lists.Active.VerifiedPeers(minVerifiedInResponse)
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})

	records := make([]wire.PeerRecord, 0, maxPeersInResponse)
	for _, p := range peers {
		if p.ID() == exclude {
			continue
		}
		records = append(records, *p.Record())
		if len(records) == maxPeersInResponse {
			break
		}
	}
	return records
}

// handleDiscoveryResponse adds the returned peers to the lists and records
// how many of them were previously unknown on the sender's metrics.
func (m *Manager) handleDiscoveryResponse(pkt *transport.Packet, msg *wire.DiscoveryResponse) {
	val, ok := m.cfg.Requests.Take(pkt.SenderID, request.KindDiscovery)
	if !ok {
		log.Debugf("Rejecting discovery response from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrNoPendingRequest, "no pending discovery "+
				"request"))
		return
	}
	if msg.RequestHash != val.Hash {
		log.Debugf("Rejecting discovery response from %v: %v",
			pkt.SenderID.ShortString(),
			validationError(ErrHashMismatch, "response echoes an unknown "+
				"request hash"))
		return
	}

	var added int
	for i := range msg.Peers {
		p := peer.FromRecord(&msg.Peers[i])
		if p.ID() == m.cfg.Local.ID() {
			continue
		}
		if m.cfg.Lists.Add(p) {
			added++
		}
	}
	m.cfg.Lists.Active.SetLastNewPeers(pkt.SenderID, added)
	if added > 0 {
		log.Debugf("Added %d new peers from discovery response from %v",
			added, pkt.SenderID.ShortString())
	}

	if val.Response != nil {
		select {
		case val.Response <- pkt.Bytes:
		default:
		}
	}
}

// sendVerificationRequest builds, registers, and transmits a verification
// request to the given peer.  The optional response channel receives the raw
// correlated response.
func (m *Manager) sendVerificationRequest(p *peer.Peer, response chan<- []byte) {
	local := m.cfg.Transport.LocalAddr()
	msg := &wire.VerificationRequest{
		Version:   m.cfg.Version,
		NetworkID: m.cfg.NetworkID,
		Timestamp: time.Now().Unix(),
		SrcIP:     local.IP,
		SrcPort:   uint16(local.Port),
		DstIP:     p.IP(),
	}
	raw, err := wire.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal verification request: %v", err)
		return
	}

	m.cfg.Requests.Register(p.ID(), request.KindVerification,
		wire.MessageHash(raw), response)
	if err := m.cfg.Transport.Send(raw, p.Addr()); err != nil {
		log.Debugf("Failed to send verification request to %v: %v", p, err)
		m.cfg.Requests.Remove(p.ID(), request.KindVerification)
	}
}

// sendDiscoveryRequest builds, registers, and transmits a discovery request
// to the given peer.
func (m *Manager) sendDiscoveryRequest(p *peer.Peer, response chan<- []byte) {
	msg := &wire.DiscoveryRequest{Timestamp: time.Now().Unix()}
	raw, err := wire.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal discovery request: %v", err)
		return
	}

	m.cfg.Requests.Register(p.ID(), request.KindDiscovery,
		wire.MessageHash(raw), response)
	if err := m.cfg.Transport.Send(raw, p.Addr()); err != nil {
		log.Debugf("Failed to send discovery request to %v: %v", p, err)
		m.cfg.Requests.Remove(p.ID(), request.KindDiscovery)
	}
}

// verifyPeer probes the given peer and waits for the correlated response
// within the configured timeout.  An unanswered request is abandoned and its
// correlation entry removed so a late response cannot match.
func (m *Manager) verifyPeer(p *peer.Peer) bool {
	response := make(chan []byte, 1)
	m.sendVerificationRequest(p, response)

	timer := time.NewTimer(m.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-response:
		return true
	case <-timer.C:
		m.cfg.Requests.Remove(p.ID(), request.KindVerification)
		return false
	case <-m.quit:
		return false
	}
}

// queryPeer asks the given peer for new peers and waits for the correlated
// response within the configured timeout.  Peer admission happens in the
// response handler; the return value only reports whether an answer arrived.
func (m *Manager) queryPeer(p *peer.Peer) bool {
	response := make(chan []byte, 1)
	m.sendDiscoveryRequest(p, response)

	timer := time.NewTimer(m.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-response:
		return true
	case <-timer.C:
		m.cfg.Requests.Remove(p.ID(), request.KindDiscovery)
		return false
	case <-m.quit:
		return false
	}
}

// evictPeer runs the eviction and backfill protocol for an unresponsive
// peer and publishes PeerDeleted when a verified peer was dropped.
func (m *Manager) evictPeer(id identity.PeerID) {
	removed, deleted, promoted := m.cfg.Lists.EvictActive(id)
	if removed == nil {
		return
	}
	log.Debugf("Evicted unresponsive peer %v", removed)
	if deleted {
		m.notify(events.PeerDeleted{ID: id})
	}
	if promoted != nil {
		log.Debugf("Promoted replacement peer %v into the active list",
			promoted)
	}
}

// reverifyNext re-verifies the peer at the back of the active list, which is
// the least recently verified one, and evicts it when it does not answer.
func (m *Manager) reverifyNext() {
	p, ok := m.cfg.Lists.Active.Back()
	if !ok {
		return
	}
	if !m.verifyPeer(p) {
		m.evictPeer(p.ID())
	}
}

// queryRandom asks a uniformly random verified peer for new peers.
func (m *Manager) queryRandom() {
	peers := m.cfg.Lists.Active.VerifiedPeers(minVerifiedInResponse)
	if len(peers) == 0 {
		return
	}
	m.queryPeer(peers[rand.IntN(len(peers))])
}
