// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/decred/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/tangleware/autopeerd/discover"
	"github.com/tangleware/autopeerd/events"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/peerstore"
	"github.com/tangleware/autopeerd/request"
	"github.com/tangleware/autopeerd/selection"
	"github.com/tangleware/autopeerd/transport"
	"github.com/tangleware/autopeerd/wire"
)

const (
	// peerDbName is the leveldb directory name under the data directory
	// that persists the known peer lists across restarts.
	peerDbName = "peers"

	// storeFlushInterval is how often the peer lists are flushed to the
	// peer store.  A final flush also happens on shutdown.
	storeFlushInterval = 5 * time.Minute

	// eventQueueSize is the buffer of the notification channel shared by
	// both managers.
	eventQueueSize = 128
)

// resolveEntryNode parses an entry node specification of the form
// base58pubkey@host:port into a contactable peer.  The hostname is resolved
// via DNS when it is not already an IP address, preferring IPv4 addresses and
// only falling back to IPv6 when permitted.
func resolveEntryNode(node string, noIPv6 bool) (*peer.Peer, error) {
	keyStr, addr, _ := strings.Cut(node, "@")
	keyBytes := base58.Decode(keyStr)
	if _, err := secp256k1.ParsePubKey(keyBytes); err != nil {
		return nil, fmt.Errorf("entry node %q has an invalid public "+
			"key: %w", node, err)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("entry node %q has a malformed "+
			"address: %w", node, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("entry node %q has an invalid port: %w",
			node, err)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve entry node "+
				"%q: %w", node, err)
		}
		for _, candidate := range ips {
			if candidate.To4() != nil {
				ip = candidate
				break
			}
			if ip == nil && !noIPv6 {
				ip = candidate
			}
		}
		if ip == nil {
			return nil, fmt.Errorf("entry node %q did not resolve "+
				"to a usable address", node)
		}
	}
	if noIPv6 && ip.To4() == nil {
		return nil, fmt.Errorf("entry node %q resolves to an IPv6 "+
			"address while IPv6 is disabled", node)
	}

	services := peer.ServiceMap{
		peer.ServicePeering: {Network: "udp", Port: uint16(port)},
	}
	return peer.NewPeer(keyBytes, ip, uint16(port), services), nil
}

// localServices builds the service map advertised in verification responses
// from the configured listen port and optional gossip port.
func localServices(cfg *config) (peer.ServiceMap, error) {
	_, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid listen port %q: %w", portStr, err)
	}

	services := peer.ServiceMap{
		peer.ServicePeering: {Network: "udp", Port: uint16(port)},
	}
	if cfg.GossipPort != 0 {
		services[peer.ServiceGossip] = peer.Endpoint{
			Network: "tcp",
			Port:    cfg.GossipPort,
		}
	}
	return services, nil
}

// server ties the transport, the shared peer state, and the two protocol
// managers together and routes inbound datagrams between them.
type server struct {
	cfg        *config
	local      *identity.LocalIdentity
	transport  *transport.UDPTransport
	store      *peerstore.Store
	lists      *peer.Lists
	requests   *request.Manager
	discovery  *discover.Manager
	selection  *selection.Manager
	events     chan events.Event
	entryPeers []*peer.Peer

	wg   sync.WaitGroup
	quit chan struct{}
}

// newServer constructs the autopeering server.  It opens the peer store,
// restores the previously known peers, resolves the configured entry nodes,
// and binds the UDP listener, but does not start any of the handling
// goroutines.  Use Run to activate the server.
func newServer(cfg *config, local *identity.LocalIdentity) (*server, error) {
	store, err := peerstore.Open(filepath.Join(cfg.DataDir, peerDbName))
	if err != nil {
		return nil, fmt.Errorf("unable to open peer store: %w", err)
	}

	lists := peer.NewLists(cfg.MaxActive, cfg.MaxReplacements)

	// Restore the lists from the previous run.  Restored peers start
	// unverified and must pass verification again before they are handed
	// out or selected.
	restoredActive, err := store.FetchAllActive()
	if err != nil {
		store.Close()
		return nil, err
	}
	restoredRepl, err := store.FetchAllReplacements()
	if err != nil {
		store.Close()
		return nil, err
	}
	var restored int
	for _, p := range restoredActive {
		if p.ID() == local.ID() {
			continue
		}
		if lists.Add(p) {
			restored++
		}
	}
	for _, p := range restoredRepl {
		if p.ID() == local.ID() {
			continue
		}
		if lists.Replacements.Insert(p) {
			restored++
		}
	}
	if restored > 0 {
		apdLog.Infof("Restored %d known peers from the peer store",
			restored)
	}

	// Entry nodes are added to the active list and pinned so an outage
	// can never strip the node of all bootstrap contacts.
	entryPeers := make([]*peer.Peer, 0, len(cfg.EntryNodes))
	for _, node := range cfg.EntryNodes {
		p, err := resolveEntryNode(node, cfg.NoIPv6)
		if err != nil {
			store.Close()
			return nil, err
		}
		if p.ID() == local.ID() {
			apdLog.Warnf("Ignoring entry node %v that refers to the "+
				"local node", p)
			continue
		}
		lists.Entries.Add(p.ID())
		if !lists.Active.Contains(p.ID()) {
			lists.Replacements.Remove(p.ID())
			lists.Active.InsertIfRoom(p)
		}
		entryPeers = append(entryPeers, p)
	}

	services, err := localServices(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	trans, err := transport.ListenUDP(cfg.Listen, local)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("unable to listen on %q: %w", cfg.Listen,
			err)
	}

	requests := request.NewManager()
	eventCh := make(chan events.Event, eventQueueSize)

	discovery, err := discover.New(&discover.Config{
		Local:     local,
		Lists:     lists,
		Requests:  requests,
		Transport: trans,
		Services:  services,
		Version:   wire.ProtocolVersion,
		NetworkID: cfg.NetworkID,
		Events:    eventCh,
	})
	if err != nil {
		trans.Close()
		store.Close()
		return nil, err
	}

	sel, err := selection.New(&selection.Config{
		Local:        local,
		Lists:        lists,
		Requests:     requests,
		Transport:    trans,
		Events:       eventCh,
		Validator:    selection.ServiceValidator{},
		InboundCap:   cfg.MaxInbound,
		OutboundCap:  cfg.MaxOutbound,
		SaltLifetime: cfg.SaltLifetime,
		DropOnUpdate: cfg.DropOnSaltUpdate,
	})
	if err != nil {
		trans.Close()
		store.Close()
		return nil, err
	}

	return &server{
		cfg:        cfg,
		local:      local,
		transport:  trans,
		store:      store,
		lists:      lists,
		requests:   requests,
		discovery:  discovery,
		selection:  sel,
		events:     eventCh,
		entryPeers: entryPeers,
		quit:       make(chan struct{}),
	}, nil
}

// dispatchHandler routes inbound packets to the manager responsible for the
// message type.  It exits when the transport receive channel is closed.
func (s *server) dispatchHandler() {
	defer s.wg.Done()

	for pkt := range s.transport.Receive() {
		mt, ok := wire.PeekType(pkt.Bytes)
		if !ok {
			apdLog.Debugf("Dropping empty datagram from %v", pkt.From)
			continue
		}
		switch mt {
		case wire.MTVerificationRequest, wire.MTVerificationResponse,
			wire.MTDiscoveryRequest, wire.MTDiscoveryResponse:

			s.discovery.QueuePacket(pkt)

		case wire.MTPeeringRequest, wire.MTPeeringResponse,
			wire.MTDropRequest:

			s.selection.QueuePacket(pkt)

		default:
			apdLog.Debugf("Dropping datagram with unknown type %d "+
				"from %v", mt, pkt.From)
		}
	}

	apdLog.Trace("Dispatch handler done")
}

// eventHandler logs the notifications published by the managers.  Downstream
// consumers such as a gossip layer would subscribe here instead.
func (s *server) eventHandler() {
	defer s.wg.Done()

out:
	for {
		select {
		case ev := <-s.events:
			switch ev := ev.(type) {
			case events.PeerDiscovered:
				apdLog.Infof("New peer discovered: %v", ev.ID)
			case events.PeerDeleted:
				apdLog.Infof("Peer deleted: %v", ev.ID)
			case events.IncomingPeering:
				apdLog.Infof("Accepted inbound neighbor %v "+
					"(distance %d)", ev.Peer, ev.Distance)
			case events.OutgoingPeering:
				if ev.Status {
					apdLog.Infof("Added outbound neighbor %v "+
						"(distance %d)", ev.Peer, ev.Distance)
				} else {
					apdLog.Debugf("Peering request to %v "+
						"denied", ev.Peer)
				}
			case events.PeeringDropped:
				apdLog.Infof("Dropped neighbor %v", ev.ID)
			case events.SaltUpdated:
				apdLog.Infof("Salts updated, public expires %v",
					ev.PublicExpiry)
			}

		case <-s.quit:
			break out
		}
	}

	apdLog.Trace("Event handler done")
}

// flushPeers persists both peer lists to the peer store.
func (s *server) flushPeers() {
	if err := s.store.FlushActive(s.lists.Active.Peers()); err != nil {
		apdLog.Errorf("Unable to flush active peers: %v", err)
	}
	if err := s.store.FlushReplacements(s.lists.Replacements.Peers()); err != nil {
		apdLog.Errorf("Unable to flush replacement peers: %v", err)
	}
}

// flushHandler periodically persists the peer lists so a restart starts from
// a recent view of the network.
func (s *server) flushHandler() {
	defer s.wg.Done()

	ticker := time.NewTicker(storeFlushInterval)
	defer ticker.Stop()

out:
	for {
		select {
		case <-ticker.C:
			s.flushPeers()

		case <-s.quit:
			break out
		}
	}

	apdLog.Trace("Flush handler done")
}

// bootstrap kicks verification and discovery against the configured entry
// nodes and any restored peers so the lists fill without waiting for inbound
// traffic.
func (s *server) bootstrap() {
	for _, p := range s.entryPeers {
		apdLog.Infof("Bootstrapping from entry node %v", p)
		if s.discovery.VerifyPeer(p.ID()) {
			s.discovery.QueryPeer(p.ID())
		}
	}
	for _, p := range s.lists.Active.Peers() {
		if s.lists.Entries.Contains(p.ID()) {
			continue
		}
		s.discovery.VerifyPeer(p.ID())
	}
}

// Run starts the server and blocks until the provided context is cancelled.
// All handling goroutines are stopped, the peer lists are flushed, and the
// peer store is closed before it returns.
func (s *server) Run(ctx context.Context) {
	apdLog.Infof("Node identity %v listening on %v", s.local.ID(),
		s.transport.LocalAddr())

	s.discovery.Start()
	s.selection.Start()

	s.wg.Add(3)
	go s.dispatchHandler()
	go s.eventHandler()
	go s.flushHandler()

	s.bootstrap()

	// Block until the context is cancelled.
	<-ctx.Done()
	apdLog.Info("Server shutting down...")

	// Closing the transport closes the receive channel and unblocks the
	// dispatch handler.  The managers are stopped afterwards so every
	// already queued packet is still drained.
	s.transport.Close()
	s.discovery.Stop()
	s.selection.Stop()

	close(s.quit)
	s.wg.Wait()

	s.flushPeers()
	if err := s.store.Close(); err != nil {
		apdLog.Errorf("Unable to close peer store: %v", err)
	}
	apdLog.Info("Server shutdown complete")
}
