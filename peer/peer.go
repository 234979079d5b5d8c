// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer provides the peer representation used by the autopeering
// subsystem along with concurrency safe bounded collections of peers:
// the active list, the replacement list, and the entry node set.
package peer

import (
	"fmt"
	"net"
	"sync"

	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/wire"
)

// Well-known service keys.
const (
	// ServicePeering is the service key every autopeering-capable peer must
	// advertise.  Its absence is a hard validation failure.
	ServicePeering = "peering"

	// ServiceGossip is the service key of the gossip layer endpoint.
	ServiceGossip = "gossip"
)

// Endpoint is the transport endpoint of a single named service.
type Endpoint struct {
	Network string
	Port    uint16
}

// ServiceMap maps service keys to their endpoints.
type ServiceMap map[string]Endpoint

// Records converts the service map to its wire form with a stable ordering
// that places the peering service first.
func (s ServiceMap) Records() []wire.Service {
	records := make([]wire.Service, 0, len(s))
	if ep, ok := s[ServicePeering]; ok {
		records = append(records, wire.Service{
			Key:     ServicePeering,
			Network: ep.Network,
			Port:    ep.Port,
		})
	}
	for key, ep := range s {
		if key == ServicePeering {
			continue
		}
		records = append(records, wire.Service{
			Key:     key,
			Network: ep.Network,
			Port:    ep.Port,
		})
	}
	return records
}

// ServicesFromRecords converts wire service records to a service map.
func ServicesFromRecords(records []wire.Service) ServiceMap {
	s := make(ServiceMap, len(records))
	for _, rec := range records {
		s[rec.Key] = Endpoint{Network: rec.Network, Port: rec.Port}
	}
	return s
}

// Peer represents a remote node on the autopeering network.  The identity,
// public key, and contact address are immutable; the service map is set
// exactly once, on the first successful verification.
type Peer struct {
	id        identity.PeerID
	publicKey []byte
	ip        net.IP
	port      uint16

	mtx      sync.RWMutex
	services ServiceMap
}

// NewPeer creates a peer from its serialized public key and peering contact
// address.  The services map may be nil for peers that have not been
// verified yet.
func NewPeer(publicKey []byte, ip net.IP, port uint16, services ServiceMap) *Peer {
	return &Peer{
		id:        identity.NewID(publicKey),
		publicKey: publicKey,
		ip:        ip,
		port:      port,
		services:  services,
	}
}

// FromRecord rebuilds a peer from its wire record form.
func FromRecord(rec *wire.PeerRecord) *Peer {
	var services ServiceMap
	if len(rec.Services) > 0 {
		services = ServicesFromRecords(rec.Services)
	}
	return NewPeer(rec.PublicKey, rec.IP, rec.Port, services)
}

// ID returns the peer identity.
func (p *Peer) ID() identity.PeerID {
	return p.id
}

// PublicKey returns the peer's serialized public key.
func (p *Peer) PublicKey() []byte {
	return p.publicKey
}

// IP returns the peer's IP address.
func (p *Peer) IP() net.IP {
	return p.ip
}

// Port returns the peer's contact port.
func (p *Peer) Port() uint16 {
	return p.port
}

// Addr returns the UDP address autopeering protocol messages for the peer
// are sent to.
func (p *Peer) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.ip, Port: int(p.port)}
}

// Services returns the peer's service map, or nil when the peer has not been
// verified yet.
func (p *Peer) Services() ServiceMap {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.services
}

// SetServices stores the peer's advertised services.  The map is only set
// once; later calls are ignored.
func (p *Peer) SetServices(services ServiceMap) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.services == nil {
		p.services = services
	}
}

// HasService returns whether the peer advertises the given service.
func (p *Peer) HasService(key string) bool {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	_, ok := p.services[key]
	return ok
}

// PeeringAddr returns the UDP address of the peer's advertised peering
// service, which may differ from the contact address on multihomed nodes.
func (p *Peer) PeeringAddr() (*net.UDPAddr, error) {
	p.mtx.RLock()
	ep, ok := p.services[ServicePeering]
	p.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("peer %v does not advertise the %q service",
			p.id.ShortString(), ServicePeering)
	}
	return &net.UDPAddr{IP: p.ip, Port: int(ep.Port)}, nil
}

// Record converts the peer to its wire record form.
func (p *Peer) Record() *wire.PeerRecord {
	p.mtx.RLock()
	services := p.services
	p.mtx.RUnlock()
	return &wire.PeerRecord{
		PublicKey: p.publicKey,
		IP:        p.ip,
		Port:      p.port,
		Services:  services.Records(),
	}
}

// String returns a human-readable form of the peer for log output.
func (p *Peer) String() string {
	return fmt.Sprintf("%s@%v:%d", p.id.ShortString(), p.ip, p.port)
}
