// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/tangleware/autopeerd/identity"
)

// PipeTransport is an in-memory Sender connected to other pipe endpoints by
// address.  It implements the same framing and dispatch semantics as the
// UDP transport without touching the network and exists for tests and local
// simulation.
type PipeTransport struct {
	local *identity.LocalIdentity
	addr  *net.UDPAddr
	net   *PipeNetwork

	receive chan *Packet

	closeOnce sync.Once
}

// PipeNetwork connects pipe endpoints by their synthetic addresses.
type PipeNetwork struct {
	mtx       sync.RWMutex
	endpoints map[string]*PipeTransport
	nextPort  int
}

// NewPipeNetwork returns an empty in-memory network.
func NewPipeNetwork() *PipeNetwork {
	return &PipeNetwork{
		endpoints: make(map[string]*PipeTransport),
		nextPort:  40000,
	}
}

// Join creates a new endpoint on the network for the given identity.
func (n *PipeNetwork) Join(local *identity.LocalIdentity) *PipeTransport {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: n.nextPort}
	n.nextPort++

	t := &PipeTransport{
		local:   local,
		addr:    addr,
		net:     n,
		receive: make(chan *Packet, receiveQueueSize),
	}
	n.endpoints[addr.String()] = t
	return t
}

// lookup returns the endpoint listening on the given address.
func (n *PipeNetwork) lookup(addr string) (*PipeTransport, bool) {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	t, ok := n.endpoints[addr]
	return t, ok
}

// remove detaches an endpoint from the network.
func (n *PipeNetwork) remove(addr string) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.endpoints, addr)
}

// Receive returns the inbound packet channel.
func (t *PipeTransport) Receive() <-chan *Packet {
	return t.receive
}

// Send frames and delivers the given message bytes to the endpoint
// listening on the destination address.  Sending to an unknown address
// reports an error; a full receive queue silently drops the datagram, same
// as the UDP transport.
func (t *PipeTransport) Send(msg []byte, to *net.UDPAddr) error {
	dst, ok := t.net.lookup(to.String())
	if !ok {
		return fmt.Errorf("no pipe endpoint at %v", to)
	}

	raw := frame(t.local.PublicKey(), msg)
	pubKey, payload, err := deframe(raw)
	if err != nil {
		return err
	}
	pkt := &Packet{
		Bytes:        payload,
		SenderPubKey: pubKey,
		SenderID:     identity.NewID(pubKey),
		From:         t.addr,
	}
	select {
	case dst.receive <- pkt:
	default:
	}
	return nil
}

// LocalAddr returns the endpoint's synthetic address.
func (t *PipeTransport) LocalAddr() *net.UDPAddr {
	return t.addr
}

// Close detaches the endpoint and closes its receive channel.
func (t *PipeTransport) Close() {
	t.closeOnce.Do(func() {
		t.net.remove(t.addr.String())
		close(t.receive)
	})
}
