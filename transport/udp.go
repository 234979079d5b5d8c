// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/decred/dcrd/container/apbf"
	"github.com/tangleware/autopeerd/identity"
	"github.com/tangleware/autopeerd/wire"
)

const (
	// maxDatagramSize bounds the receive buffer.  It covers the maximum
	// message payload plus the public key frame.
	maxDatagramSize = wire.MaxMessagePayload + 1 + identity.PublicKeySize

	// receiveQueueSize is the capacity of the inbound packet channel.
	// Packets arriving while the queue is full are dropped, which is an
	// acceptable outcome for a lossy datagram protocol.
	receiveQueueSize = 64

	// dupFilterCapacity and dupFilterFPRate size the duplicate-datagram
	// filter.  The filter suppresses byte-identical replays of recently
	// seen datagrams before they reach the dispatchers.
	dupFilterCapacity = 5000
	dupFilterFPRate   = 0.0001
)

// UDPTransport is the production Sender backed by a UDP socket.  A single
// reader goroutine deframes inbound datagrams, drops duplicates, and feeds
// the receive channel consumed by the packet dispatcher.
type UDPTransport struct {
	local *identity.LocalIdentity
	conn  *net.UDPConn

	// dupFilter tracks recently seen datagrams.  It is only touched by the
	// reader goroutine.
	dupFilter *apbf.Filter

	receive chan *Packet

	closeOnce sync.Once
	quit      chan struct{}
	wg        sync.WaitGroup
}

// ListenUDP opens a UDP socket on the given address and starts the reader.
func ListenUDP(listenAddr string, local *identity.LocalIdentity) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	t := &UDPTransport{
		local:     local,
		conn:      conn,
		dupFilter: apbf.NewFilter(dupFilterCapacity, dupFilterFPRate),
		receive:   make(chan *Packet, receiveQueueSize),
		quit:      make(chan struct{}),
	}
	t.wg.Add(1)
	go t.readHandler()
	return t, nil
}

// Receive returns the inbound packet channel.  The channel is closed when
// the transport shuts down.
func (t *UDPTransport) Receive() <-chan *Packet {
	return t.receive
}

// Send frames and transmits the given message bytes to the destination.
func (t *UDPTransport) Send(msg []byte, to *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(frame(t.local.PublicKey(), msg), to)
	return err
}

// LocalAddr returns the local listening address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close shuts down the socket and the reader, then closes the receive
// channel.
func (t *UDPTransport) Close() {
	t.closeOnce.Do(func() {
		close(t.quit)
		t.conn.Close()
		t.wg.Wait()
		close(t.receive)
	})
}

// readHandler reads datagrams from the socket until the transport closes.
// It must be run as a goroutine.
func (t *UDPTransport) readHandler() {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debugf("UDP read error: %v", err)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		if t.dupFilter.Contains(raw) {
			log.Tracef("Dropping duplicate datagram from %v", from)
			continue
		}
		t.dupFilter.Add(raw)

		pubKey, msg, err := deframe(raw)
		if err != nil {
			log.Debugf("Dropping malformed datagram from %v: %v", from, err)
			continue
		}

		pkt := &Packet{
			Bytes:        msg,
			SenderPubKey: pubKey,
			SenderID:     identity.NewID(pubKey),
			From:         from,
		}
		select {
		case t.receive <- pkt:
		default:
			log.Debugf("Receive queue full; dropping datagram from %v", from)
		}
	}
}
