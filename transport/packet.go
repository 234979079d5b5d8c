// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport carries autopeering datagrams between the managers and
// the network.  The managers never open sockets themselves: they consume a
// receive channel of packets and send replies through the Sender interface.
//
// On the wire each datagram is framed as the sender's serialized public key
// followed by the message bytes, so the receiving side derives the sender's
// peer identity rather than trusting an asserted one.
package transport

import (
	"fmt"
	"net"

	"github.com/tangleware/autopeerd/identity"
)

// Packet is one inbound datagram after deframing.
type Packet struct {
	// Bytes is the raw marshaled message, message type byte included.
	Bytes []byte

	// SenderPubKey is the sender's serialized public key taken from the
	// frame.
	SenderPubKey []byte

	// SenderID is the peer identity derived from SenderPubKey.
	SenderID identity.PeerID

	// From is the datagram's source address.
	From *net.UDPAddr
}

// Sender sends marshaled messages to remote peers.  Implementations must be
// safe for concurrent access.
type Sender interface {
	// Send frames and transmits the given message bytes to the destination.
	Send(msg []byte, to *net.UDPAddr) error

	// LocalAddr returns the local listening address.
	LocalAddr() *net.UDPAddr
}

// frame prepends the local public key to the message bytes.
func frame(publicKey, msg []byte) []byte {
	buf := make([]byte, 0, 1+len(publicKey)+len(msg))
	buf = append(buf, byte(len(publicKey)))
	buf = append(buf, publicKey...)
	buf = append(buf, msg...)
	return buf
}

// deframe splits a raw datagram into the sender public key and the message
// bytes.
func deframe(raw []byte) (publicKey, msg []byte, err error) {
	if len(raw) < 1 {
		return nil, nil, fmt.Errorf("empty datagram")
	}
	keyLen := int(raw[0])
	if keyLen != identity.PublicKeySize {
		return nil, nil, fmt.Errorf("invalid public key length %d", keyLen)
	}
	if len(raw) < 1+keyLen+1 {
		return nil, nil, fmt.Errorf("datagram too short for frame")
	}
	return raw[1 : 1+keyLen], raw[1+keyLen:], nil
}
