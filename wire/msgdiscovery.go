// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxPeersPerResponse is the maximum number of peer records a discovery
// response may carry.  Responders typically send fewer; the wire limit only
// bounds allocation when decoding.
const MaxPeersPerResponse = 16

// DiscoveryRequest asks a peer for a sample of the peers it has verified.
type DiscoveryRequest struct {
	Timestamp int64
}

// Type returns the message type byte of the message.
func (msg *DiscoveryRequest) Type() MsgType {
	return MTDiscoveryRequest
}

// Encode encodes the message payload to w.
func (msg *DiscoveryRequest) Encode(w io.Writer) error {
	return writeInt64(w, msg.Timestamp)
}

// Decode decodes the message payload from r.
func (msg *DiscoveryRequest) Decode(r io.Reader) error {
	var err error
	msg.Timestamp, err = readInt64(r)
	return err
}

// DiscoveryResponse answers a DiscoveryRequest with a sample of verified
// peers, echoing the request's content hash for correlation.
type DiscoveryResponse struct {
	RequestHash [HashSize]byte
	Peers       []PeerRecord
}

// Type returns the message type byte of the message.
func (msg *DiscoveryResponse) Type() MsgType {
	return MTDiscoveryResponse
}

// Encode encodes the message payload to w.
func (msg *DiscoveryResponse) Encode(w io.Writer) error {
	const op = "DiscoveryResponse.Encode"
	if len(msg.Peers) > MaxPeersPerResponse {
		desc := fmt.Sprintf("too many peers [count %d, max %d]",
			len(msg.Peers), MaxPeersPerResponse)
		return messageError(op, ErrTooManyPeers, desc)
	}
	if _, err := w.Write(msg.RequestHash[:]); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(len(msg.Peers))); err != nil {
		return err
	}
	for i := range msg.Peers {
		if err := writePeerRecord(op, w, &msg.Peers[i]); err != nil {
			return err
		}
	}
	return nil
}

// Decode decodes the message payload from r.
func (msg *DiscoveryResponse) Decode(r io.Reader) error {
	const op = "DiscoveryResponse.Decode"
	if _, err := io.ReadFull(r, msg.RequestHash[:]); err != nil {
		return err
	}
	count, err := readUint8(r)
	if err != nil {
		return err
	}
	if int(count) > MaxPeersPerResponse {
		desc := fmt.Sprintf("too many peers [count %d, max %d]", count,
			MaxPeersPerResponse)
		return messageError(op, ErrTooManyPeers, desc)
	}
	msg.Peers = make([]PeerRecord, count)
	for i := range msg.Peers {
		if err := readPeerRecord(op, r, &msg.Peers[i]); err != nil {
			return err
		}
	}
	return nil
}
