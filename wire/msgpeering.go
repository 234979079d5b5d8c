// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// SaltByteSize is the exact number of salt bytes a peering request carries.
const SaltByteSize = 20

// PeeringRequest proposes a neighbor relationship.  It carries the salt the
// requester wants the responder to use when computing the pair's distance,
// together with the salt's expiration time.
type PeeringRequest struct {
	Timestamp  int64
	SaltBytes  []byte
	SaltExpiry int64
}

// Type returns the message type byte of the message.
func (msg *PeeringRequest) Type() MsgType {
	return MTPeeringRequest
}

// Encode encodes the message payload to w.
func (msg *PeeringRequest) Encode(w io.Writer) error {
	const op = "PeeringRequest.Encode"
	if len(msg.SaltBytes) != SaltByteSize {
		desc := fmt.Sprintf("invalid salt length %d, expected %d",
			len(msg.SaltBytes), SaltByteSize)
		return messageError(op, ErrMalformedSalt, desc)
	}
	if err := writeInt64(w, msg.Timestamp); err != nil {
		return err
	}
	if _, err := w.Write(msg.SaltBytes); err != nil {
		return err
	}
	return writeInt64(w, msg.SaltExpiry)
}

// Decode decodes the message payload from r.
func (msg *PeeringRequest) Decode(r io.Reader) error {
	var err error
	if msg.Timestamp, err = readInt64(r); err != nil {
		return err
	}
	msg.SaltBytes = make([]byte, SaltByteSize)
	if _, err := io.ReadFull(r, msg.SaltBytes); err != nil {
		return err
	}
	msg.SaltExpiry, err = readInt64(r)
	return err
}

// PeeringResponse answers a PeeringRequest, echoing the request's content
// hash and stating whether the neighbor slot was granted.
type PeeringResponse struct {
	RequestHash [HashSize]byte
	Status      bool
}

// Type returns the message type byte of the message.
func (msg *PeeringResponse) Type() MsgType {
	return MTPeeringResponse
}

// Encode encodes the message payload to w.
func (msg *PeeringResponse) Encode(w io.Writer) error {
	if _, err := w.Write(msg.RequestHash[:]); err != nil {
		return err
	}
	var status uint8
	if msg.Status {
		status = 1
	}
	return writeUint8(w, status)
}

// Decode decodes the message payload from r.
func (msg *PeeringResponse) Decode(r io.Reader) error {
	if _, err := io.ReadFull(r, msg.RequestHash[:]); err != nil {
		return err
	}
	status, err := readUint8(r)
	if err != nil {
		return err
	}
	msg.Status = status != 0
	return nil
}
