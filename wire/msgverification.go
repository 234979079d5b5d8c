// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"net"
)

// VerificationRequest probes a peer for liveness and protocol compatibility.
// The source and destination addresses bind the request to a specific
// network path so a response relayed from elsewhere fails validation.
type VerificationRequest struct {
	Version   uint32
	NetworkID uint32
	Timestamp int64
	SrcIP     net.IP
	SrcPort   uint16
	DstIP     net.IP
}

// Type returns the message type byte of the message.
func (msg *VerificationRequest) Type() MsgType {
	return MTVerificationRequest
}

// Encode encodes the message payload to w.
func (msg *VerificationRequest) Encode(w io.Writer) error {
	const op = "VerificationRequest.Encode"
	if err := writeUint32(w, msg.Version); err != nil {
		return err
	}
	if err := writeUint32(w, msg.NetworkID); err != nil {
		return err
	}
	if err := writeInt64(w, msg.Timestamp); err != nil {
		return err
	}
	if err := writeIP(op, w, msg.SrcIP); err != nil {
		return err
	}
	if err := writeUint16(w, msg.SrcPort); err != nil {
		return err
	}
	return writeIP(op, w, msg.DstIP)
}

// Decode decodes the message payload from r.
func (msg *VerificationRequest) Decode(r io.Reader) error {
	const op = "VerificationRequest.Decode"
	var err error
	if msg.Version, err = readUint32(r); err != nil {
		return err
	}
	if msg.NetworkID, err = readUint32(r); err != nil {
		return err
	}
	if msg.Timestamp, err = readInt64(r); err != nil {
		return err
	}
	if msg.SrcIP, err = readIP(op, r); err != nil {
		return err
	}
	if msg.SrcPort, err = readUint16(r); err != nil {
		return err
	}
	msg.DstIP, err = readIP(op, r)
	return err
}

// VerificationResponse answers a VerificationRequest.  It echoes the
// request's content hash and advertises the responder's service map.
type VerificationResponse struct {
	RequestHash [HashSize]byte
	Services    []Service
	DstIP       net.IP
}

// Type returns the message type byte of the message.
func (msg *VerificationResponse) Type() MsgType {
	return MTVerificationResponse
}

// Encode encodes the message payload to w.
func (msg *VerificationResponse) Encode(w io.Writer) error {
	const op = "VerificationResponse.Encode"
	if _, err := w.Write(msg.RequestHash[:]); err != nil {
		return err
	}
	if err := writeServices(op, w, msg.Services); err != nil {
		return err
	}
	return writeIP(op, w, msg.DstIP)
}

// Decode decodes the message payload from r.
func (msg *VerificationResponse) Decode(r io.Reader) error {
	const op = "VerificationResponse.Decode"
	if _, err := io.ReadFull(r, msg.RequestHash[:]); err != nil {
		return err
	}
	var err error
	if msg.Services, err = readServices(op, r); err != nil {
		return err
	}
	msg.DstIP, err = readIP(op, r)
	return err
}
