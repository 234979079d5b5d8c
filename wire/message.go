// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire implements the autopeering wire protocol.
//
// Every message travels in a single UDP datagram consisting of a one-byte
// message type followed by the message payload.  Request/response
// correlation relies on the BLAKE-256 hash of the full request datagram,
// which each response echoes back verbatim.
package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/decred/dcrd/crypto/blake256"
)

// ProtocolVersion is the autopeering wire protocol version implemented by
// this package.  Requests carrying any other version are rejected.
const ProtocolVersion uint32 = 1

// MaxMessagePayload is the maximum bytes a message can be regardless of
// other individual limits imposed by messages themselves.  It is sized so a
// marshaled message always fits a single non-fragmented UDP datagram on
// common paths.
const MaxMessagePayload = 1280

// HashSize is the size of a message content hash in bytes.
const HashSize = blake256.Size

// MsgType identifies a message on the wire via the leading datagram byte.
type MsgType uint8

// Message type bytes used in the leading position of each datagram.
const (
	MTVerificationRequest  MsgType = 10
	MTVerificationResponse MsgType = 11
	MTDiscoveryRequest     MsgType = 12
	MTDiscoveryResponse    MsgType = 13
	MTPeeringRequest       MsgType = 20
	MTPeeringResponse      MsgType = 21
	MTDropRequest          MsgType = 22
)

// String returns the message type as a human-readable string.
func (mt MsgType) String() string {
	switch mt {
	case MTVerificationRequest:
		return "verificationrequest"
	case MTVerificationResponse:
		return "verificationresponse"
	case MTDiscoveryRequest:
		return "discoveryrequest"
	case MTDiscoveryResponse:
		return "discoveryresponse"
	case MTPeeringRequest:
		return "peeringrequest"
	case MTPeeringResponse:
		return "peeringresponse"
	case MTDropRequest:
		return "droprequest"
	}
	return fmt.Sprintf("unknown(%d)", uint8(mt))
}

// Message is the interface implemented by all autopeering protocol
// messages.
type Message interface {
	Type() MsgType
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the message type byte.
func makeEmptyMessage(mt MsgType) (Message, error) {
	switch mt {
	case MTVerificationRequest:
		return &VerificationRequest{}, nil
	case MTVerificationResponse:
		return &VerificationResponse{}, nil
	case MTDiscoveryRequest:
		return &DiscoveryRequest{}, nil
	case MTDiscoveryResponse:
		return &DiscoveryResponse{}, nil
	case MTPeeringRequest:
		return &PeeringRequest{}, nil
	case MTPeeringResponse:
		return &PeeringResponse{}, nil
	case MTDropRequest:
		return &DropRequest{}, nil
	}
	return nil, messageError("makeEmptyMessage", ErrUnknownMsgType,
		fmt.Sprintf("unknown message type %d", uint8(mt)))
}

// Marshal serializes a message to its datagram form: the message type byte
// followed by the encoded payload.
func Marshal(msg Message) ([]byte, error) {
	const op = "Marshal"

	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Type()))
	if err := msg.Encode(&buf); err != nil {
		return nil, err
	}
	if buf.Len() > MaxMessagePayload {
		msg := fmt.Sprintf("message payload is too large [len %d, max %d]",
			buf.Len(), MaxMessagePayload)
		return nil, messageError(op, ErrPayloadTooLarge, msg)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a datagram produced by Marshal into its concrete message
// type.  Datagrams with trailing garbage after a well-formed message are
// rejected.
func Unmarshal(b []byte) (Message, error) {
	const op = "Unmarshal"

	if len(b) < 1 {
		return nil, messageError(op, ErrPayloadTooShort, "empty datagram")
	}
	if len(b) > MaxMessagePayload {
		msg := fmt.Sprintf("message payload is too large [len %d, max %d]",
			len(b), MaxMessagePayload)
		return nil, messageError(op, ErrPayloadTooLarge, msg)
	}

	msg, err := makeEmptyMessage(MsgType(b[0]))
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(b[1:])
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		desc := fmt.Sprintf("%d trailing bytes after %v message", r.Len(),
			msg.Type())
		return nil, messageError(op, ErrTrailingBytes, desc)
	}
	return msg, nil
}

// PeekType returns the message type byte of a datagram without decoding the
// payload.
func PeekType(b []byte) (MsgType, bool) {
	if len(b) < 1 {
		return 0, false
	}
	switch mt := MsgType(b[0]); mt {
	case MTVerificationRequest, MTVerificationResponse, MTDiscoveryRequest,
		MTDiscoveryResponse, MTPeeringRequest, MTPeeringResponse,
		MTDropRequest:
		return mt, true
	}
	return 0, false
}

// MessageHash returns the BLAKE-256 content hash of a raw datagram.  It is
// the value responses echo back for request correlation.
func MessageHash(raw []byte) [HashSize]byte {
	return blake256.Sum256(raw)
}
