// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// DropRequest terminates a neighbor relationship in both directions.  A peer
// that removes the sender from its outbound neighborhood echoes a
// DropRequest back as an acknowledgment.
type DropRequest struct {
	Timestamp int64
}

// Type returns the message type byte of the message.
func (msg *DropRequest) Type() MsgType {
	return MTDropRequest
}

// Encode encodes the message payload to w.
func (msg *DropRequest) Encode(w io.Writer) error {
	return writeInt64(w, msg.Timestamp)
}

// Decode decodes the message payload from r.
func (msg *DropRequest) Decode(r io.Reader) error {
	var err error
	msg.Timestamp, err = readInt64(r)
	return err
}
