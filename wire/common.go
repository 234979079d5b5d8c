// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// littleEndian is a convenience variable since binary.LittleEndian is quite
// long.
var littleEndian = binary.LittleEndian

// writeUint8 writes a single byte to w.
func writeUint8(w io.Writer, val uint8) error {
	_, err := w.Write([]byte{val})
	return err
}

// readUint8 reads a single byte from r.
func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// writeUint16 writes a little-endian uint16 to w.
func writeUint16(w io.Writer, val uint16) error {
	var buf [2]byte
	littleEndian.PutUint16(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}

// readUint16 reads a little-endian uint16 from r.
func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint16(buf[:]), nil
}

// writeUint32 writes a little-endian uint32 to w.
func writeUint32(w io.Writer, val uint32) error {
	var buf [4]byte
	littleEndian.PutUint32(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}

// readUint32 reads a little-endian uint32 from r.
func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint32(buf[:]), nil
}

// writeInt64 writes a little-endian int64 to w.
func writeInt64(w io.Writer, val int64) error {
	var buf [8]byte
	littleEndian.PutUint64(buf[:], uint64(val))
	_, err := w.Write(buf[:])
	return err
}

// readInt64 reads a little-endian int64 from r.
func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(littleEndian.Uint64(buf[:])), nil
}

// writeVarBytes writes a variable-length byte slice to w as a little-endian
// uint16 length followed by the bytes themselves.  It errors when the slice
// exceeds the provided maximum length.
func writeVarBytes(op string, w io.Writer, b []byte, maxLen int) error {
	if len(b) > maxLen {
		msg := fmt.Sprintf("byte slice is larger than the max allowed "+
			"[len %d, max %d]", len(b), maxLen)
		return messageError(op, ErrVarBytesTooLong, msg)
	}
	if err := writeUint16(w, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readVarBytes reads a variable-length byte slice written by writeVarBytes.
// It errors when the declared length exceeds the provided maximum.
func readVarBytes(op string, r io.Reader, maxLen int) ([]byte, error) {
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if int(count) > maxLen {
		msg := fmt.Sprintf("byte slice is larger than the max allowed "+
			"[len %d, max %d]", count, maxLen)
		return nil, messageError(op, ErrVarBytesTooLong, msg)
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeIP writes an IP address to w as variable-length bytes in 4-byte or
// 16-byte form.  A nil IP is written as zero-length bytes.
func writeIP(op string, w io.Writer, ip net.IP) error {
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return writeVarBytes(op, w, ip, net.IPv6len)
}

// readIP reads an IP address written by writeIP and validates its length.
func readIP(op string, r io.Reader) (net.IP, error) {
	b, err := readVarBytes(op, r, net.IPv6len)
	if err != nil {
		return nil, err
	}
	switch len(b) {
	case 0:
		return nil, nil
	case net.IPv4len, net.IPv6len:
		return net.IP(b), nil
	default:
		msg := fmt.Sprintf("invalid IP address length %d", len(b))
		return nil, messageError(op, ErrMalformedIP, msg)
	}
}

// writeString writes a string to w using writeVarBytes.
func writeString(op string, w io.Writer, s string, maxLen int) error {
	return writeVarBytes(op, w, []byte(s), maxLen)
}

// readString reads a string written by writeString.
func readString(op string, r io.Reader, maxLen int) (string, error) {
	b, err := readVarBytes(op, r, maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
