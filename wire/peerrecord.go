// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
	"net"
)

const (
	// MaxServiceKeyLen is the maximum length of a service key string.
	MaxServiceKeyLen = 32

	// MaxServiceNetworkLen is the maximum length of a service network
	// string such as "udp" or "tcp".
	MaxServiceNetworkLen = 8

	// MaxServicesPerRecord is the maximum number of services a single peer
	// record may carry.
	MaxServicesPerRecord = 8

	// MaxPublicKeyLen is the maximum length of a serialized public key in a
	// peer record.
	MaxPublicKeyLen = 65
)

// Service describes one named network endpoint a peer exposes, for example
// the "peering" service itself or a gossip service.
type Service struct {
	Key     string
	Network string
	Port    uint16
}

// writeService writes a service entry to w.
func writeService(op string, w io.Writer, svc *Service) error {
	if err := writeString(op, w, svc.Key, MaxServiceKeyLen); err != nil {
		return err
	}
	if err := writeString(op, w, svc.Network, MaxServiceNetworkLen); err != nil {
		return err
	}
	return writeUint16(w, svc.Port)
}

// readService reads a service entry from r.
func readService(op string, r io.Reader, svc *Service) error {
	var err error
	svc.Key, err = readString(op, r, MaxServiceKeyLen)
	if err != nil {
		return err
	}
	svc.Network, err = readString(op, r, MaxServiceNetworkLen)
	if err != nil {
		return err
	}
	svc.Port, err = readUint16(r)
	return err
}

// writeServices writes a service list preceded by a one-byte count.
func writeServices(op string, w io.Writer, services []Service) error {
	if len(services) > MaxServicesPerRecord {
		msg := fmt.Sprintf("too many services [count %d, max %d]",
			len(services), MaxServicesPerRecord)
		return messageError(op, ErrTooManyServices, msg)
	}
	if err := writeUint8(w, uint8(len(services))); err != nil {
		return err
	}
	for i := range services {
		if err := writeService(op, w, &services[i]); err != nil {
			return err
		}
	}
	return nil
}

// readServices reads a service list written by writeServices.
func readServices(op string, r io.Reader) ([]Service, error) {
	count, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if int(count) > MaxServicesPerRecord {
		msg := fmt.Sprintf("too many services [count %d, max %d]", count,
			MaxServicesPerRecord)
		return nil, messageError(op, ErrTooManyServices, msg)
	}
	services := make([]Service, count)
	for i := range services {
		if err := readService(op, r, &services[i]); err != nil {
			return nil, err
		}
	}
	return services, nil
}

// PeerRecord is the wire form of a known peer exchanged in discovery
// responses and persisted by the peer store.  Port is the peer's peering
// contact port, carried explicitly so peers that have not advertised a
// service map yet remain reachable.
type PeerRecord struct {
	PublicKey []byte
	IP        net.IP
	Port      uint16
	Services  []Service
}

// writePeerRecord writes a peer record to w.
func writePeerRecord(op string, w io.Writer, rec *PeerRecord) error {
	if err := writeVarBytes(op, w, rec.PublicKey, MaxPublicKeyLen); err != nil {
		return err
	}
	if err := writeIP(op, w, rec.IP); err != nil {
		return err
	}
	if err := writeUint16(w, rec.Port); err != nil {
		return err
	}
	return writeServices(op, w, rec.Services)
}

// readPeerRecord reads a peer record from r.
func readPeerRecord(op string, r io.Reader, rec *PeerRecord) error {
	var err error
	rec.PublicKey, err = readVarBytes(op, r, MaxPublicKeyLen)
	if err != nil {
		return err
	}
	rec.IP, err = readIP(op, r)
	if err != nil {
		return err
	}
	rec.Port, err = readUint16(r)
	if err != nil {
		return err
	}
	rec.Services, err = readServices(op, r)
	return err
}

// MarshalPeerRecord serializes a stand-alone peer record, used by the
// persistent peer store.
func MarshalPeerRecord(rec *PeerRecord) ([]byte, error) {
	const op = "MarshalPeerRecord"
	var buf bytes.Buffer
	if err := writePeerRecord(op, &buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalPeerRecord parses a stand-alone peer record produced by
// MarshalPeerRecord.
func UnmarshalPeerRecord(b []byte) (*PeerRecord, error) {
	const op = "UnmarshalPeerRecord"
	r := bytes.NewReader(b)
	var rec PeerRecord
	if err := readPeerRecord(op, r, &rec); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		desc := fmt.Sprintf("%d trailing bytes after peer record", r.Len())
		return nil, messageError(op, ErrTrailingBytes, desc)
	}
	return &rec, nil
}
