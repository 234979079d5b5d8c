// Copyright (c) 2024-2026 The Tangleware developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peerstore persists known peers across restarts so a node can
// rejoin the network without depending solely on its configured entry
// nodes.  Peers are stored as wire records in a leveldb database, keyed by
// list membership and peer identity.
package peerstore

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/tangleware/autopeerd/peer"
	"github.com/tangleware/autopeerd/wire"
)

// Key prefixes identifying which list a stored peer belonged to.
var (
	activePrefix      = []byte("a/")
	replacementPrefix = []byte("r/")
)

// Store is a leveldb-backed persistent peer store.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating when necessary) the peer database at the given path.
func Open(path string) (*Store, error) {
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
	}
	db, err := leveldb.OpenFile(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// key builds the database key for a peer under the given prefix.
func key(prefix []byte, p *peer.Peer) []byte {
	id := p.ID()
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	k = append(k, id[:]...)
	return k
}

// flush atomically replaces all records under the given prefix with the
// given peers.
func (s *Store) flush(prefix []byte, peers []*peer.Peer) error {
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		batch.Delete(k)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}

	for _, p := range peers {
		raw, err := wire.MarshalPeerRecord(p.Record())
		if err != nil {
			return err
		}
		batch.Put(key(prefix, p), raw)
	}
	return s.db.Write(batch, nil)
}

// fetch loads all peers stored under the given prefix.  Individual corrupt
// records are skipped with a log entry rather than failing the whole load.
func (s *Store) fetch(prefix []byte) ([]*peer.Peer, error) {
	var peers []*peer.Peer

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		rec, err := wire.UnmarshalPeerRecord(iter.Value())
		if err != nil {
			log.Warnf("Skipping corrupt peer record %x: %v", iter.Key(), err)
			continue
		}
		peers = append(peers, peer.FromRecord(rec))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return peers, nil
}

// FlushActive replaces the stored active peers.
func (s *Store) FlushActive(peers []*peer.Peer) error {
	return s.flush(activePrefix, peers)
}

// FlushReplacements replaces the stored replacement peers.
func (s *Store) FlushReplacements(peers []*peer.Peer) error {
	return s.flush(replacementPrefix, peers)
}

// FetchAllActive loads all stored active peers.
func (s *Store) FetchAllActive() ([]*peer.Peer, error) {
	return s.fetch(activePrefix)
}

// FetchAllReplacements loads all stored replacement peers.
func (s *Store) FetchAllReplacements() ([]*peer.Peer, error) {
	return s.fetch(replacementPrefix)
}
